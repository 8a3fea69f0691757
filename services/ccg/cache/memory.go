// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// MemoryCache is a bounded LRU of extractions.
type MemoryCache struct {
	lru   *lru.Cache[string, *ast.Extraction]
	stats counters
}

// NewMemoryCache creates a cache holding at most size entries. Zero or
// negative selects DefaultMemoryEntries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	c := &MemoryCache{}
	l, err := lru.NewWithEvict[string, *ast.Extraction](size, func(string, *ast.Extraction) {
		c.stats.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = l
	return c, nil
}

// Get returns the cached extraction of content.
func (c *MemoryCache) Get(ctx context.Context, lang ast.Language, content []byte) (*ast.Extraction, bool) {
	return c.get(ctx, Key(lang, content))
}

func (c *MemoryCache) get(ctx context.Context, key string) (*ast.Extraction, bool) {
	ex, ok := c.lru.Get(key)
	if ok {
		c.stats.hits.Add(1)
	} else {
		c.stats.misses.Add(1)
	}
	recordLookup(ctx, tierMemory, ok)
	return ex, ok
}

// Put stores ex as the extraction of content.
func (c *MemoryCache) Put(_ context.Context, lang ast.Language, content []byte, ex *ast.Extraction) {
	c.put(Key(lang, content), ex)
}

func (c *MemoryCache) put(key string, ex *ast.Extraction) {
	if ex == nil {
		return
	}
	c.lru.Add(key, ex)
	c.stats.puts.Add(1)
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Stats returns the traffic counters.
func (c *MemoryCache) Stats() Stats {
	return c.stats.snapshot()
}
