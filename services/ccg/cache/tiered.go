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

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// Tiered checks memory first and falls back to disk, promoting disk hits.
//
// Concurrent misses on the same key share one disk read, which matters
// when a project vendors many copies of the same file.
type Tiered struct {
	memory *MemoryCache
	disk   *DiskCache
	flight singleflight.Group
}

// NewTiered combines the two tiers. Either may be nil.
func NewTiered(memory *MemoryCache, disk *DiskCache) *Tiered {
	return &Tiered{memory: memory, disk: disk}
}

// Get returns the extraction of content from the first tier holding it.
func (t *Tiered) Get(ctx context.Context, lang ast.Language, content []byte) (*ast.Extraction, bool) {
	key := Key(lang, content)
	if t.memory != nil {
		if ex, ok := t.memory.get(ctx, key); ok {
			return ex, true
		}
	}
	if t.disk == nil {
		return nil, false
	}

	v, _, _ := t.flight.Do(key, func() (interface{}, error) {
		ex, ok := t.disk.get(ctx, key)
		if !ok {
			return (*ast.Extraction)(nil), nil
		}
		if t.memory != nil {
			t.memory.put(key, ex)
		}
		return ex, nil
	})
	ex, _ := v.(*ast.Extraction)
	return ex, ex != nil
}

// Put writes ex to every tier.
func (t *Tiered) Put(ctx context.Context, lang ast.Language, content []byte, ex *ast.Extraction) {
	key := Key(lang, content)
	if t.memory != nil {
		t.memory.put(key, ex)
	}
	if t.disk != nil {
		t.disk.put(ctx, key, ex)
	}
}

// Stats returns the counters of each tier; a missing tier reports zeros.
func (t *Tiered) Stats() (memory, disk Stats) {
	if t.memory != nil {
		memory = t.memory.Stats()
	}
	if t.disk != nil {
		disk = t.disk.Stats()
	}
	return memory, disk
}
