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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	storage "github.com/AleutianAI/AleutianCCG/services/ccg/storage/badger"
)

// keyPrefix namespaces extraction entries in the shared store.
const keyPrefix = "ccg:extract:"

// ErrNilStore is returned by NewDiskCache without a store.
var ErrNilStore = errors.New("cache store must not be nil")

// diskEntry is the stored form of an extraction.
type diskEntry struct {
	Schema     string          `json:"schema"`
	Extraction *ast.Extraction `json:"extraction"`
}

// DiskCache persists extractions in BadgerDB.
//
// Read and write failures are logged and counted, never returned: a
// broken cache degrades to re-parsing.
type DiskCache struct {
	db     *storage.DB
	logger *slog.Logger
	stats  counters
}

// NewDiskCache wraps an open store.
func NewDiskCache(db *storage.DB, logger *slog.Logger) (*DiskCache, error) {
	if db == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskCache{db: db, logger: logger}, nil
}

// Get loads the extraction of content.
func (c *DiskCache) Get(ctx context.Context, lang ast.Language, content []byte) (*ast.Extraction, bool) {
	return c.get(ctx, Key(lang, content))
}

func (c *DiskCache) get(ctx context.Context, key string) (*ast.Extraction, bool) {
	var entry diskEntry
	err := c.db.ViewContext(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	switch {
	case err == nil && entry.Schema == SchemaVersion && entry.Extraction != nil:
		c.stats.hits.Add(1)
		recordLookup(ctx, tierDisk, true)
		return entry.Extraction, true
	case err == nil, errors.Is(err, badger.ErrKeyNotFound):
	default:
		c.stats.errors.Add(1)
		c.logger.Warn("extraction cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	c.stats.misses.Add(1)
	recordLookup(ctx, tierDisk, false)
	return nil, false
}

// Put stores ex as the extraction of content.
func (c *DiskCache) Put(ctx context.Context, lang ast.Language, content []byte, ex *ast.Extraction) {
	c.put(ctx, Key(lang, content), ex)
}

func (c *DiskCache) put(ctx context.Context, key string, ex *ast.Extraction) {
	if ex == nil {
		return
	}
	data, err := json.Marshal(diskEntry{Schema: SchemaVersion, Extraction: ex})
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("extraction cache encode failed", slog.String("error", err.Error()))
		return
	}
	err = c.db.UpdateContext(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("extraction cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	c.stats.puts.Add(1)
}

// Len returns the number of stored entries.
func (c *DiskCache) Len(ctx context.Context) (int, error) {
	return c.db.CountPrefix(ctx, []byte(keyPrefix))
}

// Clear removes every stored extraction and returns the count.
func (c *DiskCache) Clear(ctx context.Context) (int, error) {
	n, err := c.db.DeletePrefix(ctx, []byte(keyPrefix))
	if err != nil {
		return 0, fmt.Errorf("clear extraction cache: %w", err)
	}
	return n, nil
}

// Stats returns the traffic counters.
func (c *DiskCache) Stats() Stats {
	return c.stats.snapshot()
}
