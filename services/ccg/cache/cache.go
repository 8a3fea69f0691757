// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the content-hash keyed extraction cache.
//
// An entry maps (schema version, language, file bytes) to the raw adapter
// output for those bytes. The path is not part of the key: declaration ids
// are derived from the path when a cached extraction is turned into a
// result, so a renamed or duplicated file still hits.
//
// Two tiers are available and may be combined with Tiered:
//
//	MemoryCache  bounded LRU, lives for one process
//	DiskCache    BadgerDB under the cache directory, survives restarts
//
// The cache sits outside the build: a build with the cache disabled
// produces the same graph.
//
// Thread Safety:
//
//	Every cache type is safe for concurrent use. Cached extractions are
//	shared and must be treated as read-only.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/extract"
)

// SchemaVersion is mixed into every key. Bump it whenever adapter output
// changes shape or meaning so stale disk entries are never read.
const SchemaVersion = "ccg-extract-v1"

// DefaultMemoryEntries is the default capacity of a MemoryCache.
const DefaultMemoryEntries = 4096

// Compile-time interface checks.
var (
	_ extract.ExtractionCache = (*MemoryCache)(nil)
	_ extract.ExtractionCache = (*DiskCache)(nil)
	_ extract.ExtractionCache = (*Tiered)(nil)
)

// Key returns the hex SHA-256 cache key of content in lang.
func Key(lang ast.Language, content []byte) string {
	h := sha256.New()
	h.Write([]byte(SchemaVersion))
	h.Write([]byte{0})
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Stats counts cache traffic.
type Stats struct {
	Hits      int64
	Misses    int64
	Puts      int64
	Evictions int64
	Errors    int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters is the shared atomic implementation behind Stats.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	puts      atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Puts:      c.puts.Load(),
		Evictions: c.evictions.Load(),
		Errors:    c.errors.Load(),
	}
}
