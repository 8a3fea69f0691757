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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/extract"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
	storage "github.com/AleutianAI/AleutianCCG/services/ccg/storage/badger"
)

const sample = `def hello(name):
    return name
`

func sampleExtraction() *ast.Extraction {
	return &ast.Extraction{
		Language: ast.LanguagePython,
		Declarations: []ast.RawDeclaration{
			{Name: "hello", Kind: ast.KindFunction, Parent: -1, Parameters: []string{"name"}},
		},
		References: []ast.RawReference{
			{Kind: ast.RefCall, Name: "print", Scope: 0},
		},
		ModuleDoc: "Greetings.",
	}
}

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestKey(t *testing.T) {
	a := Key(ast.LanguagePython, []byte(sample))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key(ast.LanguagePython, []byte(sample)))
	assert.NotEqual(t, a, Key(ast.LanguageJac, []byte(sample)), "language is part of the key")
	assert.NotEqual(t, a, Key(ast.LanguagePython, []byte(sample+" ")), "content is part of the key")
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(2)
	require.NoError(t, err)

	_, ok := c.Get(ctx, ast.LanguagePython, []byte("a"))
	assert.False(t, ok)

	ex := sampleExtraction()
	c.Put(ctx, ast.LanguagePython, []byte("a"), ex)
	got, ok := c.Get(ctx, ast.LanguagePython, []byte("a"))
	require.True(t, ok)
	assert.Same(t, ex, got)

	c.Put(ctx, ast.LanguagePython, []byte("b"), ex)
	c.Put(ctx, ast.LanguagePython, []byte("c"), ex)
	assert.Equal(t, 2, c.Len())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.Puts)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)

	c.Put(ctx, ast.LanguagePython, []byte("nil"), nil)
	assert.Equal(t, 2, c.Len(), "nil extractions are not stored")

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestDiskCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	c, err := NewDiskCache(db, nil)
	require.NoError(t, err)

	_, ok := c.Get(ctx, ast.LanguagePython, []byte(sample))
	assert.False(t, ok)

	c.Put(ctx, ast.LanguagePython, []byte(sample), sampleExtraction())
	got, ok := c.Get(ctx, ast.LanguagePython, []byte(sample))
	require.True(t, ok)
	assert.Equal(t, sampleExtraction(), got)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok = c.Get(ctx, ast.LanguagePython, []byte(sample))
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Zero(t, stats.Errors)
}

func TestDiskCache_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.Open(storage.DefaultConfig(dir))
	require.NoError(t, err)
	c, err := NewDiskCache(db, nil)
	require.NoError(t, err)
	c.Put(ctx, ast.LanguagePython, []byte(sample), sampleExtraction())
	require.NoError(t, db.Close())

	db, err = storage.Open(storage.DefaultConfig(dir))
	require.NoError(t, err)
	defer db.Close()
	c, err = NewDiskCache(db, nil)
	require.NoError(t, err)
	_, ok := c.Get(ctx, ast.LanguagePython, []byte(sample))
	assert.True(t, ok)
}

func TestNewDiskCache_NilStore(t *testing.T) {
	_, err := NewDiskCache(nil, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestTiered_PromotesDiskHits(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	disk, err := NewDiskCache(db, nil)
	require.NoError(t, err)
	disk.Put(ctx, ast.LanguagePython, []byte(sample), sampleExtraction())

	mem, err := NewMemoryCache(8)
	require.NoError(t, err)
	tiered := NewTiered(mem, disk)

	_, ok := tiered.Get(ctx, ast.LanguagePython, []byte(sample))
	require.True(t, ok)
	assert.Equal(t, 1, mem.Len(), "disk hit is promoted")

	_, ok = tiered.Get(ctx, ast.LanguagePython, []byte(sample))
	require.True(t, ok)

	memStats, diskStats := tiered.Stats()
	assert.Equal(t, int64(1), memStats.Hits)
	assert.Equal(t, int64(1), memStats.Misses)
	assert.Equal(t, int64(1), diskStats.Hits)

	_, ok = tiered.Get(ctx, ast.LanguagePython, []byte("missing"))
	assert.False(t, ok)
}

func TestTiered_ConcurrentGets(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	disk, err := NewDiskCache(db, nil)
	require.NoError(t, err)
	mem, err := NewMemoryCache(8)
	require.NoError(t, err)
	tiered := NewTiered(mem, disk)
	tiered.Put(ctx, ast.LanguagePython, []byte(sample), sampleExtraction())
	mem.Purge()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex, ok := tiered.Get(ctx, ast.LanguagePython, []byte(sample))
			assert.True(t, ok)
			assert.NotNil(t, ex)
		}()
	}
	wg.Wait()
}

func TestTiered_NilTiers(t *testing.T) {
	ctx := context.Background()
	tiered := NewTiered(nil, nil)
	tiered.Put(ctx, ast.LanguagePython, []byte(sample), sampleExtraction())
	_, ok := tiered.Get(ctx, ast.LanguagePython, []byte(sample))
	assert.False(t, ok)
	memStats, diskStats := tiered.Stats()
	assert.Zero(t, memStats)
	assert.Zero(t, diskStats)
}

func TestExtractorUsesCache(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	disk, err := NewDiskCache(db, nil)
	require.NoError(t, err)
	mem, err := NewMemoryCache(8)
	require.NoError(t, err)

	unit := func(path string) *scanner.ParseUnit {
		return &scanner.ParseUnit{
			AbsPath:  "/proj/" + path,
			RelPath:  path,
			Language: ast.LanguagePython,
			Content:  []byte(sample),
		}
	}

	ext := extract.NewExtractor(extract.WithCache(NewTiered(mem, disk)))
	first, err := ext.Extract(ctx, unit("a.py"))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := ext.Extract(ctx, unit("a.py"))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Declarations, second.Declarations)

	// A fresh process only has the disk tier populated.
	fresh, err := NewMemoryCache(8)
	require.NoError(t, err)
	ext = extract.NewExtractor(extract.WithCache(NewTiered(fresh, disk)))
	third, err := ext.Extract(ctx, unit("a.py"))
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, first.Declarations, third.Declarations)

	// Same bytes under another path hit, with ids derived from the new path.
	moved, err := ext.Extract(ctx, unit("b.py"))
	require.NoError(t, err)
	assert.True(t, moved.Cached)
	require.Len(t, moved.Declarations, len(first.Declarations))
	assert.NotEqual(t, first.Declarations[0].ID, moved.Declarations[0].ID)
}
