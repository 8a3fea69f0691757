// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, db *DB, key, value string) {
	t.Helper()
	require.NoError(t, db.UpdateContext(t.Context(), func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	}))
}

func get(t *testing.T, db *DB, key string) (string, bool) {
	t.Helper()
	var out string
	err := db.ViewContext(t.Context(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		out = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return out, true
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrPathRequired)
}

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())

	put(t, db, "ccg:extract:1", "a")
	v, ok := get(t, db, "ccg:extract:1")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	cfg := DefaultConfig(dir)

	db, err := Open(cfg)
	require.NoError(t, err)
	put(t, db, "ccg:snap:p:1:meta", "m")
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, dir, db.Path())
	v, ok := get(t, db, "ccg:snap:p:1:meta")
	assert.True(t, ok)
	assert.Equal(t, "m", v)
}

func TestDB_PrefixOperations(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 5; i++ {
		put(t, db, fmt.Sprintf("ccg:extract:%d", i), "x")
	}
	put(t, db, "ccg:snap:keep", "y")

	n, err := db.CountPrefix(t.Context(), []byte("ccg:extract:"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	deleted, err := db.DeletePrefix(t.Context(), []byte("ccg:extract:"))
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	n, err = db.CountPrefix(t.Context(), []byte("ccg:"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDB_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, db.UpdateContext(ctx, func(*badger.Txn) error { return nil }), context.Canceled)
	_, err = db.DeletePrefix(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDB_CloseTwice(t *testing.T) {
	db, err := Open(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.NoError(t, db.Close())
}

func TestNewGCRunner_Validation(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewGCRunner(nil, time.Second, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db.DB, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db.DB, time.Second, 1.5, nil)
	assert.Error(t, err)

	r, err := NewGCRunner(db.DB, time.Hour, 0.5, nil)
	require.NoError(t, err)
	r.Start()
	r.Start()
	r.Stop()
	r.Stop()

	idle, err := NewGCRunner(db.DB, time.Hour, 0.5, nil)
	require.NoError(t, err)
	idle.Stop()
}
