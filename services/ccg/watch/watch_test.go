// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/builder"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
	storage "github.com/AleutianAI/AleutianCCG/services/ccg/storage/badger"
)

const waitFor = 10 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), nil, Options{})
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = NewWatcher(t.TempDir(), func([]Change) {}, Options{IgnorePatterns: []string{"a["}})
	assert.ErrorIs(t, err, scanner.ErrInvalidPattern)
}

func TestWatcher_Ignored(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func([]Change) {}, Options{})
	require.NoError(t, err)
	defer w.Stop()

	tests := []struct {
		rel  string
		want bool
	}{
		{".", false},
		{"src/app.py", false},
		{"node_modules", true},
		{"node_modules/pkg/index.js", true},
		{"web/node_modules/pkg/index.js", true},
		{"src/.app.py.swp", true},
		{"notes.txt~", true},
		{".ccg/store", true},
		{".git/HEAD", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ignored(tt.rel))
		})
	}
}

func TestDedupe(t *testing.T) {
	now := time.Now()
	got := dedupe([]Change{
		{Path: "b.py", Op: OpCreate, Time: now},
		{Path: "a.py", Op: OpWrite, Time: now},
		{Path: "b.py", Op: OpWrite, Time: now.Add(time.Millisecond)},
		{Path: "./a.py", Op: OpRemove, Time: now.Add(2 * time.Millisecond)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a.py", got[0].Path)
	assert.Equal(t, OpRemove, got[0].Op)
	assert.Equal(t, "b.py", got[1].Path)
	assert.Equal(t, OpWrite, got[1].Op)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestWatcher_DeliversDebouncedBatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))

	batches := make(chan []Change, 16)
	w, err := NewWatcher(root, func(cs []Change) { batches <- cs }, Options{
		Debounce: 20 * time.Millisecond,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()
	assert.ErrorIs(t, w.Start(t.Context()), ErrAlreadyStarted)

	writeFile(t, root, "node_modules/dep.js", "x\n")
	writeFile(t, root, "draft.py.swp", "x\n")
	writeFile(t, root, "pkg/app.py", "def main():\n    pass\n")

	deadline := time.After(waitFor)
	for {
		select {
		case cs := <-batches:
			for _, c := range cs {
				assert.False(t, strings.Contains(c.Path, "node_modules"), c.Path)
				assert.False(t, strings.HasSuffix(c.Path, ".swp"), c.Path)
				if c.Path == "pkg/app.py" {
					return
				}
			}
		case <-deadline:
			t.Fatal("no change reported for pkg/app.py")
		}
	}
}

func TestWatcher_StopFlushesAndReturns(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func([]Change) {}, Options{Logger: quietLogger()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
	w.Stop()
}

func TestRunner_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def foo():\n    return 1\n")

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	snapshots, err := graph.NewSnapshotManager(db.DB, quietLogger())
	require.NoError(t, err)

	rebuilds := make(chan Rebuild, 32)
	b := builder.NewBuilder(builder.WithLogger(quietLogger()))
	r := NewRunner(root, b,
		WithDebounce(20*time.Millisecond),
		WithSnapshots(snapshots, 1),
		WithRunnerLogger(quietLogger()),
		WithOnRebuild(func(rb Rebuild) { rebuilds <- rb }),
	)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var first Rebuild
	select {
	case first = <-rebuilds:
	case <-time.After(waitFor):
		t.Fatal("initial build not reported")
	}
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.Seq)
	assert.Nil(t, first.Changes)
	assert.Nil(t, first.Diff)
	require.NotNil(t, first.Snapshot)

	writeFile(t, root, "b.py", "from a import foo\n\ndef bar():\n    return foo()\n")

	deadline := time.After(waitFor)
	var updated Rebuild
wait:
	for {
		select {
		case rb := <-rebuilds:
			require.NoError(t, rb.Err)
			for _, d := range rb.Result.Graph.DeclarationsInFile("b.py") {
				if d.Name == "bar" {
					updated = rb
					break wait
				}
			}
		case <-deadline:
			t.Fatal("no rebuild picked up b.py")
		}
	}
	assert.Greater(t, updated.Seq, 1)
	assert.NotEmpty(t, updated.Changes)
	require.NotNil(t, updated.Diff)
	assert.False(t, updated.Diff.Empty())
	assert.NotEmpty(t, updated.Diff.DeclarationsAdded)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}

	metas, err := snapshots.List(context.Background(), graph.ProjectHash(updated.Result.Graph.ProjectRoot()), 0)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
	assert.Equal(t, updated.Result.Graph.Hash(), metas[0].GraphHash)
}

func TestRunner_MissingRoot(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "gone"), builder.NewBuilder(), WithRunnerLogger(quietLogger()))
	assert.Error(t, r.Run(t.Context()))
}
