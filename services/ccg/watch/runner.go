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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianCCG/services/ccg/builder"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
)

// Rebuild describes one build performed by a Runner.
type Rebuild struct {
	// Seq numbers builds from 1; build 1 is the initial build.
	Seq int

	// Changes triggered the build. Nil for the initial build.
	Changes []Change

	// Result is the build result. Its Graph is nil when Err is set.
	Result *builder.Result

	// Diff compares the graph with the previous successful build.
	// Nil for the first successful build.
	Diff *graph.GraphDiff

	// Snapshot is the saved or reused snapshot, when snapshots are enabled.
	Snapshot *graph.SnapshotMetadata

	Err error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDebounce sets the quiet period before a batch triggers a rebuild.
func WithDebounce(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.watchOpts.Debounce = d
	}
}

// WithMinInterval sets the minimum time between two rebuilds. Zero means
// no limit.
func WithMinInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.minInterval = d
	}
}

// WithIgnorePatterns sets the watcher's ignore globs.
func WithIgnorePatterns(patterns []string) RunnerOption {
	return func(r *Runner) {
		r.watchOpts.IgnorePatterns = patterns
	}
}

// WithSnapshots saves each changed graph and keeps the newest keep
// snapshots of the project. keep <= 0 disables pruning.
func WithSnapshots(m *graph.SnapshotManager, keep int) RunnerOption {
	return func(r *Runner) {
		r.snapshots = m
		r.keep = keep
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithOnRebuild registers a callback invoked after every build, from the
// Run goroutine.
func WithOnRebuild(fn func(Rebuild)) RunnerOption {
	return func(r *Runner) {
		r.onRebuild = fn
	}
}

// Runner keeps a graph current while files change.
//
// Description:
//
//	Run builds once, then rebuilds after every debounced batch of changes,
//	no more often than the minimum interval. Each new graph is diffed
//	against the previous one and, when a SnapshotManager is configured,
//	saved if its hash changed.
//
// Thread Safety:
//
//	Run must not be called concurrently on the same Runner.
type Runner struct {
	root        string
	builder     *builder.Builder
	watchOpts   Options
	minInterval time.Duration
	snapshots   *graph.SnapshotManager
	keep        int
	logger      *slog.Logger
	onRebuild   func(Rebuild)

	mu      sync.Mutex
	queued  []Change
	pending chan struct{}

	seq  int
	last *graph.CodeContextGraph
}

// NewRunner creates a Runner for root.
func NewRunner(root string, b *builder.Builder, opts ...RunnerOption) *Runner {
	r := &Runner{
		root:      root,
		builder:   b,
		watchOpts: DefaultOptions(),
		pending:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.watchOpts.Logger = r.logger
	return r
}

// Run watches and rebuilds until ctx is cancelled.
//
// Outputs:
//
//	error - Nil on cancellation. Otherwise the watcher setup error, the
//	        initial build's *builder.FatalInputError, or the error of a
//	        rebuild that found the root gone.
func (r *Runner) Run(ctx context.Context) error {
	w, err := NewWatcher(r.root, r.enqueue, r.watchOpts)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	r.logger.Info("watching", slog.String("root", w.Root()))
	if err := r.rebuild(ctx, nil); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	limit := rate.Inf
	if r.minInterval > 0 {
		limit = rate.Every(r.minInterval)
	}
	limiter := rate.NewLimiter(limit, 1)
	// The initial build consumed the first slot.
	limiter.Allow()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.pending:
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		changes := r.drain()
		if len(changes) == 0 {
			continue
		}
		if err := r.rebuild(ctx, changes); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (r *Runner) enqueue(changes []Change) {
	r.mu.Lock()
	r.queued = append(r.queued, changes...)
	r.mu.Unlock()
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

func (r *Runner) drain() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queued) == 0 {
		return nil
	}
	out := dedupe(r.queued)
	r.queued = nil
	return out
}

// rebuild runs one build. It returns an error only when watching cannot
// continue.
func (r *Runner) rebuild(ctx context.Context, changes []Change) error {
	r.seq++
	rb := Rebuild{Seq: r.seq, Changes: changes}
	defer func() {
		if r.onRebuild != nil {
			r.onRebuild(rb)
		}
	}()

	if len(changes) > 0 {
		r.logger.Debug("rebuilding", slog.Int("seq", rb.Seq), slog.Int("changes", len(changes)))
	}
	res, err := r.builder.Build(ctx, r.root)
	rb.Result = res
	if err != nil {
		rb.Err = err
		recordRebuild(ctx, "failed")
		initial := r.last == nil && len(changes) == 0
		if initial || errors.Is(err, builder.ErrRootNotFound) || errors.Is(err, builder.ErrRootNotDir) ||
			errors.Is(err, builder.ErrCanceled) {
			return err
		}
		r.logger.Warn("rebuild failed, keeping previous graph",
			slog.Int("seq", rb.Seq),
			slog.String("error", err.Error()),
		)
		return nil
	}

	g := res.Graph
	if r.last != nil {
		diff, err := graph.DiffGraphs(r.last, g)
		if err == nil {
			rb.Diff = diff
			r.logDiff(rb.Seq, diff)
		}
	}
	r.last = g

	if r.snapshots != nil {
		meta, saved, err := r.snapshots.SaveIfChanged(ctx, g, fmt.Sprintf("watch #%d", rb.Seq))
		switch {
		case err != nil:
			r.logger.Warn("saving snapshot", slog.String("error", err.Error()))
		case saved && r.keep > 0:
			rb.Snapshot = meta
			if n, err := r.snapshots.Prune(ctx, meta.ProjectHash, r.keep); err != nil {
				r.logger.Warn("pruning snapshots", slog.String("error", err.Error()))
			} else if n > 0 {
				r.logger.Debug("pruned snapshots", slog.Int("removed", n))
			}
		default:
			rb.Snapshot = meta
		}
	}

	outcome := "unchanged"
	if rb.Diff == nil || !rb.Diff.Empty() {
		outcome = "changed"
	}
	recordRebuild(ctx, outcome)
	return nil
}

func (r *Runner) logDiff(seq int, diff *graph.GraphDiff) {
	if diff.Empty() {
		r.logger.Info("graph unchanged", slog.Int("seq", seq), slog.String("graph_hash", diff.TargetHash))
		return
	}
	r.logger.Info("graph updated",
		slog.Int("seq", seq),
		slog.Int("declarations_added", len(diff.DeclarationsAdded)),
		slog.Int("declarations_removed", len(diff.DeclarationsRemoved)),
		slog.Int("declarations_modified", len(diff.DeclarationsModified)),
		slog.Int("edges_added", len(diff.EdgesAdded)),
		slog.Int("edges_removed", len(diff.EdgesRemoved)),
		slog.Int("files_affected", diff.Summary.FilesAffected),
		slog.String("graph_hash", diff.TargetHash),
	)
}
