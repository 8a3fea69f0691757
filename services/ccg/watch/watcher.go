// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch rebuilds a Code Context Graph when files under a project
// root change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

var (
	// ErrNilHandler indicates NewWatcher was called without a handler.
	ErrNilHandler = errors.New("change handler must not be nil")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("watcher already started")
)

// Op is the kind of a file system change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

// String returns the lowercase operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one file system change under the root.
type Change struct {
	// Path is relative to the root, with forward slashes.
	Path string
	Op   Op
	Time time.Time
}

// Handler receives a debounced batch of changes, deduplicated by path and
// sorted by path. It is called from a single goroutine.
type Handler func(changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the tree must stay quiet before a batch is
	// delivered. Default: 300ms.
	Debounce time.Duration

	// IgnorePatterns are gobwas globs matched against the relative path,
	// the base name and every parent directory name. Nil means
	// DefaultIgnorePatterns.
	IgnorePatterns []string

	// BufferSize bounds pending events between the reader and the
	// debouncer. Default: 1024.
	BufferSize int

	Logger *slog.Logger
}

// DefaultIgnorePatterns are the scanner defaults plus editor swap files and
// the local store directory.
func DefaultIgnorePatterns() []string {
	out := append([]string(nil), scanner.DefaultIgnorePatterns...)
	return append(out, ".ccg", "*.swp", "*.swx", "*~", "*.tmp", ".#*")
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:   300 * time.Millisecond,
		BufferSize: 1024,
	}
}

// Watcher batches file system events under a root.
//
// Thread Safety:
//
//	Start and Stop may be called from any goroutine. The handler runs on
//	the debounce goroutine only.
type Watcher struct {
	root     string
	handler  Handler
	debounce time.Duration
	matchers []glob.Glob
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	changes  chan Change
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// NewWatcher creates a watcher for root.
//
// Inputs:
//
//	root - Directory to watch recursively.
//	handler - Receives debounced batches. Must not be nil.
//	opts - Options; zero fields take defaults.
//
// Outputs:
//
//	*Watcher - Call Start to begin watching and Stop to release it.
//	error - ErrNilHandler, scanner.ErrInvalidPattern, or an fsnotify error.
func NewWatcher(root string, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}
	if opts.IgnorePatterns == nil {
		opts.IgnorePatterns = DefaultIgnorePatterns()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	matchers := make([]glob.Glob, 0, len(opts.IgnorePatterns))
	for _, p := range opts.IgnorePatterns {
		m, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Join(scanner.ErrInvalidPattern, fmt.Errorf("pattern %q: %w", p, err))
		}
		matchers = append(matchers, m)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:     abs,
		handler:  handler,
		debounce: opts.Debounce,
		matchers: matchers,
		logger:   opts.Logger,
		fsw:      fsw,
		changes:  make(chan Change, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start watches every non-ignored directory under the root and begins
// delivering batches. Watching stops when ctx is cancelled or Stop is
// called; a pending batch is flushed first.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.readEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching and waits for the goroutines to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if err := w.fsw.Close(); err != nil {
			w.logger.Debug("closing fsnotify watcher", slog.String("error", err.Error()))
		}
	})
	w.wg.Wait()
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string {
	return w.root
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.ignored(w.rel(p)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) rel(p string) string {
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

// ignored reports whether rel or any of its parent directories matches an
// ignore pattern.
func (w *Watcher) ignored(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, m := range w.matchers {
		if m.Match(rel) {
			return true
		}
	}
	for _, seg := range strings.Split(rel, "/") {
		for _, m := range w.matchers {
			if m.Match(seg) {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) readEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel := w.rel(event.Name)
			if w.ignored(rel) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addNewDir(event.Name)
				}
			}
			w.send(Change{Path: rel, Op: convertOp(event.Op), Time: time.Now()})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) send(c Change) {
	select {
	case w.changes <- c:
	default:
		w.logger.Warn("watch buffer full, dropping event", slog.String("path", c.Path))
	}
}

// addNewDir watches a directory created after Start. Files written into it
// before the watch was registered are reported as created.
func (w *Watcher) addNewDir(dir string) {
	if err := w.addRecursive(dir); err != nil {
		w.logger.Warn("cannot watch new directory",
			slog.String("path", w.rel(dir)),
			slog.String("error", err.Error()),
		)
		return
	}
	now := time.Now()
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := w.rel(p)
		if w.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			w.send(Change{Path: rel, Op: OpCreate, Time: now})
		}
		return nil
	})
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	var (
		batch  []Change
		timer  *time.Timer
		timerC <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(batch) == 0 {
			return
		}
		w.handler(dedupe(batch))
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}

// dedupe keeps the last change per path, sorted by path.
func dedupe(changes []Change) []Change {
	last := make(map[string]Change, len(changes))
	for _, c := range changes {
		last[path.Clean(c.Path)] = c
	}
	out := make([]Change, 0, len(last))
	for p, c := range last {
		c.Path = p
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
