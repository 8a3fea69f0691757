// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/config"
	"github.com/AleutianAI/AleutianCCG/services/ccg/extract"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

// DefaultParseTimeout bounds parsing of one file.
const DefaultParseTimeout = 5 * time.Second

// Progress is reported at every state change and after each extracted file.
type Progress struct {
	RunID string
	State State

	// FilesQueued is the number of files handed to workers so far.
	FilesQueued int

	// FilesDone is the number of files whose extraction finished,
	// successfully or not.
	FilesDone int
}

// ProgressFunc receives progress updates. It is called from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(Progress)

// Options configures a Builder.
type Options struct {
	// Scanner configures the walk. Its Root is replaced by the root passed
	// to Build.
	Scanner scanner.Config

	// Workers bounds extraction and resolution parallelism.
	// Default: runtime.NumCPU().
	Workers int

	// ParseTimeout bounds parsing of one file. Default: 5s.
	ParseTimeout time.Duration

	// Cache is the optional extraction cache.
	Cache extract.ExtractionCache

	// Registry provides grammar adapters. Default: ast.DefaultRegistry().
	Registry *ast.Registry

	// GoModulePath overrides the module path read from <root>/go.mod.
	GoModulePath string

	// Logger receives build logs. Default: slog.Default().
	Logger *slog.Logger

	// Progress is called on state changes and file completions. May be nil.
	Progress ProgressFunc
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Workers:      runtime.NumCPU(),
		ParseTimeout: DefaultParseTimeout,
	}
}

// Option is a functional option for NewBuilder.
type Option func(*Options)

// WithScannerConfig sets the scanner configuration.
func WithScannerConfig(cfg scanner.Config) Option {
	return func(o *Options) {
		o.Scanner = cfg
	}
}

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithParseTimeout sets the per-file parse timeout.
func WithParseTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ParseTimeout = d
	}
}

// WithCache sets the extraction cache.
func WithCache(c extract.ExtractionCache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithRegistry sets the adapter registry.
func WithRegistry(r *ast.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithGoModulePath overrides the Go module path.
func WithGoModulePath(p string) Option {
	return func(o *Options) {
		o.GoModulePath = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Options) {
		o.Progress = fn
	}
}

// WithConfig applies the scanner, worker and timeout settings of cfg.
// Cache and snapshot settings are wired by the caller, which owns the store.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		if cfg == nil {
			return
		}
		o.Scanner = cfg.ScannerConfig()
		o.Workers = cfg.EffectiveWorkers()
		o.ParseTimeout = cfg.ParseTimeout
	}
}
