// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/AleutianCCG/services/ccg/builder"
	"github.com/AleutianAI/AleutianCCG/services/ccg/cache"
	"github.com/AleutianAI/AleutianCCG/services/ccg/config"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	storage "github.com/AleutianAI/AleutianCCG/services/ccg/storage/badger"
)

// project bundles what a command needs to work on one root.
type project struct {
	root      string
	cfg       *config.Config
	db        *storage.DB
	snapshots *graph.SnapshotManager
	builder   *builder.Builder
	logger    *slog.Logger
}

// Close releases the store.
func (p *project) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// loadConfig reads the config for root and applies the global flags.
func (a *app) loadConfig(root string) (*config.Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", root, err)
	}

	var cfg *config.Config
	if a.flags.configPath != "" {
		cfg, err = config.LoadFile(a.flags.configPath)
		if err == nil {
			cfg.Root = abs
		}
	} else {
		cfg, err = config.LoadForRoot(abs)
	}
	if err != nil {
		return nil, err
	}

	if a.flags.workers > 0 {
		cfg.Workers = a.flags.workers
	}
	if a.flags.noCache {
		cfg.Cache.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openProject loads the config, opens the store when the cache or
// snapshots need it, and wires a Builder.
func (a *app) openProject(root string, needStore bool) (*project, error) {
	cfg, err := a.loadConfig(root)
	if err != nil {
		return nil, err
	}
	p := &project{root: cfg.Root, cfg: cfg, logger: a.logger}

	if needStore || cfg.Cache.Enabled || cfg.Snapshots.Enabled {
		dir, err := cfg.StoreDir()
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Root, dir)
		}
		sc := storage.DefaultConfig(dir)
		sc.Logger = a.logger
		p.db, err = storage.Open(sc)
		if err != nil {
			return nil, fmt.Errorf("opening store at %s: %w", dir, err)
		}
		p.snapshots, err = graph.NewSnapshotManager(p.db.DB, a.logger)
		if err != nil {
			return nil, errors.Join(err, p.Close())
		}
	}

	opts := []builder.Option{
		builder.WithConfig(cfg),
		builder.WithLogger(a.logger),
	}
	if cfg.Cache.Enabled {
		c, err := newCache(cfg, p.db, a.logger)
		if err != nil {
			return nil, errors.Join(err, p.Close())
		}
		opts = append(opts, builder.WithCache(c))
	}
	p.builder = builder.NewBuilder(opts...)
	return p, nil
}

func newCache(cfg *config.Config, db *storage.DB, logger *slog.Logger) (*cache.Tiered, error) {
	mem, err := cache.NewMemoryCache(cfg.Cache.MemoryEntries)
	if err != nil {
		return nil, err
	}
	var disk *cache.DiskCache
	if db != nil {
		disk, err = cache.NewDiskCache(db, logger)
		if err != nil {
			return nil, err
		}
	}
	return cache.NewTiered(mem, disk), nil
}

// rootArg returns the first positional argument, defaulting to ".".
func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
