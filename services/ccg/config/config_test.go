// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5*time.Second, cfg.ParseTimeout)
	assert.Equal(t, 50000, cfg.MaxFiles)
	assert.Equal(t, int64(10<<20), cfg.MaxFileSize)
	assert.Equal(t, 3, cfg.ReadRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.RetryBackoff)
	assert.True(t, cfg.RespectGitignore)
	assert.Contains(t, cfg.IgnoreGlobs, "node_modules")
	assert.Contains(t, cfg.IgnoreGlobs, ".ccg")
	assert.Len(t, cfg.Languages, len(ast.AllLanguages()))
	assert.Empty(t, cfg.DisabledLanguages())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 4096, cfg.Cache.MemoryEntries)
	assert.Equal(t, 20, cfg.Snapshots.Keep)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)

	cfg.Root = "."
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overlay(t *testing.T) {
	cfg, err := Load([]byte(`
parse_timeout: 2s
ignore_globs: ["gen/**"]
languages:
  rust: false
  cpp: false
cache:
  enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.ParseTimeout)
	assert.Equal(t, []string{"gen/**"}, cfg.IgnoreGlobs, "lists replace")
	assert.True(t, cfg.Languages["python"], "maps merge")
	assert.Equal(t, []ast.Language{ast.LanguageCpp, ast.LanguageRust}, cfg.DisabledLanguages())
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 4096, cfg.Cache.MemoryEntries)
	assert.Equal(t, 50000, cfg.MaxFiles)
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load([]byte("parse_timeout: [oops"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing root", func(c *Config) { c.Root = "" }, false},
		{"bad glob", func(c *Config) { c.IgnoreGlobs = []string{"a["} }, false},
		{"unknown language", func(c *Config) { c.Languages["cobol"] = true }, false},
		{"zero timeout", func(c *Config) { c.ParseTimeout = 0 }, false},
		{"zero max files", func(c *Config) { c.MaxFiles = 0 }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"too many retries", func(c *Config) { c.ReadRetries = 11 }, false},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = 0 }, false},
		{"negative keep", func(c *Config) { c.Snapshots.Keep = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Root = "."
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadForRoot(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		root := t.TempDir()
		cfg, err := LoadForRoot(root)
		require.NoError(t, err)
		assert.Equal(t, root, cfg.Root)
		assert.Equal(t, Default().MaxFiles, cfg.MaxFiles)
	})

	t.Run("override file", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("max_files: 10\n"), 0o644))
		cfg, err := LoadForRoot(root)
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.MaxFiles)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("malformed file fails", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("max_files: [\n"), 0o644))
		_, err := LoadForRoot(root)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestScannerConfig(t *testing.T) {
	cfg := Default()
	cfg.Root = "/proj"
	cfg.Languages["java"] = false
	cfg.ReadRetries = 0

	sc := cfg.ScannerConfig()
	assert.Equal(t, "/proj", sc.Root)
	assert.True(t, sc.DisabledLanguages[ast.LanguageJava])
	assert.False(t, sc.DisabledLanguages[ast.LanguageGo])
	assert.Equal(t, -1, sc.ReadRetries, "zero retries disables retrying")
	assert.Equal(t, cfg.IgnoreGlobs, sc.IgnorePatterns)

	cfg.IgnoreGlobs = nil
	assert.NotNil(t, cfg.ScannerConfig().IgnorePatterns, "nil globs mean no ignores, not scanner defaults")
}

func TestStoreDirAndWorkers(t *testing.T) {
	cfg := Default()
	cfg.Cache.Dir = "/tmp/ccg-store"
	dir, err := cfg.StoreDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ccg-store", dir)

	assert.Positive(t, cfg.EffectiveWorkers())
	cfg.Workers = 3
	assert.Equal(t, 3, cfg.EffectiveWorkers())
}
