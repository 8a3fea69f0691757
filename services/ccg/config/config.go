// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates CCG build configuration.
//
// Configuration is layered: embedded defaults, then the optional
// <root>/ccg.config.yaml, then whatever the caller (usually the CLI) sets
// on the returned struct. Validate runs last.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// FileName is the per-project override file looked up in the root.
const FileName = "ccg.config.yaml"

// storeDirName is the directory created under the user cache dir.
const storeDirName = "aleutian-ccg"

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRootRequired is returned by Validate when Root is empty.
	ErrRootRequired = errors.New("root path is required")
)

// Config is the full build configuration.
//
// Thread Safety: Immutable after Validate; safe for concurrent reads.
type Config struct {
	// Root is the project directory. Normally set from the command line.
	Root string `yaml:"root"`

	// IgnoreGlobs are '/'-separated globs matched against relative paths
	// and base names.
	IgnoreGlobs []string `yaml:"ignore_globs" validate:"dive,glob"`

	// RespectGitignore applies the root .gitignore.
	RespectGitignore bool `yaml:"respect_gitignore"`

	// Languages enables or disables each language. A language missing
	// from the map is enabled.
	Languages map[string]bool `yaml:"languages" validate:"dive,keys,language,endkeys"`

	// ParseTimeout bounds parsing of one file.
	ParseTimeout time.Duration `yaml:"parse_timeout" validate:"gt=0"`

	// MaxFiles caps the number of files parsed.
	MaxFiles int `yaml:"max_files" validate:"gt=0"`

	// MaxFileSize is the largest file read, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gt=0"`

	// Workers is the extraction and resolution parallelism. 0 means NumCPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	// ReadRetries is how often a transient read error is retried.
	ReadRetries int `yaml:"read_retries" validate:"gte=0,lte=10"`

	// RetryBackoff is the linear backoff step between read retries.
	RetryBackoff time.Duration `yaml:"retry_backoff" validate:"gte=0"`

	Cache     CacheConfig    `yaml:"cache"`
	Snapshots SnapshotConfig `yaml:"snapshots"`
	Watch     WatchConfig    `yaml:"watch"`
}

// CacheConfig controls the extraction cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// MemoryEntries is the LRU capacity.
	MemoryEntries int `yaml:"memory_entries" validate:"gte=0"`

	// Dir holds the on-disk store shared by the cache and snapshots.
	// Empty selects the user cache directory.
	Dir string `yaml:"dir"`
}

// SnapshotConfig controls graph snapshots.
type SnapshotConfig struct {
	Enabled bool `yaml:"enabled"`

	// Keep is how many snapshots per project survive pruning. 0 keeps all.
	Keep int `yaml:"keep" validate:"gte=0"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is the quiet period after the last change before a rebuild.
	Debounce time.Duration `yaml:"debounce" validate:"gt=0"`

	// MinInterval is the minimum time between two rebuilds.
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
			return scanner.ValidatePattern(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("language", func(fl validator.FieldLevel) bool {
			return isLanguage(fl.Field().String())
		})
		validate = v
	})
	return validate
}

func isLanguage(name string) bool {
	for _, l := range ast.AllLanguages() {
		if string(l) == name {
			return true
		}
	}
	return false
}

// Default returns the embedded defaults.
//
// Description:
//
//	Parses the embedded defaults.yaml. The embedded file is part of the
//	binary, so a parse error is a programming error and panics.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load overlays YAML data on the defaults.
//
// Keys missing from data keep their default. Language maps merge, lists
// replace. The result is not validated.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path on the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadForRoot loads <root>/ccg.config.yaml over the defaults and sets Root.
//
// Description:
//
//	A missing override file is not an error; zero-config projects get the
//	defaults. Only a file that exists and cannot be read or parsed fails.
//
// Inputs:
//
//	root - Project directory. May be relative.
//
// Outputs:
//
//	*Config - Unvalidated configuration with Root set.
//	error - Non-nil if the override file is unreadable or malformed.
func LoadForRoot(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	return cfg, nil
}

// Validate checks field constraints and requires Root.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrRootRequired)
	}
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, describe(verrs))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
	}
	return msg
}

// EffectiveWorkers resolves Workers to a positive count.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// DisabledLanguages returns the languages switched off, sorted.
func (c *Config) DisabledLanguages() []ast.Language {
	var out []ast.Language
	for name, on := range c.Languages {
		if !on {
			out = append(out, ast.Language(name))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScannerConfig maps the configuration onto a scanner configuration.
func (c *Config) ScannerConfig() scanner.Config {
	disabled := make(map[ast.Language]bool)
	for _, l := range c.DisabledLanguages() {
		disabled[l] = true
	}
	ignores := c.IgnoreGlobs
	if ignores == nil {
		ignores = []string{}
	}
	retries := c.ReadRetries
	if retries == 0 {
		retries = -1
	}
	return scanner.Config{
		Root:              c.Root,
		IgnorePatterns:    ignores,
		RespectGitignore:  c.RespectGitignore,
		DisabledLanguages: disabled,
		MaxFiles:          c.MaxFiles,
		MaxFileSize:       c.MaxFileSize,
		ReadRetries:       retries,
		RetryBackoff:      c.RetryBackoff,
	}
}

// StoreDir returns the directory of the on-disk store.
func (c *Config) StoreDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating user cache dir: %w", err)
	}
	return filepath.Join(base, storeDirName), nil
}
