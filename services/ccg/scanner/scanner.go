// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner walks a project root and turns source files into parse units.
//
// The scanner only reads. It classifies every file it visits, skips
// ignored paths, and reports each file it cannot hand to a grammar adapter
// (unsupported, disabled, too large, binary, unreadable) as a diagnostic.
// Walk order is lexical, so repeated scans of an unchanged tree produce the
// same sequence.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
)

// =============================================================================
// Configuration
// =============================================================================

// DefaultMaxFiles is the default cap on parse units per scan.
const DefaultMaxFiles = 50000

// DefaultMaxFileSize is the default per-file size limit (10MB).
const DefaultMaxFileSize int64 = ast.DefaultMaxFileSize

// DefaultReadRetries is how many times a transient read error is retried.
const DefaultReadRetries = 3

// DefaultRetryBackoff is the base delay between read retries. The n-th retry
// waits n times this value.
const DefaultRetryBackoff = 20 * time.Millisecond

// DefaultIgnorePatterns are vendor, build and tooling directories skipped by
// default. Patterns are matched against both the relative path and the base
// name of every entry.
var DefaultIgnorePatterns = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"vendor",
	"third_party",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".ruff_cache",
	".tox",
	"venv",
	".venv",
	"site-packages",
	"build",
	"dist",
	"target",
	".cargo",
	".idea",
	".vscode",
	"coverage",
	"*.min.js",
	"*.pyc",
}

// Config holds configuration for the file scanner.
type Config struct {
	// Root is the directory to scan (required).
	Root string

	// IgnorePatterns are glob patterns ('/' separated) for paths to skip.
	// A nil slice uses DefaultIgnorePatterns; an empty non-nil slice
	// disables pattern ignores.
	IgnorePatterns []string

	// RespectGitignore applies the root .gitignore when present.
	RespectGitignore bool

	// DisabledLanguages lists languages whose files are reported as
	// language-disabled instead of being parsed.
	DisabledLanguages map[ast.Language]bool

	// MaxFiles caps the number of parse units produced (default 50,000).
	MaxFiles int

	// MaxFileSize is the largest file read, in bytes (default 10MB).
	MaxFileSize int64

	// ReadRetries is the number of retries for transient read errors.
	// Negative disables retries; zero uses DefaultReadRetries.
	ReadRetries int

	// RetryBackoff is the base linear backoff between retries.
	RetryBackoff time.Duration

	// Registry provides extension lookups. Nil uses ast.DefaultRegistry().
	Registry *ast.Registry

	// ReadFile reads a file. Nil uses os.ReadFile.
	ReadFile func(name string) ([]byte, error)

	// Logger receives debug output. Nil uses slog.Default().
	Logger *slog.Logger
}

// =============================================================================
// Output types
// =============================================================================

// ParseUnit is one classified, readable source file.
//
// A ParseUnit is immutable once created.
type ParseUnit struct {
	// AbsPath is the absolute path on disk.
	AbsPath string

	// RelPath is the root-relative, slash-separated path.
	RelPath string

	// Language is the detected language.
	Language ast.Language

	// Content is the raw file content.
	Content []byte

	// ContentHash is the hex SHA-256 of Content.
	ContentHash string
}

// FileEntry describes one visited file, whether or not it was parsed.
type FileEntry struct {
	// RelPath is the root-relative, slash-separated path.
	RelPath string

	// Size is the file size in bytes.
	Size int64

	// Language is the detected language, empty when unsupported.
	Language ast.Language
}

// Item is one element of a scan.
//
// Exactly one of Unit and Diagnostics describes the outcome for Entry: a
// parseable file carries a Unit, a skipped file carries diagnostics. A
// project-wide notice (for example max-files-reached) has a nil Entry.
type Item struct {
	Entry       *FileEntry
	Unit        *ParseUnit
	Diagnostics []diag.Diagnostic
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrRootPathEmpty indicates the root path was not specified.
	ErrRootPathEmpty = errors.New("root path cannot be empty")

	// ErrRootPathNotExist indicates the root path does not exist.
	ErrRootPathNotExist = errors.New("root path does not exist")

	// ErrRootPathNotDir indicates the root path is not a directory.
	ErrRootPathNotDir = errors.New("root path is not a directory")

	// ErrInvalidPattern indicates a glob pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// =============================================================================
// Scanner
// =============================================================================

// Scanner walks a directory tree and yields parse units.
//
// Thread Safety:
//
//	A Scanner may be used for several sequential or concurrent scans; each
//	Scan call performs an independent walk.
type Scanner struct {
	config   Config
	detector *Detector
	logger   *slog.Logger
	readFile func(string) ([]byte, error)
}

// NewScanner creates a new Scanner with the given configuration.
// Patterns are not compiled until Scan is called.
func NewScanner(config Config) *Scanner {
	if config.MaxFiles <= 0 {
		config.MaxFiles = DefaultMaxFiles
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if config.ReadRetries == 0 {
		config.ReadRetries = DefaultReadRetries
	}
	if config.ReadRetries < 0 {
		config.ReadRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = DefaultIgnorePatterns
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readFile := config.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	return &Scanner{
		config:   config,
		detector: NewDetector(config.Registry),
		logger:   logger,
		readFile: readFile,
	}
}

// Root returns the configured root.
func (s *Scanner) Root() string {
	return s.config.Root
}

// Scan walks the configured root and returns a channel of items.
//
// Description:
//
//	The channel is closed when the walk completes or ctx is cancelled.
//	Root validation and pattern compilation happen before the walk starts,
//	so their failures are returned directly. Calling Scan again restarts
//	the walk from the beginning.
//
// Outputs:
//
//	<-chan Item - Items in lexical path order.
//	error - ErrRootPathEmpty, ErrRootPathNotExist, ErrRootPathNotDir or ErrInvalidPattern.
func (s *Scanner) Scan(ctx context.Context) (<-chan Item, error) {
	root, err := s.validateRoot()
	if err != nil {
		return nil, err
	}

	matchers, err := compileGlobs(s.config.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	w := &walk{
		Scanner:  s,
		root:     root,
		matchers: matchers,
		out:      make(chan Item),
	}
	if s.config.RespectGitignore {
		w.gitignore = s.loadGitignore(root)
	}

	go w.run(ctx)
	return w.out, nil
}

// validateRoot checks that the root exists and is a directory, returning
// its absolute, cleaned form.
func (s *Scanner) validateRoot() (string, error) {
	if s.config.Root == "" {
		return "", ErrRootPathEmpty
	}

	root, err := filepath.Abs(s.config.Root)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", s.config.Root, err)
	}

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrRootPathNotExist, root)
	}
	if err != nil {
		return "", fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRootPathNotDir, root)
	}
	return root, nil
}

func (s *Scanner) loadGitignore(root string) *gitignore.GitIgnore {
	p := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(p); err != nil {
		return nil
	}
	gi, err := gitignore.CompileIgnoreFile(p)
	if err != nil {
		s.logger.Warn("ignoring unreadable .gitignore",
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return gi
}

// compileGlobs compiles a slice of glob pattern strings into matchers.
func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, fmt.Errorf("pattern %q: %w", pattern, err))
		}
		matchers = append(matchers, matcher)
	}
	return matchers, nil
}

// ValidatePattern reports whether pattern compiles as an ignore glob.
func ValidatePattern(pattern string) error {
	_, err := compileGlobs([]string{pattern})
	return err
}

// =============================================================================
// Walk
// =============================================================================

// walk is the state of one Scan call.
type walk struct {
	*Scanner
	root      string
	matchers  []glob.Glob
	gitignore *gitignore.GitIgnore
	out       chan Item
	units     int
}

// errStopWalk ends the walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

func (w *walk) run(ctx context.Context) {
	defer close(w.out)

	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		return w.visit(ctx, p, d, walkErr)
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		w.logger.Warn("scan ended early",
			slog.String("root", w.root),
			slog.String("error", err.Error()),
		)
	}
}

func (w *walk) visit(ctx context.Context, p string, d fs.DirEntry, walkErr error) error {
	if p == w.root {
		if walkErr != nil {
			return walkErr
		}
		return nil
	}

	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)

	if walkErr != nil {
		// Unreadable directories are skipped with a diagnostic; the walk goes on.
		entry := &FileEntry{RelPath: rel}
		w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeIOError, "cannot read: %v", walkErr),
		}})
		if d != nil && d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}

	if w.ignored(rel, d.IsDir()) {
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}

	if d.IsDir() {
		return nil
	}
	if !d.Type().IsRegular() {
		// Symlinks, sockets and devices are not followed.
		return nil
	}

	return w.handleFile(ctx, p, rel, d)
}

// ignored reports whether rel matches an ignore glob or the root .gitignore.
func (w *walk) ignored(rel string, isDir bool) bool {
	base := path.Base(rel)
	for _, m := range w.matchers {
		if m.Match(rel) || m.Match(base) {
			return true
		}
	}
	if w.gitignore != nil {
		if w.gitignore.MatchesPath(rel) {
			return true
		}
		if isDir && w.gitignore.MatchesPath(rel+"/") {
			return true
		}
	}
	return false
}

func (w *walk) handleFile(ctx context.Context, abs, rel string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		w.emit(ctx, Item{Entry: &FileEntry{RelPath: rel}, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeIOError, "cannot stat: %v", err),
		}})
		return nil
	}
	entry := &FileEntry{RelPath: rel, Size: info.Size()}

	lang, known, needsContent := w.detector.ByPath(rel)
	if !known && !needsContent {
		w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeUnsupportedLanguage, "no grammar adapter for %q", path.Ext(rel)),
		}})
		return nil
	}

	if info.Size() > w.config.MaxFileSize {
		entry.Language = lang
		w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeFileTooLarge, "file is %d bytes, limit is %d", info.Size(), w.config.MaxFileSize),
		}})
		return nil
	}

	if known && w.config.DisabledLanguages[lang] {
		entry.Language = lang
		w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeLanguageDisabled, "%s is disabled by configuration", lang),
		}})
		return nil
	}

	if known && w.units >= w.config.MaxFiles {
		w.emit(ctx, Item{Diagnostics: []diag.Diagnostic{
			diag.New("", diag.CodeMaxFilesReached, "stopped after %d files; remaining files were not scanned", w.config.MaxFiles),
		}})
		return errStopWalk
	}

	content, err := w.read(ctx, abs)
	if err != nil {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		entry.Language = lang
		w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeIOError, "read failed after %d attempts: %v", w.config.ReadRetries+1, err),
		}})
		return nil
	}

	if isBinary(content) {
		w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
			diag.New(rel, diag.CodeBinaryFile, "content looks binary"),
		}})
		return nil
	}

	if !known {
		lang, known = w.detector.ByContent(content)
		if !known {
			w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
				diag.New(rel, diag.CodeUnsupportedLanguage, "could not classify extensionless file"),
			}})
			return nil
		}
		if w.config.DisabledLanguages[lang] {
			entry.Language = lang
			w.emit(ctx, Item{Entry: entry, Diagnostics: []diag.Diagnostic{
				diag.New(rel, diag.CodeLanguageDisabled, "%s is disabled by configuration", lang),
			}})
			return nil
		}
		if w.units >= w.config.MaxFiles {
			w.emit(ctx, Item{Diagnostics: []diag.Diagnostic{
				diag.New("", diag.CodeMaxFilesReached, "stopped after %d files; remaining files were not scanned", w.config.MaxFiles),
			}})
			return errStopWalk
		}
	}

	entry.Language = lang
	sum := sha256.Sum256(content)
	unit := &ParseUnit{
		AbsPath:     abs,
		RelPath:     rel,
		Language:    lang,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
	}
	w.units++
	if !w.emit(ctx, Item{Entry: entry, Unit: unit}) {
		return fs.SkipAll
	}
	return nil
}

// read reads a file, retrying transient failures with linear backoff.
// Missing files and permission errors are not retried.
func (w *walk) read(ctx context.Context, abs string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= w.config.ReadRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * w.config.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			w.logger.Debug("retrying read",
				slog.String("path", abs),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
		}

		content, err := w.readFile(abs)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			break
		}
	}
	return nil, lastErr
}

// emit sends an item, returning false if ctx was cancelled first.
func (w *walk) emit(ctx context.Context, item Item) bool {
	select {
	case w.out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}
