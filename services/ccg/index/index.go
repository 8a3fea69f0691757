// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides the project-wide SymbolIndex used by the resolver.
//
// The index maps (name, language, enclosing scope) to candidate
// declarations. It is filled once from every extracted file, frozen, and
// then shared read-only by resolution workers.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
)

// DefaultMaxDeclarations bounds the number of declarations one index holds.
const DefaultMaxDeclarations = 2_000_000

var (
	// ErrFrozen is returned by Add after Freeze.
	ErrFrozen = errors.New("symbol index is frozen")

	// ErrDuplicateDeclaration is returned for an id already in the index.
	ErrDuplicateDeclaration = errors.New("duplicate declaration id")

	// ErrMaxDeclarationsExceeded is returned when the index is full.
	ErrMaxDeclarationsExceeded = errors.New("symbol index capacity exceeded")

	// ErrInvalidDeclaration is returned for declarations without id or name.
	ErrInvalidDeclaration = errors.New("invalid declaration")
)

// Key addresses candidates. An empty Scope matches every enclosing scope.
type Key struct {
	Name     string
	Language ast.Language
	Scope    string
}

type nameKey struct {
	name string
	lang ast.Language
}

// Options configures a SymbolIndex.
type Options struct {
	// MaxDeclarations caps the index size. Default: DefaultMaxDeclarations.
	MaxDeclarations int
}

// Option is a functional option for NewSymbolIndex.
type Option func(*Options)

// WithMaxDeclarations sets the capacity.
func WithMaxDeclarations(n int) Option {
	return func(o *Options) { o.MaxDeclarations = n }
}

// Stats describes the index contents.
type Stats struct {
	Declarations int
	Files        int
	ByKind       map[ast.Kind]int
	Frozen       bool
}

// SymbolIndex is the build-then-freeze declaration index.
//
// Description:
//
//	Add is called while files are extracted; Freeze marks the resolution
//	barrier. Lookups return declarations sorted by file and position so
//	resolution output is deterministic.
//
// Thread Safety:
//
//	Add is safe for concurrent use and fails with ErrFrozen after Freeze.
//	Read methods take no locks and are safe for concurrent use once Freeze
//	has returned. Before Freeze they may only be called by the goroutine
//	that adds.
type SymbolIndex struct {
	mu     sync.Mutex
	frozen atomic.Bool

	byID    map[string]graph.Declaration
	byName  map[nameKey][]string
	byScope map[Key][]string
	byFile  map[string][]string
	modules map[string]string

	options Options
}

// NewSymbolIndex creates an empty index.
func NewSymbolIndex(opts ...Option) *SymbolIndex {
	options := Options{MaxDeclarations: DefaultMaxDeclarations}
	for _, opt := range opts {
		opt(&options)
	}
	return &SymbolIndex{
		byID:    make(map[string]graph.Declaration),
		byName:  make(map[nameKey][]string),
		byScope: make(map[Key][]string),
		byFile:  make(map[string][]string),
		modules: make(map[string]string),
		options: options,
	}
}

// Add inserts declarations.
//
// Description:
//
//	Valid declarations are added even when others in the same call are
//	rejected; the first declaration with a given id wins, matching the
//	assembler.
//
// Outputs:
//
//	error - ErrFrozen, or the joined ErrDuplicateDeclaration,
//	        ErrInvalidDeclaration and ErrMaxDeclarationsExceeded errors of
//	        rejected entries.
//
// Thread Safety: Safe for concurrent use.
func (idx *SymbolIndex) Add(decls ...graph.Declaration) error {
	if idx.frozen.Load() {
		return ErrFrozen
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.frozen.Load() {
		return ErrFrozen
	}

	var errs []error
	for _, d := range decls {
		switch {
		case d.ID == "" || (d.Name == "" && d.Kind != ast.KindModule):
			errs = append(errs, fmt.Errorf("%w: %s %q in %s", ErrInvalidDeclaration, d.Kind, d.Name, d.FilePath))
			continue
		case len(idx.byID) >= idx.options.MaxDeclarations:
			errs = append(errs, fmt.Errorf("%w: limit %d", ErrMaxDeclarationsExceeded, idx.options.MaxDeclarations))
			return errors.Join(errs...)
		}
		if _, exists := idx.byID[d.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateDeclaration, d.ID))
			continue
		}
		idx.addLocked(d)
	}
	return errors.Join(errs...)
}

func (idx *SymbolIndex) addLocked(d graph.Declaration) {
	idx.byID[d.ID] = d
	idx.byFile[d.FilePath] = append(idx.byFile[d.FilePath], d.ID)
	if d.Kind == ast.KindModule {
		if _, ok := idx.modules[d.FilePath]; !ok {
			idx.modules[d.FilePath] = d.ID
		}
		return
	}
	nk := nameKey{name: d.Name, lang: d.Language}
	idx.byName[nk] = append(idx.byName[nk], d.ID)
	sk := Key{Name: d.Name, Language: d.Language, Scope: d.ParentID}
	idx.byScope[sk] = append(idx.byScope[sk], d.ID)
}

// Freeze ends the build phase and sorts every posting list. Calling it
// again is a no-op.
func (idx *SymbolIndex) Freeze() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.frozen.Load() {
		return
	}
	for k, ids := range idx.byName {
		idx.byName[k] = idx.sortedLocked(ids)
	}
	for k, ids := range idx.byScope {
		idx.byScope[k] = idx.sortedLocked(ids)
	}
	for k, ids := range idx.byFile {
		idx.byFile[k] = idx.sortedLocked(ids)
	}
	idx.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (idx *SymbolIndex) Frozen() bool {
	return idx.frozen.Load()
}

func (idx *SymbolIndex) sortedLocked(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool {
		return declLess(idx.byID[ids[i]], idx.byID[ids[j]])
	})
	return ids
}

// declLess orders by file, start byte, enclosing first, then id.
func declLess(a, b graph.Declaration) bool {
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	if a.Span.Start != b.Span.Start {
		return a.Span.Start < b.Span.Start
	}
	if a.Span.End != b.Span.End {
		return a.Span.End > b.Span.End
	}
	return a.ID < b.ID
}

// Lookup returns the non-module declarations matching key.
func (idx *SymbolIndex) Lookup(key Key) []graph.Declaration {
	if key.Scope == "" {
		return idx.resolve(idx.byName[nameKey{name: key.Name, lang: key.Language}])
	}
	return idx.resolve(idx.byScope[key])
}

// Declaration returns the declaration with the given id.
func (idx *SymbolIndex) Declaration(id string) (graph.Declaration, bool) {
	d, ok := idx.byID[id]
	return d, ok
}

// InFile returns every declaration of a file, module first.
func (idx *SymbolIndex) InFile(path string) []graph.Declaration {
	return idx.resolve(idx.byFile[path])
}

// Members returns the declarations directly enclosed by scopeID.
func (idx *SymbolIndex) Members(scopeID string) []graph.Declaration {
	parent, ok := idx.byID[scopeID]
	if !ok {
		return nil
	}
	var out []graph.Declaration
	for _, id := range idx.byFile[parent.FilePath] {
		if d := idx.byID[id]; d.ParentID == scopeID {
			out = append(out, d)
		}
	}
	return out
}

// ModuleOf returns the module declaration of a file.
func (idx *SymbolIndex) ModuleOf(path string) (graph.Declaration, bool) {
	id, ok := idx.modules[path]
	if !ok {
		return graph.Declaration{}, false
	}
	return idx.byID[id], true
}

// HasFile reports whether any declaration of path was added.
func (idx *SymbolIndex) HasFile(path string) bool {
	_, ok := idx.modules[path]
	return ok
}

// Files returns all indexed file paths, sorted.
func (idx *SymbolIndex) Files() []string {
	files := make([]string, 0, len(idx.modules))
	for f := range idx.modules {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Len returns the number of declarations.
func (idx *SymbolIndex) Len() int {
	return len(idx.byID)
}

// Stats summarizes the index.
func (idx *SymbolIndex) Stats() Stats {
	s := Stats{
		Declarations: len(idx.byID),
		Files:        len(idx.modules),
		ByKind:       make(map[ast.Kind]int),
		Frozen:       idx.frozen.Load(),
	}
	for _, d := range idx.byID {
		s.ByKind[d.Kind]++
	}
	return s
}

func (idx *SymbolIndex) resolve(ids []string) []graph.Declaration {
	if len(ids) == 0 {
		return nil
	}
	out := make([]graph.Declaration, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.byID[id])
	}
	if !idx.frozen.Load() {
		sort.Slice(out, func(i, j int) bool { return declLess(out[i], out[j]) })
	}
	return out
}
