// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Tree is a parsed syntax tree owned by the adapter that produced it.
//
// Callers must call Close when done. Close is idempotent.
type Tree interface {
	// Language of the tree.
	Language() Language

	// FilePath is the root-relative path the tree was parsed from.
	FilePath() string

	// Content returns the source bytes the tree was parsed from.
	Content() []byte

	// Close releases native resources held by the tree.
	Close()
}

// Adapter binds one grammar to the normalized declaration model.
//
// Description:
//
//	An adapter has exactly two capabilities: turning bytes into a Tree and
//	turning a Tree into raw declarations and references. Adapters are
//	stateless and hold no per-file data between calls.
//
//	Parse never panics on malformed input. Syntax errors, invalid encodings,
//	oversized content and timeouts are reported as *ParseFailure.
//
//	Extract maps the language's native constructs onto the normalized kinds
//	following fixed per-language rules (see doc.go). Extract does not resolve
//	anything: calls, imports and inheritance are emitted as RawReferences.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Each Parse call creates
//	its own native parser instance.
type Adapter interface {
	// Language returns the language this adapter handles.
	Language() Language

	// Extensions returns the lowercase file extensions handled, including the dot.
	Extensions() []string

	// Parse builds a syntax tree. Errors are always *ParseFailure.
	Parse(ctx context.Context, content []byte, filePath string) (Tree, error)

	// Extract walks a tree produced by this adapter's Parse.
	Extract(ctx context.Context, tree Tree) (*Extraction, error)
}

// Registry maps languages and extensions to adapters.
//
// Description:
//
//	Registry is the static adapter table. DefaultRegistry returns one
//	holding every built-in adapter; tests may build smaller registries.
//
// Thread Safety:
//
//	Registry is safe for concurrent use. Registration uses write locks,
//	lookups use read locks.
type Registry struct {
	mu sync.RWMutex

	byLanguage  map[Language]Adapter
	byExtension map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		byLanguage:  make(map[Language]Adapter),
		byExtension: make(map[string]Adapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry of built-in adapters.
//
// Example:
//
//	adapter, ok := ast.DefaultRegistry().GetByExtension(".py")
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(
			NewPythonAdapter(),
			NewJacAdapter(),
			NewJavaScriptAdapter(),
			NewJavaAdapter(),
			NewCppAdapter(),
			NewRustAdapter(),
			NewGoAdapter(),
		)
	})
	return defaultRegistry
}

// Register adds an adapter under its language and all its extensions,
// replacing previous registrations.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[a.Language()] = a
	for _, ext := range a.Extensions() {
		r.byExtension[strings.ToLower(ext)] = a
	}
}

// GetByLanguage returns the adapter for a language.
func (r *Registry) GetByLanguage(lang Language) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byLanguage[lang]
	return a, ok
}

// GetByExtension returns the adapter for a file extension such as ".py".
// Lookup is case-insensitive.
func (r *Registry) GetByExtension(ext string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byExtension[strings.ToLower(ext)]
	return a, ok
}

// Languages returns the registered languages, sorted.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]Language, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
