// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns one parse unit into graph declarations and
// unresolved reference records.
//
// The extractor runs a grammar adapter over a file, gives every raw
// declaration its stable id, adds the file's module declaration as the root
// of its containment tree and emits contains edges for every nesting.
// Calls, imports and inheritance stay unresolved: they are returned as
// References for the resolver, which needs the whole project.
//
// Thread Safety:
//
//	Extractor is safe for concurrent use. Results are owned by the caller.
package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

// DefaultParseTimeout bounds parse plus extraction of one file.
const DefaultParseTimeout = 5 * time.Second

// Reference is an unresolved use site: a call, import, base class or
// other name reference, anchored at the declaration that encloses it.
type Reference struct {
	Kind      ast.RefKind
	Name      string
	Qualifier string
	Names     []string
	Span      ast.Span

	// ScopeID is the innermost enclosing declaration, the module for
	// file-level code.
	ScopeID string

	FilePath string
	Language ast.Language
}

// Result is everything the extractor learned from one file.
type Result struct {
	Path     string
	Language ast.Language

	// Module is the file's module declaration, also Declarations[0].
	Module graph.Declaration

	// Declarations in source order, module first.
	Declarations []graph.Declaration

	// Edges holds one contains edge per non-module declaration.
	Edges []graph.Edge

	// References in source order.
	References []Reference

	// Package is the declared package (Go, Java), empty otherwise.
	Package string

	EntryPoint bool
	Cached     bool
}

// ExtractionCache stores raw extractions keyed by language and content.
type ExtractionCache interface {
	Get(ctx context.Context, lang ast.Language, content []byte) (*ast.Extraction, bool)
	Put(ctx context.Context, lang ast.Language, content []byte, ex *ast.Extraction)
}

// Extractor runs grammar adapters over parse units.
type Extractor struct {
	registry *ast.Registry
	cache    ExtractionCache
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRegistry sets the adapter table. Default: ast.DefaultRegistry().
func WithRegistry(r *ast.Registry) Option {
	return func(e *Extractor) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithCache enables the extraction cache.
func WithCache(c ExtractionCache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithParseTimeout sets the per-file budget. Zero or negative disables it.
func WithParseTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		registry: ast.DefaultRegistry(),
		timeout:  DefaultParseTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses and extracts one unit.
//
// Description:
//
//	A cache hit skips parsing entirely. Otherwise the file is parsed under
//	the per-file timeout and the raw extraction is cached on success.
//
// Inputs:
//
//	ctx - The build context. Cancellation aborts the file.
//	unit - The parse unit. Must not be nil.
//
// Outputs:
//
//	*Result - Declarations, contains edges and references.
//	error - Always a *ast.ParseFailure: syntax error, timeout, cancellation
//	        or a language without an adapter.
func (e *Extractor) Extract(ctx context.Context, unit *scanner.ParseUnit) (*Result, error) {
	if unit == nil {
		return nil, ast.NewParseFailure("", "", "nil parse unit", ast.ErrInvalidContent)
	}
	ctx, span := startExtractSpan(ctx, unit)
	defer span.End()
	start := time.Now()

	raw, cached, err := e.extractRaw(ctx, unit)
	if err != nil {
		pf := ast.AsParseFailure(err, unit.RelPath, unit.Language)
		recordExtractMetrics(ctx, unit.Language, "failure", time.Since(start))
		setExtractSpanFailure(span, pf)
		e.logger.Debug("extraction failed",
			slog.String("file", unit.RelPath),
			slog.String("language", string(unit.Language)),
			slog.String("error", pf.Error()),
		)
		return nil, pf
	}

	res := build(unit.RelPath, unit.Language, unit.Content, raw)
	res.Cached = cached
	outcome := "parsed"
	if cached {
		outcome = "cached"
	}
	recordExtractMetrics(ctx, unit.Language, outcome, time.Since(start))
	setExtractSpanResult(span, len(res.Declarations), len(res.References), cached)
	return res, nil
}

func (e *Extractor) extractRaw(ctx context.Context, unit *scanner.ParseUnit) (*ast.Extraction, bool, error) {
	adapter, ok := e.registry.GetByLanguage(unit.Language)
	if !ok {
		return nil, false, ast.NewParseFailure(unit.RelPath, unit.Language, "no adapter for language", ast.ErrUnsupportedLanguage)
	}

	if e.cache != nil {
		if raw, hit := e.cache.Get(ctx, unit.Language, unit.Content); hit {
			return raw, true, nil
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tree, err := adapter.Parse(ctx, unit.Content, unit.RelPath)
	if err != nil {
		return nil, false, err
	}
	defer tree.Close()

	raw, err := adapter.Extract(ctx, tree)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, ast.NewParseFailure(unit.RelPath, unit.Language, "adapter returned no extraction", ast.ErrParseFailed)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, false, ast.NewParseFailure(unit.RelPath, unit.Language, "parse exceeded time limit", ast.ErrTimeout)
	}

	if e.cache != nil {
		e.cache.Put(ctx, unit.Language, unit.Content, raw)
	}
	return raw, false, nil
}

// FromExtraction converts a raw extraction of relPath into a Result
// without parsing. content must be the bytes the extraction came from.
func FromExtraction(relPath string, lang ast.Language, content []byte, raw *ast.Extraction) *Result {
	if raw == nil {
		raw = &ast.Extraction{Language: lang}
	}
	return build(relPath, lang, content, raw)
}

func build(relPath string, lang ast.Language, content []byte, raw *ast.Extraction) *Result {
	module := graph.Declaration{
		Kind:       ast.KindModule,
		Name:       graph.ModuleName(relPath),
		FilePath:   relPath,
		Span:       fileSpan(content),
		Language:   lang,
		DocComment: raw.ModuleDoc,
	}
	module.ID = graph.DeclarationID(relPath, module.Span, module.Kind)

	res := &Result{
		Path:         relPath,
		Language:     lang,
		Module:       module,
		Declarations: make([]graph.Declaration, 0, len(raw.Declarations)+1),
		Edges:        make([]graph.Edge, 0, len(raw.Declarations)),
		References:   make([]Reference, 0, len(raw.References)),
		Package:      raw.Package,
		EntryPoint:   raw.EntryPoint,
	}
	res.Declarations = append(res.Declarations, module)

	ids := make([]string, len(raw.Declarations))
	for i, rd := range raw.Declarations {
		parentID := module.ID
		// Parent indices point backwards; anything else is attached to the module.
		if rd.Parent >= 0 && rd.Parent < i {
			parentID = ids[rd.Parent]
		}
		d := graph.Declaration{
			ID:         graph.DeclarationID(relPath, rd.Span, rd.Kind),
			Kind:       rd.Kind,
			Name:       rd.Name,
			FilePath:   relPath,
			Span:       rd.Span,
			ParentID:   parentID,
			Language:   lang,
			DocComment: rd.DocComment,
			Parameters: rd.Parameters,
			Signature:  rd.Signature,
		}
		ids[i] = d.ID
		res.Declarations = append(res.Declarations, d)
		res.Edges = append(res.Edges, graph.Edge{
			Kind:       graph.EdgeContains,
			SourceID:   parentID,
			TargetID:   d.ID,
			Confidence: graph.ConfidenceResolved,
		})
	}

	for _, rr := range raw.References {
		scopeID := module.ID
		if rr.Scope >= 0 && rr.Scope < len(ids) {
			scopeID = ids[rr.Scope]
		}
		res.References = append(res.References, Reference{
			Kind:      rr.Kind,
			Name:      rr.Name,
			Qualifier: rr.Qualifier,
			Names:     rr.Names,
			Span:      rr.Span,
			ScopeID:   scopeID,
			FilePath:  relPath,
			Language:  lang,
		})
	}
	return res
}

// fileSpan covers the whole file.
func fileSpan(content []byte) ast.Span {
	lines := bytes.Count(content, []byte{'\n'})
	lastNL := bytes.LastIndexByte(content, '\n')
	return ast.Span{
		Start:     0,
		End:       len(content),
		StartLine: 1,
		StartCol:  1,
		EndLine:   lines + 1,
		EndCol:    len(content) - lastNL,
	}
}
