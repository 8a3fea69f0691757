// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve turns unresolved references into graph edges.
//
// Resolution runs once, after every file has been extracted and the
// SymbolIndex has been frozen. Each reference is looked up in a fixed
// order and the first step with candidates decides:
//
//  1. the scope chain of the reference, innermost outward, ending at the
//     file's module;
//  2. other declarations of the same file;
//  3. declarations of the files the referencing file imports, plus the
//     files a language imports implicitly (the rest of a Go package or a
//     Java package directory).
//
// One candidate yields a resolved edge. Several yield one best-effort edge
// each plus an ambiguous-reference diagnostic. None yields an
// unresolved-reference diagnostic. Imports resolve to the module
// declaration of the imported file.
//
// Thread Safety:
//
//	Resolver is safe for concurrent use once constructed. Files are
//	resolved in parallel; output order depends only on the input order.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
	"github.com/AleutianAI/AleutianCCG/services/ccg/extract"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/index"
)

// ErrIndexNotFrozen is returned by NewResolver for an index still being built.
var ErrIndexNotFrozen = errors.New("symbol index is not frozen")

// Options configures a Resolver.
type Options struct {
	// Workers bounds parallel file resolution. Default: runtime.NumCPU().
	Workers int

	// GoModulePath maps Go import paths to project directories, see
	// GoModulePath.
	GoModulePath string

	Logger *slog.Logger
}

// Option is a functional option for NewResolver.
type Option func(*Options)

// WithWorkers sets the parallelism.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithGoModulePath sets the module path of the project's go.mod.
func WithGoModulePath(p string) Option {
	return func(o *Options) { o.GoModulePath = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Stats counts references by outcome.
type Stats struct {
	References int
	Resolved   int
	BestEffort int
	Ambiguous  int
	Unresolved int
	Imports    int
}

func (s *Stats) add(o Stats) {
	s.References += o.References
	s.Resolved += o.Resolved
	s.BestEffort += o.BestEffort
	s.Ambiguous += o.Ambiguous
	s.Unresolved += o.Unresolved
	s.Imports += o.Imports
}

// Output is the result of resolving a project.
type Output struct {
	Edges       []graph.Edge
	Diagnostics []diag.Diagnostic
	Stats       Stats
}

// Resolver resolves the references of extracted files against a frozen
// SymbolIndex.
type Resolver struct {
	idx     *index.SymbolIndex
	results []*extract.Result
	files   *fileTable
	options Options
}

// NewResolver prepares resolution of results.
//
// Inputs:
//
//	idx - Must be frozen and hold the declarations of results.
//	results - One entry per successfully extracted file.
//
// Outputs:
//
//	*Resolver - Ready to Resolve.
//	error - ErrIndexNotFrozen.
func NewResolver(idx *index.SymbolIndex, results []*extract.Result, opts ...Option) (*Resolver, error) {
	if idx == nil || !idx.Frozen() {
		return nil, ErrIndexNotFrozen
	}
	options := Options{Workers: runtime.NumCPU(), Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers <= 0 {
		options.Workers = 1
	}
	return &Resolver{
		idx:     idx,
		results: results,
		files:   newFileTable(results),
		options: options,
	}, nil
}

// Resolve resolves every reference of every file.
//
// Description:
//
//	Files are resolved in parallel, each on its own goroutine slot; edges
//	and diagnostics are concatenated in input order.
//
// Outputs:
//
//	*Output - Edges, diagnostics and counts.
//	error - The context error if ctx is cancelled.
func (r *Resolver) Resolve(ctx context.Context) (*Output, error) {
	ctx, span := startResolveSpan(ctx, len(r.results))
	defer span.End()
	start := time.Now()

	type fileOut struct {
		edges []graph.Edge
		diags []diag.Diagnostic
		stats Stats
	}
	outs := make([]fileOut, len(r.results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.options.Workers)
	for i, res := range r.results {
		if res == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, d, s := r.ResolveFile(gctx, res)
			outs[i] = fileOut{edges: e, diags: d, stats: s}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		setResolveSpanFailure(span, err)
		return nil, fmt.Errorf("resolving references: %w", err)
	}
	if err := ctx.Err(); err != nil {
		setResolveSpanFailure(span, err)
		return nil, fmt.Errorf("resolving references: %w", err)
	}

	out := &Output{}
	for _, o := range outs {
		out.Edges = append(out.Edges, o.edges...)
		out.Diagnostics = append(out.Diagnostics, o.diags...)
		out.Stats.add(o.stats)
	}

	setResolveSpanResult(span, out.Stats)
	recordResolveMetrics(ctx, out.Stats, time.Since(start))
	r.options.Logger.Debug("references resolved",
		slog.Int("files", len(r.results)),
		slog.Int("references", out.Stats.References),
		slog.Int("resolved", out.Stats.Resolved),
		slog.Int("best_effort", out.Stats.BestEffort),
		slog.Int("unresolved", out.Stats.Unresolved),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// ResolveFile resolves the references of one extracted file.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) ResolveFile(ctx context.Context, res *extract.Result) ([]graph.Edge, []diag.Diagnostic, Stats) {
	fr := &fileResolver{
		Resolver: r,
		res:      res,
		scope:    newImportScope(),
	}
	for _, ref := range res.References {
		if ref.Kind == ast.RefImport {
			r.files.bindImport(fr.scope, res.Path, res.Language, ref, r.options.GoModulePath)
		}
	}
	fr.implicit = r.files.implicitFiles(res.Path, res.Language)

	fr.resolveImports()
	for i, ref := range res.References {
		if i > 0 && i%100 == 0 && ctx.Err() != nil {
			break
		}
		if ref.Kind == ast.RefImport {
			continue
		}
		fr.resolveReference(ref)
	}
	return fr.edges, fr.diags, fr.stats
}

// fileResolver carries the per-file state of ResolveFile.
type fileResolver struct {
	*Resolver
	res      *extract.Result
	scope    *importScope
	implicit []string

	edges []graph.Edge
	diags []diag.Diagnostic
	stats Stats
}

func (fr *fileResolver) resolveImports() {
	for _, t := range fr.scope.targets {
		fr.stats.References++
		var mods []graph.Declaration
		for _, f := range t.files {
			if f == fr.res.Path {
				continue
			}
			if m, ok := fr.idx.ModuleOf(f); ok {
				mods = append(mods, m)
			}
		}
		if len(t.files) == 0 {
			fr.stats.Unresolved++
			fr.diags = append(fr.diags, diag.NewAt(fr.res.Path, t.ref.Span.Start, diag.CodeUnresolvedReference,
				"import %q is not part of the project", t.ref.Name))
			continue
		}
		if len(mods) > 0 {
			fr.stats.Imports++
		}
		fr.emit(graph.EdgeImports, fr.res.Module.ID, t.ref, mods)
	}
}

func (fr *fileResolver) resolveReference(ref extract.Reference) {
	fr.stats.References++
	kind := edgeKindOf(ref.Kind)
	cands := fr.candidates(ref)
	if len(cands) == 0 {
		fr.stats.Unresolved++
		fr.diags = append(fr.diags, diag.NewAt(fr.res.Path, ref.Span.Start, diag.CodeUnresolvedReference,
			"%s %s not found", ref.Kind, qualifiedName(ref)))
		return
	}
	fr.emit(kind, ref.ScopeID, ref, cands)
}

// emit adds one edge per target, resolved for a single target and
// best-effort otherwise.
func (fr *fileResolver) emit(kind graph.EdgeKind, source string, ref extract.Reference, targets []graph.Declaration) {
	if len(targets) == 0 {
		return
	}
	confidence := graph.ConfidenceResolved
	if len(targets) > 1 {
		confidence = graph.ConfidenceBestEffort
		fr.stats.Ambiguous++
		files := make([]string, 0, len(targets))
		for _, t := range targets {
			files = append(files, t.FilePath)
		}
		fr.diags = append(fr.diags, diag.NewAt(fr.res.Path, ref.Span.Start, diag.CodeAmbiguousReference,
			"%s %s has %d candidates (%s)", ref.Kind, qualifiedName(ref), len(targets), strings.Join(dedupe(files), ", ")))
	}
	for _, t := range targets {
		fr.edges = append(fr.edges, graph.Edge{
			Kind:       kind,
			SourceID:   source,
			TargetID:   t.ID,
			Confidence: confidence,
		})
		if confidence == graph.ConfidenceResolved {
			fr.stats.Resolved++
		} else {
			fr.stats.BestEffort++
		}
	}
}

// candidates runs the lookup steps in order and returns the first
// non-empty candidate set.
func (fr *fileResolver) candidates(ref extract.Reference) []graph.Declaration {
	q := ref.Qualifier
	self := isSelfQualifier(q)

	if q == "" || self {
		if c := fr.scopeChain(ref, self); len(c) > 0 {
			return c
		}
	}
	if c := fr.sameFile(ref); len(c) > 0 {
		return c
	}
	return fr.imported(ref)
}

// scopeChain walks from the reference's scope to the module. A self
// qualifier restricts the lookup to the nearest enclosing class.
func (fr *fileResolver) scopeChain(ref extract.Reference, self bool) []graph.Declaration {
	start := ref.ScopeID
	exclude := ""
	if ref.Kind == ast.RefInherit {
		exclude = ref.ScopeID
		if d, ok := fr.idx.Declaration(ref.ScopeID); ok {
			start = d.ParentID
		}
	}

	if self {
		cls, ok := fr.enclosingClass(start)
		if !ok {
			return nil
		}
		return fr.filter(ref, fr.idx.Lookup(index.Key{Name: ref.Name, Language: fr.res.Language, Scope: cls.ID}), exclude)
	}

	// Python and Jac class bodies are not visible from their methods.
	skipClasses := fr.res.Language == ast.LanguagePython || fr.res.Language == ast.LanguageJac
	for id := start; id != ""; {
		d, ok := fr.idx.Declaration(id)
		if !ok {
			break
		}
		if !(skipClasses && d.Kind == ast.KindClass && id != ref.ScopeID) {
			if c := fr.filter(ref, fr.idx.Lookup(index.Key{Name: ref.Name, Language: fr.res.Language, Scope: id}), exclude); len(c) > 0 {
				return c
			}
		}
		id = d.ParentID
	}
	return nil
}

func (fr *fileResolver) enclosingClass(id string) (graph.Declaration, bool) {
	for id != "" {
		d, ok := fr.idx.Declaration(id)
		if !ok {
			break
		}
		if d.Kind == ast.KindClass {
			return d, true
		}
		id = d.ParentID
	}
	return graph.Declaration{}, false
}

// sameFile looks for the name elsewhere in the referencing file. A
// qualifier bound by an import skips this step.
func (fr *fileResolver) sameFile(ref extract.Reference) []graph.Declaration {
	q := ref.Qualifier
	if q != "" && !isSelfQualifier(q) && fr.scope.bound(q) {
		return nil
	}
	exclude := ""
	if ref.Kind == ast.RefInherit {
		exclude = ref.ScopeID
	}
	decls := fr.idx.InFile(fr.res.Path)

	if q == "" {
		return fr.filter(ref, named(decls, ref.Name), exclude)
	}
	if !isSelfQualifier(q) {
		qn := lastSegment(lastSegment(q, "::"), ".")
		for _, cls := range decls {
			if cls.Kind == ast.KindClass && cls.Name == qn {
				if c := fr.filter(ref, fr.idx.Lookup(index.Key{Name: ref.Name, Language: fr.res.Language, Scope: cls.ID}), exclude); len(c) > 0 {
					return c
				}
			}
		}
	}
	var methods []graph.Declaration
	for _, d := range named(decls, ref.Name) {
		if d.Kind == ast.KindMethod || ref.Kind != ast.RefCall && d.Kind == ast.KindVariable && fr.isMember(d) {
			methods = append(methods, d)
		}
	}
	return fr.filter(ref, methods, exclude)
}

func (fr *fileResolver) isMember(d graph.Declaration) bool {
	p, ok := fr.idx.Declaration(d.ParentID)
	return ok && p.Kind == ast.KindClass
}

// imported looks the name up in imported and implicitly visible files.
func (fr *fileResolver) imported(ref extract.Reference) []graph.Declaration {
	q := ref.Qualifier
	s := fr.scope

	switch {
	case q != "" && !isSelfQualifier(q) && s.byQualifier[q] != nil:
		return fr.filter(ref, fr.topLevel(s.byQualifier[q], ref.Name), "")

	case q != "" && !isSelfQualifier(q) && s.byName[q].original != "":
		imp := s.byName[q]
		var out []graph.Declaration
		for _, cls := range fr.inFiles(imp.files, imp.original) {
			if cls.Kind != ast.KindClass {
				continue
			}
			out = append(out, fr.idx.Lookup(index.Key{Name: ref.Name, Language: cls.Language, Scope: cls.ID})...)
		}
		return fr.filter(ref, out, "")

	case q != "" && !isSelfQualifier(q) && s.bound(q):
		return nil

	case q == "":
		if imp, ok := s.byName[ref.Name]; ok {
			all := fr.inFiles(imp.files, imp.original)
			if top := fr.onlyTopLevel(all); len(top) > 0 {
				all = top
			}
			if c := fr.filter(ref, all, ""); len(c) > 0 {
				return c
			}
		}
		files := append(append([]string(nil), s.visible...), fr.implicit...)
		if c := fr.filter(ref, fr.topLevel(files, ref.Name), ""); len(c) > 0 {
			return c
		}
		return fr.filter(ref, fr.topLevel(s.imported, ref.Name), "")

	default:
		files := append(append([]string(nil), s.imported...), fr.implicit...)
		var out []graph.Declaration
		for _, d := range fr.inFiles(files, ref.Name) {
			if d.Kind.IsCallable() || ref.Kind != ast.RefCall {
				out = append(out, d)
			}
		}
		return fr.filter(ref, out, "")
	}
}

// inFiles returns the declarations named name in files, in file order.
func (fr *fileResolver) inFiles(files []string, name string) []graph.Declaration {
	var out []graph.Declaration
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f] || f == fr.res.Path {
			continue
		}
		seen[f] = true
		out = append(out, named(fr.idx.InFile(f), name)...)
	}
	return out
}

func (fr *fileResolver) topLevel(files []string, name string) []graph.Declaration {
	return fr.onlyTopLevel(fr.inFiles(files, name))
}

func (fr *fileResolver) onlyTopLevel(decls []graph.Declaration) []graph.Declaration {
	var out []graph.Declaration
	for _, d := range decls {
		if m, ok := fr.idx.ModuleOf(d.FilePath); ok && d.IsTopLevel(m.ID) {
			out = append(out, d)
		}
	}
	return out
}

// filter keeps the declarations a reference of this kind may target.
func (fr *fileResolver) filter(ref extract.Reference, decls []graph.Declaration, exclude string) []graph.Declaration {
	var out []graph.Declaration
	for _, d := range decls {
		if d.ID == exclude || !accepts(ref.Kind, d.Kind) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// accepts reports whether a reference kind may target a declaration kind.
func accepts(ref ast.RefKind, kind ast.Kind) bool {
	switch ref {
	case ast.RefCall:
		return kind.IsCallable()
	case ast.RefInherit:
		return kind == ast.KindClass
	default:
		return kind != ast.KindModule
	}
}

func edgeKindOf(k ast.RefKind) graph.EdgeKind {
	switch k {
	case ast.RefCall:
		return graph.EdgeCalls
	case ast.RefInherit:
		return graph.EdgeInherits
	case ast.RefImport:
		return graph.EdgeImports
	default:
		return graph.EdgeReferences
	}
}

func isSelfQualifier(q string) bool {
	switch q {
	case "self", "this", "cls", "Self":
		return true
	}
	return false
}

func named(decls []graph.Declaration, name string) []graph.Declaration {
	var out []graph.Declaration
	for _, d := range decls {
		if d.Kind != ast.KindModule && d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

func qualifiedName(ref extract.Reference) string {
	if ref.Qualifier == "" {
		return fmt.Sprintf("%q", ref.Name)
	}
	return fmt.Sprintf("%q", ref.Qualifier+"."+ref.Name)
}

func dedupe(ss []string) []string {
	out := ss[:0:0]
	seen := make(map[string]bool, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
