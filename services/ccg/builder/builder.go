// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builder orchestrates a Code Context Graph build.
//
// A build scans the root, extracts every readable file on a bounded worker
// pool, freezes a project-wide symbol index, resolves references over it in
// parallel and assembles the result into one immutable graph. Per-file
// problems become diagnostics on the graph; only fatal input errors (a
// missing root, nothing readable, cancellation) fail a build.
package builder

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
	"github.com/AleutianAI/AleutianCCG/services/ccg/extract"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/index"
	"github.com/AleutianAI/AleutianCCG/services/ccg/resolve"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

// Stats summarizes one build.
type Stats struct {
	// FilesScanned counts every visited file, parsed or not.
	FilesScanned int `json:"files_scanned"`

	// FilesParsed counts files extracted successfully, cached ones included.
	FilesParsed int `json:"files_parsed"`

	// FilesCached counts extractions served by the cache.
	FilesCached int `json:"files_cached"`

	// FilesFailed counts parse failures.
	FilesFailed int `json:"files_failed"`

	// FilesSkipped counts files never handed to the extractor
	// (unsupported, disabled, too large, binary or unreadable).
	FilesSkipped int `json:"files_skipped"`

	Declarations int `json:"declarations"`
	Edges        int `json:"edges"`
	Diagnostics  int `json:"diagnostics"`

	// Resolve holds reference resolution counts.
	Resolve resolve.Stats `json:"resolve"`

	Duration time.Duration `json:"duration_ns"`
}

// Result is the outcome of a build.
type Result struct {
	// RunID identifies the build in logs and traces.
	RunID string

	// Root is the absolute project root.
	Root string

	// State is StateDone, or StateFailed alongside a *FatalInputError.
	State State

	// Graph is the assembled graph. Nil when the build failed.
	Graph *graph.CodeContextGraph

	// FileTree summarizes every visited file.
	FileTree *scanner.FileNode

	// Languages counts files per detected language.
	Languages scanner.LanguageStats

	// EntryPoints lists files that look like program entry points, sorted.
	EntryPoints []string

	Stats Stats

	// Phases records the time spent in each state, in order.
	Phases []Phase
}

// Builder runs builds.
//
// Thread Safety:
//
//	A Builder holds no per-build state and may run concurrent builds.
type Builder struct {
	options   Options
	registry  *ast.Registry
	extractor *extract.Extractor
	logger    *slog.Logger
}

// NewBuilder creates a Builder.
//
// Example:
//
//	b := builder.NewBuilder(
//	    builder.WithWorkers(8),
//	    builder.WithCache(cache),
//	)
//	res, err := b.Build(ctx, "/src/project")
func NewBuilder(opts ...Option) *Builder {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.ParseTimeout <= 0 {
		options.ParseTimeout = DefaultParseTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := options.Registry
	if registry == nil {
		registry = ast.DefaultRegistry()
	}

	extractOpts := []extract.Option{
		extract.WithRegistry(registry),
		extract.WithParseTimeout(options.ParseTimeout),
		extract.WithLogger(logger),
	}
	if options.Cache != nil {
		extractOpts = append(extractOpts, extract.WithCache(options.Cache))
	}

	return &Builder{
		options:   options,
		registry:  registry,
		extractor: extract.NewExtractor(extractOpts...),
		logger:    logger,
	}
}

// Build builds the graph of the tree under root.
//
// Description:
//
//	Runs Scanning → Extracting → Resolving → Assembling → Done. Parse
//	failures, unsupported files, unresolved references and invariant
//	violations are reported as diagnostics on the graph. Rebuilding an
//	unchanged tree yields an identical graph and graph hash.
//
// Inputs:
//
//	ctx - Cancellation is checked at every file boundary and between states.
//	root - Project directory.
//
// Outputs:
//
//	*Result - Always non-nil. State is StateDone on success.
//	error - A *FatalInputError wrapping ErrRootNotFound, ErrRootNotDir,
//	        ErrNoReadableFiles, ErrCanceled or ErrInvalidOptions.
//
// Thread Safety: Safe for concurrent use.
func (b *Builder) Build(ctx context.Context, root string) (*Result, error) {
	ctx, span := startBuildSpan(ctx, root)
	defer span.End()

	r := &run{
		Builder: b,
		id:      uuid.NewString(),
		root:    root,
		state:   StateScanning,
		started: time.Now(),
	}
	r.entered = r.started
	r.logger = b.logger.With(slog.String("run_id", r.id))
	span.SetAttributes(runIDAttr(r.id))

	res, err := r.execute(ctx)
	if err != nil {
		r.transition(StateFailed)
		setBuildSpanFailure(span, err)
		recordBuildMetrics(ctx, StateFailed, time.Since(r.started), nil)
		r.logger.Warn("build failed",
			slog.String("root", root),
			slog.String("error", err.Error()),
		)
		return &Result{
			RunID:  r.id,
			Root:   r.absRoot,
			State:  StateFailed,
			Phases: r.phases,
		}, err
	}

	r.transition(StateDone)
	res.State = StateDone
	res.Phases = r.phases
	res.Stats.Duration = time.Since(r.started)

	setBuildSpanResult(span, res)
	recordBuildMetrics(ctx, StateDone, res.Stats.Duration, res)
	r.logger.Info("build complete",
		slog.String("root", res.Root),
		slog.Int("files", res.Stats.FilesParsed),
		slog.Int("failed", res.Stats.FilesFailed),
		slog.Int("declarations", res.Stats.Declarations),
		slog.Int("edges", res.Stats.Edges),
		slog.Int("diagnostics", res.Stats.Diagnostics),
		slog.String("graph_hash", res.Graph.Hash()),
		slog.Duration("duration", res.Stats.Duration),
	)
	return res, nil
}

// run is the state of one Build call.
type run struct {
	*Builder
	id      string
	root    string
	absRoot string
	logger  *slog.Logger

	state   State
	started time.Time
	entered time.Time
	phases  []Phase
}

// transition moves to the next state, recording the time spent in the
// current one. Illegal transitions are programming errors and are logged.
func (r *run) transition(to State) {
	if !canTransition(r.state, to) {
		r.logger.Error("illegal build state transition",
			slog.String("from", r.state.String()),
			slog.String("to", to.String()),
		)
		return
	}
	now := time.Now()
	r.phases = append(r.phases, Phase{State: r.state, Duration: now.Sub(r.entered)})
	r.logger.Debug("build state",
		slog.String("from", r.state.String()),
		slog.String("to", to.String()),
	)
	r.state = to
	r.entered = now
	r.report(Progress{RunID: r.id, State: to})
}

func (r *run) report(p Progress) {
	if r.options.Progress != nil {
		r.options.Progress(p)
	}
}

// slot holds the extraction outcome of one parse unit, in scan order.
type slot struct {
	path    string
	result  *extract.Result
	failure *ast.ParseFailure
}

// scanOutput is everything collected while scanning and extracting.
type scanOutput struct {
	entries    []scanner.FileEntry
	diags      []diag.Diagnostic
	slots      []*slot
	skipped    int
	unreadable int
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if r.root == "" {
		return nil, fatal(r.root, ErrRootNotFound, scanner.ErrRootPathEmpty)
	}
	abs, err := filepath.Abs(r.root)
	if err != nil {
		return nil, fatal(r.root, ErrRootNotFound, err)
	}
	r.absRoot = abs

	scanned, err := r.scanAndExtract(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     r.id,
		Root:      r.absRoot,
		FileTree:  scanner.BuildFileTree(filepath.Base(r.absRoot), scanned.entries),
		Languages: scanner.ComputeLanguageStats(scanned.entries),
	}
	res.Stats.FilesScanned = len(scanned.entries)
	res.Stats.FilesSkipped = scanned.skipped

	diags := scanned.diags
	results := make([]*extract.Result, 0, len(scanned.slots))
	for _, s := range scanned.slots {
		switch {
		case s.failure != nil:
			res.Stats.FilesFailed++
			diags = append(diags, parseFailureDiagnostic(s.failure))
		case s.result != nil:
			results = append(results, s.result)
			if s.result.Cached {
				res.Stats.FilesCached++
			}
		}
	}
	res.Stats.FilesParsed = len(results)

	if len(scanned.slots) == 0 && scanned.unreadable > 0 {
		return nil, fatal(r.absRoot, ErrNoReadableFiles, nil)
	}
	if len(results) == 0 {
		diags = append(diags, zeroFilesDiagnostic(len(scanned.entries), len(scanned.slots)))
	}

	if err := ctx.Err(); err != nil {
		return nil, fatal(r.absRoot, ErrCanceled, err)
	}
	r.transition(StateResolving)
	edges, resolveDiags, stats, err := r.resolve(ctx, results)
	if err != nil {
		return nil, err
	}
	diags = append(diags, resolveDiags...)
	res.Stats.Resolve = stats

	if err := ctx.Err(); err != nil {
		return nil, fatal(r.absRoot, ErrCanceled, err)
	}
	r.transition(StateAssembling)
	asm := graph.NewAssembler(r.absRoot, graph.WithAssemblerLogger(r.logger))
	for _, fr := range results {
		asm.AddDeclarations(fr.Declarations...)
		asm.AddEdges(fr.Edges...)
	}
	asm.AddEdges(edges...)
	asm.AddDiagnostics(diags...)
	g, err := asm.Assemble(ctx)
	if err != nil {
		return nil, fatal(r.absRoot, ErrCanceled, err)
	}

	res.Graph = g
	res.EntryPoints = entryPoints(results)
	res.Stats.Declarations = g.DeclarationCount()
	res.Stats.Edges = g.EdgeCount()
	res.Stats.Diagnostics = len(g.Diagnostics())
	return res, nil
}

// scanAndExtract walks the root and extracts parse units as they arrive.
func (r *run) scanAndExtract(ctx context.Context) (*scanOutput, error) {
	cfg := r.options.Scanner
	cfg.Root = r.absRoot
	cfg.Registry = r.registry
	if cfg.Logger == nil {
		cfg.Logger = r.logger
	}

	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()

	items, err := scanner.NewScanner(cfg).Scan(scanCtx)
	if err != nil {
		return nil, r.scanError(err)
	}

	out := &scanOutput{}
	g, gctx := errgroup.WithContext(scanCtx)
	g.SetLimit(r.options.Workers)
	var done atomic.Int64

	for item := range items {
		if item.Entry != nil {
			out.entries = append(out.entries, *item.Entry)
			if item.Unit == nil {
				out.skipped++
				if item.Entry.Language != "" && diag.Count(item.Diagnostics, diag.CodeIOError) > 0 {
					out.unreadable++
				}
			}
		}
		out.diags = append(out.diags, item.Diagnostics...)
		if item.Unit == nil {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		if r.state == StateScanning {
			r.transition(StateExtracting)
		}

		unit := item.Unit
		s := &slot{path: unit.RelPath}
		out.slots = append(out.slots, s)
		queued := len(out.slots)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fr, err := r.extractor.Extract(gctx, unit)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.failure = ast.AsParseFailure(err, unit.RelPath, unit.Language)
			} else {
				s.result = fr
			}
			r.report(Progress{
				RunID:       r.id,
				State:       StateExtracting,
				FilesQueued: queued,
				FilesDone:   int(done.Add(1)),
			})
			return nil
		})
	}

	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fatal(r.absRoot, ErrCanceled, err)
	}
	if waitErr != nil {
		return nil, fatal(r.absRoot, ErrCanceled, waitErr)
	}
	if r.state == StateScanning {
		r.transition(StateExtracting)
	}
	return out, nil
}

func (r *run) scanError(err error) error {
	switch {
	case errors.Is(err, scanner.ErrRootPathEmpty), errors.Is(err, scanner.ErrRootPathNotExist):
		return fatal(r.root, ErrRootNotFound, err)
	case errors.Is(err, scanner.ErrRootPathNotDir):
		return fatal(r.root, ErrRootNotDir, err)
	case errors.Is(err, scanner.ErrInvalidPattern):
		return fatal(r.root, ErrInvalidOptions, err)
	default:
		return fatal(r.root, ErrRootNotFound, err)
	}
}

// resolve builds and freezes the symbol index, then resolves references.
func (r *run) resolve(ctx context.Context, results []*extract.Result) ([]graph.Edge, []diag.Diagnostic, resolve.Stats, error) {
	var diags []diag.Diagnostic

	// Declarations are added in scan order so the first of two colliding
	// ids is the same on every run.
	idx := index.NewSymbolIndex()
	for _, fr := range results {
		if err := idx.Add(fr.Declarations...); err != nil {
			if errors.Is(err, index.ErrMaxDeclarationsExceeded) {
				diags = append(diags, diag.New(fr.Path, diag.CodeInvariantViolation, "symbol index full: %v", err))
			}
			r.logger.Debug("index rejected declarations",
				slog.String("file", fr.Path),
				slog.String("error", err.Error()),
			)
		}
	}
	idx.Freeze()

	modulePath := r.options.GoModulePath
	if modulePath == "" {
		p, err := resolve.GoModulePath(r.absRoot)
		if err != nil {
			diags = append(diags, diag.New("go.mod", diag.CodeParseFailure, "cannot read module path: %v", err))
		}
		modulePath = p
	}

	resolver, err := resolve.NewResolver(idx, results,
		resolve.WithWorkers(r.options.Workers),
		resolve.WithGoModulePath(modulePath),
		resolve.WithLogger(r.logger),
	)
	if err != nil {
		return nil, nil, resolve.Stats{}, fatal(r.absRoot, ErrInvalidOptions, err)
	}
	out, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, nil, resolve.Stats{}, fatal(r.absRoot, ErrCanceled, err)
	}
	return out.Edges, append(diags, out.Diagnostics...), out.Stats, nil
}

func parseFailureDiagnostic(pf *ast.ParseFailure) diag.Diagnostic {
	msg := pf.Message
	if pf.Line > 0 {
		return diag.NewAt(pf.FilePath, pf.Offset, diag.CodeParseFailure, "%s (line %d, column %d)", msg, pf.Line, pf.Column)
	}
	return diag.NewAt(pf.FilePath, pf.Offset, diag.CodeParseFailure, "%s", msg)
}

func zeroFilesDiagnostic(visited, units int) diag.Diagnostic {
	switch {
	case visited == 0:
		return diag.New("", diag.CodeZeroFiles, "no files found under root")
	case units == 0:
		return diag.New("", diag.CodeZeroFiles, "none of %d files is a supported source file", visited)
	default:
		return diag.New("", diag.CodeZeroFiles, "none of %d source files could be parsed", units)
	}
}

func entryPoints(results []*extract.Result) []string {
	var out []string
	for _, fr := range results {
		if fr.EntryPoint || scanner.IsEntryPointFile(fr.Path) {
			out = append(out, fr.Path)
		}
	}
	sort.Strings(out)
	return out
}
