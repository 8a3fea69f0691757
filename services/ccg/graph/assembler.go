// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
)

// Assembler merges per-file declarations and resolved edges into one graph.
//
// Description:
//
//	Callers add declarations, edges and diagnostics from every stage in any
//	order, then call Assemble once. Assemble enforces the graph invariants
//	(unique ids, no dangling edges, containment forest), merges duplicate
//	edges keeping the strongest confidence, reports import cycles and sorts
//	everything. Nothing added is ever returned as an error; rejected input
//	becomes an invariant-violation diagnostic.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Assembler struct {
	projectRoot string
	decls       []Declaration
	edges       []Edge
	diags       []diag.Diagnostic
	logger      *slog.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithAssemblerLogger sets the logger used for summary output.
func WithAssemblerLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssembler creates an assembler for a project root.
func NewAssembler(projectRoot string, opts ...AssemblerOption) *Assembler {
	a := &Assembler{projectRoot: projectRoot, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddDeclarations queues declarations. Earlier declarations win id collisions.
func (a *Assembler) AddDeclarations(ds ...Declaration) {
	a.decls = append(a.decls, ds...)
}

// AddEdges queues edges.
func (a *Assembler) AddEdges(es ...Edge) {
	a.edges = append(a.edges, es...)
}

// AddDiagnostics queues diagnostics from earlier stages.
func (a *Assembler) AddDiagnostics(ds ...diag.Diagnostic) {
	a.diags = append(a.diags, ds...)
}

// Assemble validates and freezes everything added so far.
//
// Outputs:
//
//	*CodeContextGraph - The immutable graph.
//	error - Only ctx.Err() when the context is cancelled between phases.
func (a *Assembler) Assemble(ctx context.Context) (*CodeContextGraph, error) {
	ctx, span := startAssembleSpan(ctx, len(a.decls), len(a.edges))
	defer span.End()
	start := time.Now()

	diags := make([]diag.Diagnostic, 0, len(a.diags))
	diags = append(diags, a.diags...)

	decls, byID, dupDiags := a.uniqueDeclarations()
	diags = append(diags, dupDiags...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edges, edgeDiags := a.mergeEdges(decls, byID)
	diags = append(diags, edgeDiags...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edges, containDiags := enforceForest(edges, decls, byID)
	diags = append(diags, containDiags...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diags = append(diags, importCycles(edges, decls, byID)...)

	sort.Slice(decls, func(i, j int) bool { return decls[i].ID < decls[j].ID })
	diags = diag.Sort(diags)

	g := newGraph(a.projectRoot, decls, edges, diags)
	setAssembleSpanResult(span, g)
	recordAssembleMetrics(ctx, g, time.Since(start))

	a.logger.Debug("graph assembled",
		slog.String("root", a.projectRoot),
		slog.Int("declarations", g.DeclarationCount()),
		slog.Int("edges", g.EdgeCount()),
		slog.Int("diagnostics", len(diags)),
		slog.Duration("duration", time.Since(start)),
	)
	return g, nil
}

// uniqueDeclarations drops empty and duplicate ids, keeping the first.
func (a *Assembler) uniqueDeclarations() ([]Declaration, map[string]int, []diag.Diagnostic) {
	var diags []diag.Diagnostic
	decls := make([]Declaration, 0, len(a.decls))
	byID := make(map[string]int, len(a.decls))

	for _, d := range a.decls {
		if d.ID == "" {
			diags = append(diags, diag.NewAt(d.FilePath, d.Span.Start, diag.CodeInvariantViolation,
				"declaration %q has no id", d.Name))
			continue
		}
		if first, ok := byID[d.ID]; ok {
			kept := decls[first]
			diags = append(diags, diag.NewAt(d.FilePath, d.Span.Start, diag.CodeInvariantViolation,
				"%v %s: %s %q duplicates %s %q in %s", ErrDuplicateDeclaration, d.ID,
				d.Kind, d.Name, kept.Kind, kept.Name, kept.FilePath))
			continue
		}
		byID[d.ID] = len(decls)
		decls = append(decls, d)
	}
	return decls, byID, diags
}

// mergeEdges synthesizes contains edges for declared parents, drops invalid
// and dangling edges, and merges duplicates keeping the strongest confidence.
func (a *Assembler) mergeEdges(decls []Declaration, byID map[string]int) ([]Edge, []diag.Diagnostic) {
	var diags []diag.Diagnostic

	all := make([]Edge, 0, len(a.edges)+len(decls))
	all = append(all, a.edges...)
	for _, d := range decls {
		if d.ParentID != "" {
			all = append(all, Edge{Kind: EdgeContains, SourceID: d.ParentID, TargetID: d.ID, Confidence: ConfidenceResolved})
		}
	}

	merged := make(map[string]Edge, len(all))
	for _, e := range all {
		if !e.Kind.Valid() {
			diags = append(diags, edgeDiagnostic(e, decls, byID, fmt.Errorf("unknown edge kind %q", e.Kind)))
			continue
		}
		_, srcOK := byID[e.SourceID]
		_, dstOK := byID[e.TargetID]
		if !srcOK || !dstOK {
			diags = append(diags, edgeDiagnostic(e, decls, byID, ErrDanglingEdge))
			continue
		}
		if e.Confidence != ConfidenceResolved {
			e.Confidence = ConfidenceBestEffort
		}
		key := e.Key()
		if prev, ok := merged[key]; ok && prev.Confidence.rank() >= e.Confidence.rank() {
			continue
		}
		merged[key] = e
	}

	edges := make([]Edge, 0, len(merged))
	for _, e := range merged {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edgeLess(edges[i], edges[j]) })
	return edges, diags
}

// enforceForest keeps at most one contains parent per declaration and
// rejects edges that would close a containment cycle. Each declaration's
// ParentID is rewritten to its accepted parent.
//
// Edges matching a declaration's declared ParentID are considered first, so
// a stray contains edge cannot displace the extractor's nesting.
func enforceForest(edges []Edge, decls []Declaration, byID map[string]int) ([]Edge, []diag.Diagnostic) {
	var diags []diag.Diagnostic
	parent := make(map[string]string)

	isAncestor := func(candidate, of string) bool {
		for cur := of; cur != ""; cur = parent[cur] {
			if cur == candidate {
				return true
			}
		}
		return false
	}

	var contains []Edge
	for _, e := range edges {
		if e.Kind == EdgeContains {
			contains = append(contains, e)
		}
	}
	declared := func(e Edge) bool { return decls[byID[e.TargetID]].ParentID == e.SourceID }
	sort.SliceStable(contains, func(i, j int) bool {
		return declared(contains[i]) && !declared(contains[j])
	})

	rejected := make(map[string]bool)
	for _, e := range contains {
		switch {
		case parent[e.TargetID] != "":
			diags = append(diags, edgeDiagnostic(e, decls, byID, ErrMultipleParents))
			rejected[e.Key()] = true
		case isAncestor(e.TargetID, e.SourceID):
			diags = append(diags, edgeDiagnostic(e, decls, byID, ErrContainmentCycle))
			rejected[e.Key()] = true
		default:
			parent[e.TargetID] = e.SourceID
		}
	}

	out := edges[:0]
	for _, e := range edges {
		if e.Kind == EdgeContains && rejected[e.Key()] {
			continue
		}
		out = append(out, e)
	}

	for i := range decls {
		decls[i].ParentID = parent[decls[i].ID]
	}
	return out, diags
}

// importCycles reports every group of modules that import each other.
func importCycles(edges []Edge, decls []Declaration, byID map[string]int) []diag.Diagnostic {
	adj := make(map[string][]string)
	var nodes []string
	seen := make(map[string]bool)
	addNode := func(id string) {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
	}
	selfLoops := make(map[string]bool)

	for _, e := range edges {
		if e.Kind != EdgeImports {
			continue
		}
		if e.SourceID == e.TargetID {
			selfLoops[e.SourceID] = true
		}
		addNode(e.SourceID)
		addNode(e.TargetID)
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}
	sort.Strings(nodes)

	var diags []diag.Diagnostic
	for _, comp := range stronglyConnected(nodes, adj) {
		if len(comp) == 1 && !selfLoops[comp[0]] {
			continue
		}
		files := make([]string, 0, len(comp))
		for _, id := range comp {
			files = append(files, decls[byID[id]].FilePath)
		}
		sort.Strings(files)
		diags = append(diags, diag.New(files[0], diag.CodeImportCycle,
			"modules import each other: %s", strings.Join(files, ", ")))
	}
	return diags
}

// edgeDiagnostic anchors a rejected edge at its source declaration when
// known, otherwise at its target.
func edgeDiagnostic(e Edge, decls []Declaration, byID map[string]int, cause error) diag.Diagnostic {
	err := &EdgeError{Edge: e, Err: cause}
	if i, ok := byID[e.SourceID]; ok {
		return diag.NewAt(decls[i].FilePath, decls[i].Span.Start, diag.CodeInvariantViolation, "%v", err)
	}
	if i, ok := byID[e.TargetID]; ok {
		return diag.NewAt(decls[i].FilePath, decls[i].Span.Start, diag.CodeInvariantViolation, "%v", err)
	}
	return diag.New("", diag.CodeInvariantViolation, "%v", err)
}

// ModuleName returns the module declaration name for a file path: the base
// name without extension ("pkg/util.py" -> "util").
func ModuleName(relPath string) string {
	base := relPath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
