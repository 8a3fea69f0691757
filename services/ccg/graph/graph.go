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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
)

// CodeContextGraph is the assembled, immutable graph of one build.
//
// Description:
//
//	Declarations are sorted by id, edges by source, target and kind, and
//	diagnostics by path, offset, code and message. Lookup indexes are
//	built once at construction. Accessors return copies so callers cannot
//	mutate the graph.
//
// Thread Safety:
//
//	Safe for concurrent use.
type CodeContextGraph struct {
	projectRoot  string
	declarations []Declaration
	edges        []Edge
	diagnostics  []diag.Diagnostic
	hash         string

	byID     map[string]int
	byFile   map[string][]int
	outgoing map[string][]int
	incoming map[string][]int
}

// newGraph builds the indexes over already validated, sorted data.
func newGraph(projectRoot string, decls []Declaration, edges []Edge, diags []diag.Diagnostic) *CodeContextGraph {
	if decls == nil {
		decls = []Declaration{}
	}
	if edges == nil {
		edges = []Edge{}
	}
	if diags == nil {
		diags = []diag.Diagnostic{}
	}

	g := &CodeContextGraph{
		projectRoot:  projectRoot,
		declarations: decls,
		edges:        edges,
		diagnostics:  diags,
		byID:         make(map[string]int, len(decls)),
		byFile:       make(map[string][]int),
		outgoing:     make(map[string][]int),
		incoming:     make(map[string][]int),
	}
	for i, d := range decls {
		g.byID[d.ID] = i
		g.byFile[d.FilePath] = append(g.byFile[d.FilePath], i)
	}
	for i, e := range edges {
		g.outgoing[e.SourceID] = append(g.outgoing[e.SourceID], i)
		g.incoming[e.TargetID] = append(g.incoming[e.TargetID], i)
	}
	g.hash = computeHash(decls, edges, diags)
	return g
}

// hashInput is the content covered by the graph hash. The project root is
// excluded so the same tree checked out in two places hashes identically.
type hashInput struct {
	Declarations []Declaration     `json:"declarations"`
	Edges        []Edge            `json:"edges"`
	Diagnostics  []diag.Diagnostic `json:"diagnostics"`
}

func computeHash(decls []Declaration, edges []Edge, diags []diag.Diagnostic) string {
	data, err := json.Marshal(hashInput{Declarations: decls, Edges: edges, Diagnostics: diags})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ProjectRoot returns the absolute root the graph was built from.
func (g *CodeContextGraph) ProjectRoot() string {
	return g.projectRoot
}

// Hash returns the hex SHA-256 content hash of the graph.
func (g *CodeContextGraph) Hash() string {
	return g.hash
}

// DeclarationCount returns the number of declarations.
func (g *CodeContextGraph) DeclarationCount() int {
	return len(g.declarations)
}

// EdgeCount returns the number of edges.
func (g *CodeContextGraph) EdgeCount() int {
	return len(g.edges)
}

// Declarations returns all declarations sorted by id.
func (g *CodeContextGraph) Declarations() []Declaration {
	out := make([]Declaration, len(g.declarations))
	copy(out, g.declarations)
	return out
}

// Edges returns all edges in canonical order.
func (g *CodeContextGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Diagnostics returns the merged diagnostics report.
func (g *CodeContextGraph) Diagnostics() []diag.Diagnostic {
	out := make([]diag.Diagnostic, len(g.diagnostics))
	copy(out, g.diagnostics)
	return out
}

// Declaration returns the declaration with the given id.
func (g *CodeContextGraph) Declaration(id string) (Declaration, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Declaration{}, false
	}
	return g.declarations[i], true
}

// Files returns the paths of all files with declarations, sorted.
func (g *CodeContextGraph) Files() []string {
	files := make([]string, 0, len(g.byFile))
	for f := range g.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// DeclarationsInFile returns the declarations of one file in source order.
func (g *CodeContextGraph) DeclarationsInFile(path string) []Declaration {
	idx := g.byFile[path]
	out := make([]Declaration, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.declarations[i])
	}
	sortBySource(out)
	return out
}

// Module returns the module declaration of a file.
func (g *CodeContextGraph) Module(path string) (Declaration, bool) {
	for _, i := range g.byFile[path] {
		if g.declarations[i].Kind == ast.KindModule {
			return g.declarations[i], true
		}
	}
	return Declaration{}, false
}

// FindByName returns every declaration with the given name, sorted by
// file and position.
func (g *CodeContextGraph) FindByName(name string) []Declaration {
	var out []Declaration
	for _, d := range g.declarations {
		if d.Name == name {
			out = append(out, d)
		}
	}
	sortBySource(out)
	return out
}

// Relationships returns every edge of the given kind in canonical order.
func (g *CodeContextGraph) Relationships(kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns edges of a kind leaving id. An empty kind matches all.
func (g *CodeContextGraph) Outgoing(id string, kind EdgeKind) []Edge {
	return g.collect(g.outgoing[id], kind)
}

// Incoming returns edges of a kind entering id. An empty kind matches all.
func (g *CodeContextGraph) Incoming(id string, kind EdgeKind) []Edge {
	return g.collect(g.incoming[id], kind)
}

func (g *CodeContextGraph) collect(idx []int, kind EdgeKind) []Edge {
	var out []Edge
	for _, i := range idx {
		if kind == "" || g.edges[i].Kind == kind {
			out = append(out, g.edges[i])
		}
	}
	return out
}

// Callers returns the declarations with a calls edge into id.
func (g *CodeContextGraph) Callers(id string) []Declaration {
	return g.endpoints(g.Incoming(id, EdgeCalls), func(e Edge) string { return e.SourceID })
}

// Callees returns the declarations id has a calls edge to.
func (g *CodeContextGraph) Callees(id string) []Declaration {
	return g.endpoints(g.Outgoing(id, EdgeCalls), func(e Edge) string { return e.TargetID })
}

// Children returns the declarations directly contained by id, in source order.
func (g *CodeContextGraph) Children(id string) []Declaration {
	return g.endpoints(g.Outgoing(id, EdgeContains), func(e Edge) string { return e.TargetID })
}

// Parent returns the declaration containing id.
func (g *CodeContextGraph) Parent(id string) (Declaration, bool) {
	for _, e := range g.Incoming(id, EdgeContains) {
		return g.Declaration(e.SourceID)
	}
	return Declaration{}, false
}

// Imports returns the modules a module imports.
func (g *CodeContextGraph) Imports(moduleID string) []Declaration {
	return g.endpoints(g.Outgoing(moduleID, EdgeImports), func(e Edge) string { return e.TargetID })
}

func (g *CodeContextGraph) endpoints(edges []Edge, pick func(Edge) string) []Declaration {
	seen := make(map[string]bool, len(edges))
	out := make([]Declaration, 0, len(edges))
	for _, e := range edges {
		id := pick(e)
		if seen[id] {
			continue
		}
		seen[id] = true
		if d, ok := g.Declaration(id); ok {
			out = append(out, d)
		}
	}
	sortBySource(out)
	return out
}

// Stats summarizes the graph.
type Stats struct {
	Declarations int               `json:"declarations"`
	Edges        int               `json:"edges"`
	Files        int               `json:"files"`
	Diagnostics  int               `json:"diagnostics"`
	ByKind       map[ast.Kind]int  `json:"by_kind"`
	ByEdgeKind   map[EdgeKind]int  `json:"by_edge_kind"`
	BestEffort   int               `json:"best_effort_edges"`
	ByCode       map[diag.Code]int `json:"by_code"`
}

// Stats counts declarations, edges and diagnostics by kind.
func (g *CodeContextGraph) Stats() Stats {
	s := Stats{
		Declarations: len(g.declarations),
		Edges:        len(g.edges),
		Files:        len(g.byFile),
		Diagnostics:  len(g.diagnostics),
		ByKind:       make(map[ast.Kind]int),
		ByEdgeKind:   make(map[EdgeKind]int),
		ByCode:       make(map[diag.Code]int),
	}
	for _, d := range g.declarations {
		s.ByKind[d.Kind]++
	}
	for _, e := range g.edges {
		s.ByEdgeKind[e.Kind]++
		if e.Confidence == ConfidenceBestEffort {
			s.BestEffort++
		}
	}
	for _, d := range g.diagnostics {
		s.ByCode[d.Code]++
	}
	return s
}

// sortBySource orders declarations by file and start byte. Enclosing
// declarations sort before nested ones that start at the same byte.
func sortBySource(ds []Declaration) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].FilePath != ds[j].FilePath {
			return ds[i].FilePath < ds[j].FilePath
		}
		if ds[i].Span.Start != ds[j].Span.Start {
			return ds[i].Span.Start < ds[j].Span.Start
		}
		if ds[i].Span.End != ds[j].Span.End {
			return ds[i].Span.End > ds[j].Span.End
		}
		return ds[i].ID < ds[j].ID
	})
}
