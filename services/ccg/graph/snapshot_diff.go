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
	"errors"
	"slices"
	"sort"
	"strings"
)

// ChangeType classifies a modified declaration.
type ChangeType string

const (
	// ChangeSignature means the declaration header or parameters changed.
	ChangeSignature ChangeType = "signature_changed"

	// ChangeBody means only the extent of the declaration changed.
	ChangeBody ChangeType = "body_changed"

	// ChangeDoc means only the doc comment changed.
	ChangeDoc ChangeType = "doc_changed"

	// ChangeEdges means the declaration's relationships changed.
	ChangeEdges ChangeType = "edges_changed"
)

// GraphDiff is the structural difference between two graphs.
//
// Description:
//
//	Declaration ids embed byte offsets, so an edit near the top of a file
//	changes every id below it. The diff therefore matches declarations by
//	their logical path (file, kind and chain of enclosing names) and
//	compares edges by the logical paths of their endpoints.
type GraphDiff struct {
	BaseHash   string `json:"base_hash"`
	TargetHash string `json:"target_hash"`

	// DeclarationsAdded and DeclarationsRemoved list logical paths.
	DeclarationsAdded   []string `json:"declarations_added"`
	DeclarationsRemoved []string `json:"declarations_removed"`

	DeclarationsModified []DeclarationChange `json:"declarations_modified"`

	// EdgesAdded and EdgesRemoved list "kind source -> target" by logical path.
	EdgesAdded   []string `json:"edges_added"`
	EdgesRemoved []string `json:"edges_removed"`

	Summary DiffSummary `json:"summary"`
}

// DeclarationChange describes one declaration present in both graphs.
type DeclarationChange struct {
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	FilePath   string     `json:"file_path"`
	ChangeType ChangeType `json:"change_type"`
}

// DiffSummary aggregates a GraphDiff.
type DiffSummary struct {
	TotalChanges  int     `json:"total_changes"`
	FilesAffected int     `json:"files_affected"`
	ChangeRatio   float64 `json:"change_ratio"`
}

// Empty reports whether the graphs are structurally identical.
func (d *GraphDiff) Empty() bool {
	return d.Summary.TotalChanges == 0
}

// DiffGraphs compares two graphs.
//
// Outputs:
//
//	*GraphDiff - Deterministic: every list is sorted.
//	error - Non-nil only when either graph is nil.
func DiffGraphs(base, target *CodeContextGraph) (*GraphDiff, error) {
	if base == nil || target == nil {
		return nil, errors.New("graphs must not be nil")
	}

	diff := &GraphDiff{
		BaseHash:             base.Hash(),
		TargetHash:           target.Hash(),
		DeclarationsAdded:    []string{},
		DeclarationsRemoved:  []string{},
		DeclarationsModified: []DeclarationChange{},
		EdgesAdded:           []string{},
		EdgesRemoved:         []string{},
	}
	if base.Hash() == target.Hash() {
		return diff, nil
	}

	basePaths := logicalPaths(base)
	targetPaths := logicalPaths(target)
	baseByPath := invertPaths(base, basePaths)
	targetByPath := invertPaths(target, targetPaths)

	baseEdges := logicalEdges(base, basePaths)
	targetEdges := logicalEdges(target, targetPaths)

	affected := make(map[string]bool)
	for path, td := range targetByPath {
		bd, ok := baseByPath[path]
		if !ok {
			diff.DeclarationsAdded = append(diff.DeclarationsAdded, path)
			affected[td.FilePath] = true
			continue
		}
		ct, changed := classifyDeclaration(bd, td, baseEdges.byEndpoint[path], targetEdges.byEndpoint[path])
		if changed {
			diff.DeclarationsModified = append(diff.DeclarationsModified, DeclarationChange{
				Path: path, Name: td.Name, FilePath: td.FilePath, ChangeType: ct,
			})
			affected[td.FilePath] = true
		}
	}
	for path, bd := range baseByPath {
		if _, ok := targetByPath[path]; !ok {
			diff.DeclarationsRemoved = append(diff.DeclarationsRemoved, path)
			affected[bd.FilePath] = true
		}
	}

	for key := range targetEdges.set {
		if !baseEdges.set[key] {
			diff.EdgesAdded = append(diff.EdgesAdded, key)
		}
	}
	for key := range baseEdges.set {
		if !targetEdges.set[key] {
			diff.EdgesRemoved = append(diff.EdgesRemoved, key)
		}
	}

	sort.Strings(diff.DeclarationsAdded)
	sort.Strings(diff.DeclarationsRemoved)
	sort.Strings(diff.EdgesAdded)
	sort.Strings(diff.EdgesRemoved)
	sort.Slice(diff.DeclarationsModified, func(i, j int) bool {
		return diff.DeclarationsModified[i].Path < diff.DeclarationsModified[j].Path
	})

	declChanges := len(diff.DeclarationsAdded) + len(diff.DeclarationsRemoved) + len(diff.DeclarationsModified)
	total := max(len(baseByPath), len(targetByPath))
	ratio := 0.0
	if total > 0 {
		ratio = float64(declChanges) / float64(total)
	}
	diff.Summary = DiffSummary{
		TotalChanges:  declChanges + len(diff.EdgesAdded) + len(diff.EdgesRemoved),
		FilesAffected: len(affected),
		ChangeRatio:   ratio,
	}
	return diff, nil
}

// logicalPaths maps every declaration id to "file#kind:outer.inner".
func logicalPaths(g *CodeContextGraph) map[string]string {
	paths := make(map[string]string, len(g.declarations))
	for _, d := range g.declarations {
		var names []string
		for cur, ok := d, true; ok; cur, ok = g.Declaration(cur.ParentID) {
			if cur.ParentID == "" {
				break
			}
			names = append(names, cur.Name)
		}
		slices.Reverse(names)
		paths[d.ID] = d.FilePath + "#" + string(d.Kind) + ":" + strings.Join(names, ".")
	}
	return paths
}

// invertPaths maps logical paths back to declarations. When two
// declarations share a path (redefinition in one scope) the first in
// source order wins.
func invertPaths(g *CodeContextGraph, paths map[string]string) map[string]Declaration {
	ordered := g.Declarations()
	sortBySource(ordered)
	out := make(map[string]Declaration, len(ordered))
	for _, d := range ordered {
		p := paths[d.ID]
		if _, ok := out[p]; !ok {
			out[p] = d
		}
	}
	return out
}

type edgeSet struct {
	set        map[string]bool
	byEndpoint map[string][]string
}

func logicalEdges(g *CodeContextGraph, paths map[string]string) edgeSet {
	es := edgeSet{set: make(map[string]bool, len(g.edges)), byEndpoint: make(map[string][]string)}
	for _, e := range g.edges {
		src, dst := paths[e.SourceID], paths[e.TargetID]
		key := string(e.Kind) + " " + src + " -> " + dst
		if es.set[key] {
			continue
		}
		es.set[key] = true
		if e.Kind == EdgeContains {
			continue
		}
		es.byEndpoint[src] = append(es.byEndpoint[src], key)
		es.byEndpoint[dst] = append(es.byEndpoint[dst], key)
	}
	return es
}

func classifyDeclaration(base, target Declaration, baseEdges, targetEdges []string) (ChangeType, bool) {
	switch {
	case base.Signature != target.Signature || !slices.Equal(base.Parameters, target.Parameters):
		return ChangeSignature, true
	case !sameEdges(baseEdges, targetEdges):
		return ChangeEdges, true
	case base.Span.End-base.Span.Start != target.Span.End-target.Span.Start,
		base.Span.EndLine-base.Span.StartLine != target.Span.EndLine-target.Span.StartLine:
		return ChangeBody, true
	case base.DocComment != target.DocComment:
		return ChangeDoc, true
	}
	return "", false
}

func sameEdges(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = slices.Clone(a)
	b = slices.Clone(b)
	sort.Strings(a)
	sort.Strings(b)
	return slices.Equal(a, b)
}
