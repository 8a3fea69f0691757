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
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// patchContext is the number of unchanged outline lines around a change.
const patchContext = 3

// OutlinePatch renders the difference between two graphs as a unified diff
// of per-file declaration outlines.
//
// Description:
//
//	Each file is rendered as one line per declaration, indented by nesting
//	depth: "class Greeter", "  method greet(self, name)". Files whose
//	outline is unchanged are omitted. The result is a standard multi-file
//	unified diff that any patch viewer can display.
//
// Outputs:
//
//	[]byte - The diff. Empty when the outlines are identical.
//	error - Non-nil when either graph is nil or printing fails.
func OutlinePatch(base, target *CodeContextGraph) ([]byte, error) {
	if base == nil || target == nil {
		return nil, errors.New("graphs must not be nil")
	}

	files := make(map[string]bool)
	for _, f := range base.Files() {
		files[f] = true
	}
	for _, f := range target.Files() {
		files[f] = true
	}
	paths := make([]string, 0, len(files))
	for f := range files {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	var fds []*diff.FileDiff
	for _, path := range paths {
		orig := Outline(base, path)
		next := Outline(target, path)
		hunks := outlineHunks(orig, next)
		if len(hunks) == 0 {
			continue
		}
		fd := &diff.FileDiff{OrigName: "a/" + path, NewName: "b/" + path, Hunks: hunks}
		if len(orig) == 0 {
			fd.OrigName = "/dev/null"
		}
		if len(next) == 0 {
			fd.NewName = "/dev/null"
		}
		fds = append(fds, fd)
	}
	if len(fds) == 0 {
		return nil, nil
	}

	out, err := diff.PrintMultiFileDiff(fds)
	if err != nil {
		return nil, fmt.Errorf("printing outline diff: %w", err)
	}
	return out, nil
}

// Outline returns the declaration outline of one file, one line per
// declaration in source order. The module itself is not listed.
func Outline(g *CodeContextGraph, path string) []string {
	decls := g.DeclarationsInFile(path)
	depth := make(map[string]int, len(decls))
	var lines []string
	for _, d := range decls {
		if d.ParentID == "" {
			depth[d.ID] = -1
			continue
		}
		depth[d.ID] = depth[d.ParentID] + 1
		label := string(d.Kind) + " " + d.Name
		if len(d.Parameters) > 0 {
			label += "(" + strings.Join(d.Parameters, ", ") + ")"
		} else if d.Kind == ast.KindFunction || d.Kind == ast.KindMethod {
			label += "()"
		}
		lines = append(lines, strings.Repeat("  ", max(depth[d.ID], 0))+label)
	}
	return lines
}

type editOp struct {
	op   byte
	line string
}

// editScript computes a longest-common-subsequence edit script.
func editScript(a, b []string) []editOp {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	ops := make([]editOp, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{' ', a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, editOp{'-', a[i]})
			i++
		default:
			ops = append(ops, editOp{'+', b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{'-', a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{'+', b[j]})
	}
	return ops
}

// outlineHunks groups an edit script into hunks with patchContext lines of
// surrounding context.
func outlineHunks(orig, next []string) []*diff.Hunk {
	ops := editScript(orig, next)

	var changed []int
	for i, op := range ops {
		if op.op != ' ' {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	// origLine[i] and newLine[i] are the 1-based line numbers before ops[i].
	origLine := make([]int, len(ops)+1)
	newLine := make([]int, len(ops)+1)
	origLine[0], newLine[0] = 1, 1
	for i, op := range ops {
		origLine[i+1], newLine[i+1] = origLine[i], newLine[i]
		if op.op != '+' {
			origLine[i+1]++
		}
		if op.op != '-' {
			newLine[i+1]++
		}
	}

	var hunks []*diff.Hunk
	start := max(changed[0]-patchContext, 0)
	end := min(changed[0]+patchContext+1, len(ops))
	for _, c := range changed[1:] {
		if c-patchContext <= end {
			end = min(c+patchContext+1, len(ops))
			continue
		}
		hunks = append(hunks, buildHunk(ops, start, end, origLine, newLine))
		start = c - patchContext
		end = min(c+patchContext+1, len(ops))
	}
	return append(hunks, buildHunk(ops, start, end, origLine, newLine))
}

func buildHunk(ops []editOp, start, end int, origLine, newLine []int) *diff.Hunk {
	var body strings.Builder
	h := &diff.Hunk{
		OrigStartLine: int32(origLine[start]),
		NewStartLine:  int32(newLine[start]),
	}
	for _, op := range ops[start:end] {
		body.WriteByte(op.op)
		body.WriteString(op.line)
		body.WriteByte('\n')
		if op.op != '+' {
			h.OrigLines++
		}
		if op.op != '-' {
			h.NewLines++
		}
	}
	// Unified diff numbers an empty side from the line before it.
	if h.OrigLines == 0 {
		h.OrigStartLine--
	}
	if h.NewLines == 0 {
		h.NewStartLine--
	}
	h.Body = []byte(body.String())
	return h
}
