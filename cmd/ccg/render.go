// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/builder"
	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)
	valueStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

func row(w io.Writer, label string, value any) {
	fmt.Fprintln(w, labelStyle.Render(label)+valueStyle.Render(fmt.Sprint(value)))
}

// printSummary writes a human-readable build summary.
func printSummary(w io.Writer, res *builder.Result) {
	fmt.Fprintln(w, titleStyle.Render("Code Context Graph"))
	row(w, "root", res.Root)
	row(w, "run", res.RunID)
	row(w, "files", fmt.Sprintf("%d scanned, %d parsed (%d cached), %d failed, %d skipped",
		res.Stats.FilesScanned, res.Stats.FilesParsed, res.Stats.FilesCached,
		res.Stats.FilesFailed, res.Stats.FilesSkipped))
	row(w, "declarations", res.Stats.Declarations)
	row(w, "edges", edgeSummary(res.Graph))
	row(w, "references", fmt.Sprintf("%d resolved, %d best-effort, %d unresolved",
		res.Stats.Resolve.Resolved, res.Stats.Resolve.BestEffort, res.Stats.Resolve.Unresolved))
	if res.Languages.Primary != "" {
		row(w, "language", fmt.Sprintf("%s (%.0f%%)", res.Languages.Primary, res.Languages.Confidence*100))
	}
	if len(res.EntryPoints) > 0 {
		row(w, "entry points", strings.Join(res.EntryPoints, ", "))
	}
	row(w, "duration", res.Stats.Duration.Round(time.Millisecond))
	row(w, "graph hash", res.Graph.Hash())

	counts := diagnosticCounts(res.Graph.Diagnostics())
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Diagnostics"))
	for _, c := range counts {
		style := faintStyle
		if c.code.DefaultSeverity() == diag.SeverityWarning {
			style = warnStyle
		}
		fmt.Fprintln(w, labelStyle.Render(fmt.Sprint(c.n))+style.Render(string(c.code)))
	}
}

func edgeSummary(g *graph.CodeContextGraph) string {
	parts := make([]string, 0, len(graph.AllEdgeKinds()))
	for _, k := range graph.AllEdgeKinds() {
		if n := len(g.Relationships(k)); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, ", ")
}

type codeCount struct {
	code diag.Code
	n    int
}

func diagnosticCounts(ds []diag.Diagnostic) []codeCount {
	m := make(map[diag.Code]int)
	for _, d := range ds {
		m[d.Code]++
	}
	out := make([]codeCount, 0, len(m))
	for c, n := range m {
		out = append(out, codeCount{c, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].code < out[j].code
	})
	return out
}

// printDeclarations lists declarations one per line.
func printDeclarations(w io.Writer, decls []graph.Declaration) {
	if len(decls) == 0 {
		fmt.Fprintln(w, faintStyle.Render("(none)"))
		return
	}
	for _, d := range decls {
		fmt.Fprintf(w, "%s %s %s\n",
			warnStyle.Render(fmt.Sprintf("%-9s", d.Kind)),
			valueStyle.Render(d.Name),
			faintStyle.Render(fmt.Sprintf("%s:%d", d.FilePath, d.Span.StartLine)),
		)
	}
}

func printLanguages(w io.Writer, stats scanner.LanguageStats) {
	if stats.Total == 0 {
		fmt.Fprintln(w, faintStyle.Render("no supported source files"))
		return
	}
	langs := make([]ast.Language, 0, len(stats.Files))
	for l := range stats.Files {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if stats.Files[langs[i]] != stats.Files[langs[j]] {
			return stats.Files[langs[i]] > stats.Files[langs[j]]
		}
		return langs[i] < langs[j]
	})
	fmt.Fprintln(w, titleStyle.Render("Languages"))
	for _, l := range langs {
		share := float64(stats.Files[l]) / float64(stats.Total) * 100
		row(w, string(l), fmt.Sprintf("%d files (%.1f%%)", stats.Files[l], share))
	}
	row(w, "primary", fmt.Sprintf("%s (confidence %.2f)", stats.Primary, stats.Confidence))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
