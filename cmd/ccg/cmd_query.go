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
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

// ErrNoSuchDeclaration indicates a query named a declaration the graph
// does not contain.
var ErrNoSuchDeclaration = errors.New("no declaration with that name")

type queryFlags struct {
	fromSnapshot bool
	asJSON       bool
}

// queryKind selects what a query prints for each matched declaration.
type queryKind int

const (
	queryFind queryKind = iota
	queryCallers
	queryCallees
	queryChildren
)

func (a *app) queryCommand() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query relationships in a project's graph",
	}
	cmd.PersistentFlags().BoolVar(&f.fromSnapshot, "from-snapshot", false, "Query the latest snapshot instead of building")
	cmd.PersistentFlags().BoolVar(&f.asJSON, "json", false, "Print results as JSON")

	sub := func(use, short string, kind queryKind) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <root> <name>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runQuery(cmd.Context(), args[0], args[1], kind, f)
			},
		}
	}
	cmd.AddCommand(
		sub("find", "Find declarations by name", queryFind),
		sub("callers", "List declarations that call <name>", queryCallers),
		sub("callees", "List declarations called by <name>", queryCallees),
		sub("children", "List declarations contained in <name>", queryChildren),
	)
	return cmd
}

// loadGraph builds the project or, with --from-snapshot, loads its latest
// snapshot.
func (a *app) loadGraph(ctx context.Context, p *project, fromSnapshot bool) (*graph.CodeContextGraph, error) {
	if fromSnapshot {
		if p.snapshots == nil {
			return nil, errors.New("snapshots are disabled")
		}
		g, _, err := p.snapshots.LoadLatest(ctx, graph.ProjectHash(p.root))
		return g, err
	}
	res, err := p.builder.Build(ctx, p.root)
	if err != nil {
		return nil, err
	}
	return res.Graph, nil
}

type queryResult struct {
	Declaration graph.Declaration   `json:"declaration"`
	Related     []graph.Declaration `json:"related,omitempty"`
}

func (a *app) runQuery(ctx context.Context, root, name string, kind queryKind, f queryFlags) error {
	p, err := a.openProject(root, f.fromSnapshot)
	if err != nil {
		return err
	}
	defer p.Close()

	g, err := a.loadGraph(ctx, p, f.fromSnapshot)
	if err != nil {
		return err
	}
	matches := g.FindByName(name)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %q", ErrNoSuchDeclaration, name)
	}

	results := make([]queryResult, 0, len(matches))
	for _, d := range matches {
		r := queryResult{Declaration: d}
		switch kind {
		case queryCallers:
			r.Related = g.Callers(d.ID)
		case queryCallees:
			r.Related = g.Callees(d.ID)
		case queryChildren:
			r.Related = g.Children(d.ID)
		}
		results = append(results, r)
	}

	if f.asJSON {
		return writeJSON(a.stdout, results)
	}
	if kind == queryFind {
		printDeclarations(a.stdout, matches)
		return nil
	}
	for _, r := range results {
		fmt.Fprintln(a.stdout, titleStyle.Render(fmt.Sprintf("%s %s (%s:%d)",
			r.Declaration.Kind, r.Declaration.Name, r.Declaration.FilePath, r.Declaration.Span.StartLine)))
		printDeclarations(a.stdout, r.Related)
	}
	return nil
}

func (a *app) languagesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "languages [root]",
		Short: "Count source files per language without building",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLanguages(cmd.Context(), rootArg(args), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")
	return cmd
}

func (a *app) runLanguages(ctx context.Context, root string, asJSON bool) error {
	cfg, err := a.loadConfig(root)
	if err != nil {
		return err
	}
	sc := cfg.ScannerConfig()
	sc.Logger = a.logger
	items, err := scanner.NewScanner(sc).Scan(ctx)
	if err != nil {
		return err
	}
	var entries []scanner.FileEntry
	for item := range items {
		if item.Entry != nil {
			entries = append(entries, *item.Entry)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := scanner.ComputeLanguageStats(entries)
	if asJSON {
		return writeJSON(a.stdout, stats)
	}
	printLanguages(a.stdout, stats)
	return nil
}
