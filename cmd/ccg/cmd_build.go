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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCCG/services/ccg/builder"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

// buildReport is the JSON document written by `ccg build --json`.
type buildReport struct {
	RunID       string                   `json:"run_id"`
	Root        string                   `json:"root"`
	Stats       builder.Stats            `json:"stats"`
	Languages   scanner.LanguageStats    `json:"languages"`
	EntryPoints []string                 `json:"entry_points"`
	FileTree    *scanner.FileNode        `json:"file_tree"`
	Graph       *graph.SerializableGraph `json:"graph"`
	Snapshot    *graph.SnapshotMetadata  `json:"snapshot,omitempty"`
}

func newBuildReport(res *builder.Result, snap *graph.SnapshotMetadata) buildReport {
	entries := res.EntryPoints
	if entries == nil {
		entries = []string{}
	}
	return buildReport{
		RunID:       res.RunID,
		Root:        res.Root,
		Stats:       res.Stats,
		Languages:   res.Languages,
		EntryPoints: entries,
		FileTree:    res.FileTree,
		Graph:       res.Graph.ToSerializable(),
		Snapshot:    snap,
	}
}

type buildFlags struct {
	output   string
	json     bool
	snapshot bool
	label    string
}

func (a *app) buildCommand() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build [root]",
		Short: "Build the graph of a source tree",
		Long: `Scan the tree, extract declarations from every supported file, resolve
references and print a summary. Per-file problems are reported as
diagnostics; the command fails only when the root cannot be read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd.Context(), rootArg(args), f, cmd.Flags().Changed("snapshot"))
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the full JSON report to this file")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the full JSON report on stdout instead of a summary")
	cmd.Flags().BoolVar(&f.snapshot, "snapshot", true, "Save a snapshot when the graph changed (default from config)")
	cmd.Flags().StringVar(&f.label, "label", "", "Snapshot label")
	return cmd
}

func (a *app) runBuild(ctx context.Context, root string, f buildFlags, snapshotFlagSet bool) error {
	p, err := a.openProject(root, false)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.builder.Build(ctx, p.root)
	if err != nil {
		return err
	}

	saveSnapshot := p.cfg.Snapshots.Enabled
	if snapshotFlagSet {
		saveSnapshot = f.snapshot
	}
	var snap *graph.SnapshotMetadata
	if saveSnapshot && p.snapshots != nil {
		snap, err = saveAndPrune(ctx, p, res.Graph, f.label)
		if err != nil {
			a.logger.Warn("snapshot not saved", slog.String("error", err.Error()))
		}
	}

	if f.output != "" {
		if err := a.writeReportFile(f.output, newBuildReport(res, snap)); err != nil {
			return err
		}
	}
	if f.json {
		return writeJSON(a.stdout, newBuildReport(res, snap))
	}
	printSummary(a.stdout, res)
	if snap != nil {
		row(a.stdout, "snapshot", snap.SnapshotID)
	}
	return nil
}

func saveAndPrune(ctx context.Context, p *project, g *graph.CodeContextGraph, label string) (*graph.SnapshotMetadata, error) {
	meta, saved, err := p.snapshots.SaveIfChanged(ctx, g, label)
	if err != nil {
		return nil, err
	}
	if saved && p.cfg.Snapshots.Keep > 0 {
		if _, err := p.snapshots.Prune(ctx, meta.ProjectHash, p.cfg.Snapshots.Keep); err != nil {
			return meta, fmt.Errorf("pruning snapshots: %w", err)
		}
	}
	return meta, nil
}

func (a *app) writeReportFile(path string, report buildReport) (err error) {
	if path == "-" {
		return writeJSON(a.stdout, report)
	}
	var w io.WriteCloser
	w, err = os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return writeJSON(w, report)
}
