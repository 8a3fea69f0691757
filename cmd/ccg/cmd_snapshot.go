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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
)

// ErrNotEnoughSnapshots indicates a diff was requested with fewer than two
// snapshots stored for the project.
var ErrNotEnoughSnapshots = errors.New("need at least two snapshots to diff")

func (a *app) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect saved graph snapshots",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list [root]",
		Short: "List snapshots of a project, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSnapshotList(cmd.Context(), rootArg(args), limit)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum snapshots to list")

	var showRoot string
	var showJSON bool
	show := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSnapshotShow(cmd.Context(), showRoot, args[0], showJSON)
		},
	}
	show.Flags().StringVar(&showRoot, "root", ".", "Project root whose config locates the store")
	show.Flags().BoolVar(&showJSON, "json", false, "Print the snapshot's graph as JSON")

	var df diffFlags
	diff := &cobra.Command{
		Use:   "diff [root]",
		Short: "Compare two snapshots (default: the two newest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSnapshotDiff(cmd.Context(), rootArg(args), df)
		},
	}
	diff.Flags().StringVar(&df.base, "base", "", "Base snapshot id")
	diff.Flags().StringVar(&df.target, "target", "", "Target snapshot id")
	diff.Flags().BoolVar(&df.patch, "patch", false, "Print a unified diff of declaration outlines")

	cmd.AddCommand(list, show, diff)
	return cmd
}

func (a *app) runSnapshotList(ctx context.Context, root string, limit int) error {
	p, err := a.openProject(root, true)
	if err != nil {
		return err
	}
	defer p.Close()

	metas, err := p.snapshots.List(ctx, graph.ProjectHash(p.root), limit)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(a.stdout, faintStyle.Render("no snapshots for "+p.root))
		return nil
	}
	fmt.Fprintln(a.stdout, titleStyle.Render("Snapshots of "+p.root))
	for _, m := range metas {
		label := m.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(a.stdout, "%s  %s  %6d decls  %6d edges  %4d diags  %s\n",
			valueStyle.Render(m.SnapshotID),
			m.CreatedAt().Local().Format(time.DateTime),
			m.DeclarationCount, m.EdgeCount, m.DiagnosticCount,
			faintStyle.Render(label),
		)
	}
	return nil
}

func (a *app) runSnapshotShow(ctx context.Context, root, id string, asJSON bool) error {
	p, err := a.openProject(root, true)
	if err != nil {
		return err
	}
	defer p.Close()

	g, meta, err := p.snapshots.Load(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(a.stdout, g.ToSerializable())
	}
	fmt.Fprintln(a.stdout, titleStyle.Render("Snapshot "+meta.SnapshotID))
	row(a.stdout, "root", meta.ProjectRoot)
	row(a.stdout, "created", meta.CreatedAt().Local().Format(time.RFC3339))
	if meta.Label != "" {
		row(a.stdout, "label", meta.Label)
	}
	row(a.stdout, "graph hash", meta.GraphHash)
	row(a.stdout, "declarations", meta.DeclarationCount)
	row(a.stdout, "edges", edgeSummary(g))
	row(a.stdout, "diagnostics", meta.DiagnosticCount)
	row(a.stdout, "files", len(g.Files()))
	row(a.stdout, "size", fmt.Sprintf("%d bytes compressed", meta.CompressedSize))
	return nil
}

type diffFlags struct {
	base   string
	target string
	patch  bool
}

func (a *app) runSnapshotDiff(ctx context.Context, root string, f diffFlags) error {
	p, err := a.openProject(root, true)
	if err != nil {
		return err
	}
	defer p.Close()

	baseID, targetID := f.base, f.target
	if baseID == "" || targetID == "" {
		metas, err := p.snapshots.List(ctx, graph.ProjectHash(p.root), 2)
		if err != nil {
			return err
		}
		switch {
		case targetID == "" && baseID == "":
			if len(metas) < 2 {
				return ErrNotEnoughSnapshots
			}
			targetID, baseID = metas[0].SnapshotID, metas[1].SnapshotID
		case targetID == "":
			if len(metas) == 0 {
				return ErrNotEnoughSnapshots
			}
			targetID = metas[0].SnapshotID
		default:
			if len(metas) < 2 {
				return ErrNotEnoughSnapshots
			}
			baseID = metas[1].SnapshotID
		}
	}

	base, _, err := p.snapshots.Load(ctx, baseID)
	if err != nil {
		return fmt.Errorf("loading base %s: %w", baseID, err)
	}
	target, _, err := p.snapshots.Load(ctx, targetID)
	if err != nil {
		return fmt.Errorf("loading target %s: %w", targetID, err)
	}

	if f.patch {
		out, err := graph.OutlinePatch(base, target)
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(out)
		return err
	}
	d, err := graph.DiffGraphs(base, target)
	if err != nil {
		return err
	}
	return writeJSON(a.stdout, d)
}
