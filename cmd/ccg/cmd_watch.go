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
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianCCG/services/ccg/telemetry"
	"github.com/AleutianAI/AleutianCCG/services/ccg/watch"
)

func (a *app) watchCommand() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Rebuild the graph whenever files change",
		Long: `Build once, then rebuild after every debounced batch of file changes.
Each rebuild is diffed against the previous graph and saved as a snapshot
when it changed. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context(), rootArg(args), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	return cmd
}

func (a *app) runWatch(ctx context.Context, root, metricsAddr string) error {
	p, err := a.openProject(root, false)
	if err != nil {
		return err
	}
	defer p.Close()

	opts := []watch.RunnerOption{
		watch.WithDebounce(p.cfg.Watch.Debounce),
		watch.WithMinInterval(p.cfg.Watch.MinInterval),
		watch.WithIgnorePatterns(append(watch.DefaultIgnorePatterns(), p.cfg.IgnoreGlobs...)),
		watch.WithRunnerLogger(a.logger),
		watch.WithOnRebuild(func(rb watch.Rebuild) {
			if rb.Err != nil || rb.Seq > 1 {
				return
			}
			printSummary(a.stdout, rb.Result)
		}),
	}
	if p.snapshots != nil && p.cfg.Snapshots.Enabled {
		opts = append(opts, watch.WithSnapshots(p.snapshots, p.cfg.Snapshots.Keep))
	}
	runner := watch.NewRunner(p.root, p.builder, opts...)

	g, gctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		a.logger.Info("serving metrics", slog.String("addr", metricsAddr))
		g.Go(func() error {
			return telemetry.ServeMetrics(gctx, metricsAddr)
		})
	}
	g.Go(func() error {
		return runner.Run(gctx)
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
