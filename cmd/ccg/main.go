// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ccg builds Code Context Graphs of polyglot source trees.
//
// Usage:
//
//	ccg build ./project                     # summary on stdout
//	ccg build ./project -o graph.json       # full graph as JSON
//	ccg watch ./project --metrics-addr :9464
//	ccg snapshot list ./project
//	ccg snapshot diff ./project --patch
//	ccg query callers ./project helper
//	ccg languages ./project
//
// Settings come from <root>/ccg.config.yaml when present, then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCCG/services/ccg/builder"
	"github.com/AleutianAI/AleutianCCG/services/ccg/telemetry"
)

// globalFlags hold the persistent flags shared by every command.
type globalFlags struct {
	logLevel       string
	logFormat      string
	configPath     string
	workers        int
	noCache        bool
	traceExporter  string
	metricExporter string
}

// app is the state of one CLI invocation.
type app struct {
	flags    globalFlags
	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ccg",
		Short:         "Build Code Context Graphs of source trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", string(telemetry.LogFormatAuto), "Log format: auto, text, json")
	pf.StringVar(&a.flags.configPath, "config", "", "Config file (default <root>/"+"ccg.config.yaml)")
	pf.IntVar(&a.flags.workers, "workers", 0, "Worker count (default from config, else number of CPUs)")
	pf.BoolVar(&a.flags.noCache, "no-cache", false, "Disable the extraction cache")
	pf.StringVar(&a.flags.traceExporter, "trace-exporter", "", "Trace exporter: none, otlp, stdout (default $OTEL_TRACES_EXPORTER or none)")
	pf.StringVar(&a.flags.metricExporter, "metric-exporter", "", "Metric exporter: none, prometheus, stdout (default $OTEL_METRICS_EXPORTER or prometheus)")

	root.AddCommand(
		a.buildCommand(),
		a.watchCommand(),
		a.snapshotCommand(),
		a.queryCommand(),
		a.languagesCommand(),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	level, err := telemetry.ParseLevel(a.flags.logLevel)
	if err != nil {
		return err
	}
	a.logger = telemetry.NewLogger(a.stderr, level, telemetry.LogFormat(a.flags.logFormat))
	slog.SetDefault(a.logger)

	cfg := telemetry.DefaultConfig()
	if a.flags.traceExporter != "" {
		cfg.TraceExporter = a.flags.traceExporter
	}
	if a.flags.metricExporter != "" {
		cfg.MetricExporter = a.flags.metricExporter
	}
	a.shutdown, err = telemetry.Init(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	return nil
}

func (a *app) teardown() error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.shutdown(ctx)
}

// exitCode maps an error to the process exit status: 2 for fatal input
// errors, 130 for interruption, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, builder.ErrCanceled), errors.Is(err, context.Canceled):
		return 130
	case errors.As(err, new(*builder.FatalInputError)):
		return 2
	default:
		return 1
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	err := a.rootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		if a.shutdown != nil {
			_ = a.teardown()
		}
	}
	stop()
	os.Exit(exitCode(err))
}
