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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
)

var (
	tracer = otel.Tracer("ccg.graph")
	meter  = otel.Meter("ccg.graph")
)

var (
	assembleLatency     metric.Float64Histogram
	graphSize           metric.Int64Histogram
	invariantViolations metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		assembleLatency, err = meter.Float64Histogram(
			"ccg_graph_assemble_duration_seconds",
			metric.WithDescription("Duration of graph assembly"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphSize, err = meter.Int64Histogram(
			"ccg_graph_size",
			metric.WithDescription("Declarations and edges per assembled graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		invariantViolations, err = meter.Int64Counter(
			"ccg_graph_invariant_violations_total",
			metric.WithDescription("Inputs rejected by the assembler"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordAssembleMetrics(ctx context.Context, g *CodeContextGraph, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	assembleLatency.Record(ctx, duration.Seconds())
	graphSize.Record(ctx, int64(g.DeclarationCount()), metric.WithAttributes(attribute.String("element", "declarations")))
	graphSize.Record(ctx, int64(g.EdgeCount()), metric.WithAttributes(attribute.String("element", "edges")))

	violations := 0
	for _, d := range g.diagnostics {
		if d.Code == diag.CodeInvariantViolation {
			violations++
		}
	}
	if violations > 0 {
		invariantViolations.Add(ctx, int64(violations))
	}
}

func startAssembleSpan(ctx context.Context, declarations, edges int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Assembler.Assemble",
		trace.WithAttributes(
			attribute.Int("graph.input_declarations", declarations),
			attribute.Int("graph.input_edges", edges),
		),
	)
}

func setAssembleSpanResult(span trace.Span, g *CodeContextGraph) {
	span.SetAttributes(
		attribute.Int("graph.declarations", g.DeclarationCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
		attribute.Int("graph.diagnostics", len(g.diagnostics)),
		attribute.String("graph.hash", g.Hash()),
	)
}
