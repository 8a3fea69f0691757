// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
)

var (
	tracer = otel.Tracer("ccg.builder")
	meter  = otel.Meter("ccg.builder")
)

// Prometheus counters for the default registry. These back the /metrics
// endpoint served by the watch command alongside the otel exporter.
var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ccg",
		Subsystem: "builder",
		Name:      "builds_total",
		Help:      "Builds by final state",
	}, []string{"state"})

	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ccg",
		Subsystem: "builder",
		Name:      "files_total",
		Help:      "Files seen by builds, by outcome",
	}, []string{"outcome"})

	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ccg",
		Subsystem: "builder",
		Name:      "diagnostics_total",
		Help:      "Diagnostics attached to built graphs, by code",
	}, []string{"code"})
)

var (
	buildLatency metric.Float64Histogram
	buildGraphs  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"ccg_build_duration_seconds",
			metric.WithDescription("End-to-end build duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildGraphs, err = meter.Int64Counter(
			"ccg_build_total",
			metric.WithDescription("Builds by final state"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, state State, duration time.Duration, res *Result) {
	buildsTotal.WithLabelValues(state.String()).Inc()
	if res != nil {
		filesTotal.WithLabelValues("parsed").Add(float64(res.Stats.FilesParsed - res.Stats.FilesCached))
		filesTotal.WithLabelValues("cached").Add(float64(res.Stats.FilesCached))
		filesTotal.WithLabelValues("failed").Add(float64(res.Stats.FilesFailed))
		filesTotal.WithLabelValues("skipped").Add(float64(res.Stats.FilesSkipped))
		if res.Graph != nil {
			counts := make(map[diag.Code]int)
			for _, d := range res.Graph.Diagnostics() {
				counts[d.Code]++
			}
			for code, n := range counts {
				diagnosticsTotal.WithLabelValues(string(code)).Add(float64(n))
			}
		}
	}

	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state.String()))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildGraphs.Add(ctx, 1, attrs)
}

func runIDAttr(id string) attribute.KeyValue {
	return attribute.String("ccg.run_id", id)
}

func startBuildSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(attribute.String("ccg.root", root)),
	)
}

func setBuildSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Int("ccg.files_parsed", res.Stats.FilesParsed),
		attribute.Int("ccg.files_failed", res.Stats.FilesFailed),
		attribute.Int("ccg.declarations", res.Stats.Declarations),
		attribute.Int("ccg.edges", res.Stats.Edges),
		attribute.Int("ccg.diagnostics", res.Stats.Diagnostics),
		attribute.String("ccg.graph_hash", res.Graph.Hash()),
	)
	span.SetStatus(codes.Ok, "")
}

func setBuildSpanFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
