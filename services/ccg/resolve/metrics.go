// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("ccg.resolve")
	meter  = otel.Meter("ccg.resolve")
)

var (
	resolveLatency    metric.Float64Histogram
	resolveReferences metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		resolveLatency, err = meter.Float64Histogram(
			"ccg_resolve_duration_seconds",
			metric.WithDescription("Time to resolve all references of a build"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolveReferences, err = meter.Int64Counter(
			"ccg_resolve_references_total",
			metric.WithDescription("References by outcome (resolved, best_effort, unresolved)"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordResolveMetrics(ctx context.Context, s Stats, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	resolveLatency.Record(ctx, duration.Seconds())
	resolveReferences.Add(ctx, int64(s.Resolved), metric.WithAttributes(attribute.String("outcome", "resolved")))
	resolveReferences.Add(ctx, int64(s.BestEffort), metric.WithAttributes(attribute.String("outcome", "best_effort")))
	resolveReferences.Add(ctx, int64(s.Unresolved), metric.WithAttributes(attribute.String("outcome", "unresolved")))
}

func startResolveSpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(attribute.Int("resolve.files", files)),
	)
}

func setResolveSpanResult(span trace.Span, s Stats) {
	span.SetAttributes(
		attribute.Int("resolve.references", s.References),
		attribute.Int("resolve.resolved", s.Resolved),
		attribute.Int("resolve.best_effort", s.BestEffort),
		attribute.Int("resolve.ambiguous", s.Ambiguous),
		attribute.Int("resolve.unresolved", s.Unresolved),
		attribute.Int("resolve.imports", s.Imports),
	)
}

func setResolveSpanFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
