// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for grammar adapters.
var (
	tracer = otel.Tracer("ccg.ast")
	meter  = otel.Meter("ccg.ast")
)

var (
	parseLatency          metric.Float64Histogram
	parseTotal            metric.Int64Counter
	parseErrors           metric.Int64Counter
	declarationsExtracted metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"ccg_ast_parse_duration_seconds",
			metric.WithDescription("Duration of grammar parse operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"ccg_ast_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"ccg_ast_parse_errors_total",
			metric.WithDescription("Total number of parse failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		declarationsExtracted, err = meter.Int64Histogram(
			"ccg_ast_declarations_extracted",
			metric.WithDescription("Number of declarations extracted per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for a parse operation.
func recordParseMetrics(ctx context.Context, lang Language, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("language", string(lang)),
		attribute.Bool("success", success),
	)
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	if !success {
		parseErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("language", string(lang))))
	}
}

// recordExtractMetrics records the number of declarations produced for a file.
func recordExtractMetrics(ctx context.Context, lang Language, declarations int) {
	if err := initMetrics(); err != nil {
		return
	}
	declarationsExtracted.Record(ctx, int64(declarations),
		metric.WithAttributes(attribute.String("language", string(lang))),
	)
}

// startParseSpan creates a span for a parse operation.
//
// Returns:
//   - ctx: Context with span
//   - span: The created span (caller must call span.End())
func startParseSpan(ctx context.Context, lang Language, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Adapter.Parse",
		trace.WithAttributes(
			attribute.String("ast.language", string(lang)),
			attribute.String("ast.file", filePath),
			attribute.Int("ast.content_size", contentSize),
		),
	)
}

// startExtractSpan creates a span for an extraction operation.
func startExtractSpan(ctx context.Context, lang Language, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Adapter.Extract",
		trace.WithAttributes(
			attribute.String("ast.language", string(lang)),
			attribute.String("ast.file", filePath),
		),
	)
}

// setExtractSpanResult sets the result attributes on an extract span.
func setExtractSpanResult(span trace.Span, declarations, references int) {
	span.SetAttributes(
		attribute.Int("ast.declaration_count", declarations),
		attribute.Int("ast.reference_count", references),
	)
}
