// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

var (
	tracer = otel.Tracer("ccg.extract")
	meter  = otel.Meter("ccg.extract")
)

var (
	extractLatency metric.Float64Histogram
	extractTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"ccg_extract_duration_seconds",
			metric.WithDescription("Time to turn one file into declarations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractTotal, err = meter.Int64Counter(
			"ccg_extract_files_total",
			metric.WithDescription("Files extracted by outcome (parsed, cached, failure)"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordExtractMetrics(ctx context.Context, lang ast.Language, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("language", string(lang)),
		attribute.String("outcome", outcome),
	)
	extractLatency.Record(ctx, duration.Seconds(), attrs)
	extractTotal.Add(ctx, 1, attrs)
}

func startExtractSpan(ctx context.Context, unit *scanner.ParseUnit) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Extractor.Extract",
		trace.WithAttributes(
			attribute.String("extract.file", unit.RelPath),
			attribute.String("extract.language", string(unit.Language)),
			attribute.Int("extract.content_size", len(unit.Content)),
		),
	)
}

func setExtractSpanResult(span trace.Span, declarations, references int, cached bool) {
	span.SetAttributes(
		attribute.Int("extract.declarations", declarations),
		attribute.Int("extract.references", references),
		attribute.Bool("extract.cached", cached),
	)
}

func setExtractSpanFailure(span trace.Span, pf *ast.ParseFailure) {
	span.SetStatus(codes.Error, pf.Message)
	span.SetAttributes(attribute.Int("extract.error_line", pf.Line))
}
