// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("ccg.watch")

var (
	rebuildsTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		rebuildsTotal, metricsErr = meter.Int64Counter(
			"ccg_watch_rebuilds_total",
			metric.WithDescription("Watch-mode builds by outcome (changed, unchanged, failed)"),
		)
	})
	return metricsErr
}

func recordRebuild(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	rebuildsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
