// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	tierMemory = "memory"
	tierDisk   = "disk"
)

var meter = otel.Meter("ccg.cache")

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"ccg_cache_hits_total",
			metric.WithDescription("Extraction cache hits by tier"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"ccg_cache_misses_total",
			metric.WithDescription("Extraction cache misses by tier"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLookup(ctx context.Context, tier string, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tier", tier))
	if hit {
		cacheHits.Add(ctx, 1, attrs)
	} else {
		cacheMisses.Add(ctx, 1, attrs)
	}
}
