// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package sat

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for solver race instrumentation.
var meter = otel.Meter("revtempl.sat")

// Metrics for solver races.
var (
	raceWins     metric.Int64Counter
	raceFailures metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		raceWins, err = meter.Int64Counter(
			"revtempl_sat_race_wins_total",
			metric.WithDescription("Races won, by backend and answer status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		raceFailures, err = meter.Int64Counter(
			"revtempl_sat_race_failures_total",
			metric.WithDescription("Races where every backend failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRaceWin records the backend that answered first.
func recordRaceWin(ctx context.Context, backend, status string) {
	if err := initMetrics(); err != nil {
		return
	}
	raceWins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
}

// recordRaceFailure records a race with no surviving backend.
func recordRaceFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	raceFailures.Add(ctx, 1)
}
