// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the pre-defined instruments for the enumeration
// engine. All metrics use the "revtempl_" prefix.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// --- Synthesis Metrics ---

	// SolvesTotal counts solver answers by model, width, and status.
	SolvesTotal metric.Int64Counter

	// SolveDuration records time to a solver answer in seconds.
	SolveDuration metric.Float64Histogram

	// --- Template Metrics ---

	// FamiliesTotal counts newly seeded equivalence families.
	FamiliesTotal metric.Int64Counter

	// TemplatesTotal counts template inserts by outcome (inserted,
	// duplicate).
	TemplatesTotal metric.Int64Counter

	// ExpansionVariants records how many variants one expansion
	// produced.
	ExpansionVariants metric.Int64Histogram

	// ExpansionSkips counts base templates skipped after a failed
	// expansion.
	ExpansionSkips metric.Int64Counter

	// --- Witness Metrics ---

	// WitnessesTotal counts witness inserts by outcome.
	WitnessesTotal metric.Int64Counter
}

// NewMetrics registers every engine instrument with the meter.
//
// # Inputs
//   - meter: the OTel meter to register with, typically
//     otel.Meter("revtempl.engine").
//
// # Outputs
//   - *Metrics with every instrument initialized, or an error when any
//     registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Synthesis Metrics ---
	m.SolvesTotal, err = meter.Int64Counter(
		"revtempl_solves_total",
		metric.WithDescription("Total solver answers"),
		metric.WithUnit("{solve}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create solves_total: %w", err)
	}

	m.SolveDuration, err = meter.Float64Histogram(
		"revtempl_solve_duration_seconds",
		metric.WithDescription("Time to a solver answer in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create solve_duration: %w", err)
	}

	// --- Template Metrics ---
	m.FamiliesTotal, err = meter.Int64Counter(
		"revtempl_families_total",
		metric.WithDescription("Newly seeded equivalence families"),
		metric.WithUnit("{family}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create families_total: %w", err)
	}

	m.TemplatesTotal, err = meter.Int64Counter(
		"revtempl_templates_total",
		metric.WithDescription("Template inserts by outcome"),
		metric.WithUnit("{template}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create templates_total: %w", err)
	}

	m.ExpansionVariants, err = meter.Int64Histogram(
		"revtempl_expansion_variants",
		metric.WithDescription("Variants produced by one equivalence expansion"),
		metric.WithUnit("{variant}"),
		metric.WithExplicitBucketBoundaries(1, 10, 50, 100, 500, 1000, 5000, 10000),
	)
	if err != nil {
		return nil, fmt.Errorf("create expansion_variants: %w", err)
	}

	m.ExpansionSkips, err = meter.Int64Counter(
		"revtempl_expansion_skips_total",
		metric.WithDescription("Base templates skipped after a failed expansion"),
		metric.WithUnit("{template}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create expansion_skips: %w", err)
	}

	// --- Witness Metrics ---
	m.WitnessesTotal, err = meter.Int64Counter(
		"revtempl_witnesses_total",
		metric.WithDescription("Witness inserts by outcome"),
		metric.WithUnit("{witness}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create witnesses_total: %w", err)
	}

	return m, nil
}
