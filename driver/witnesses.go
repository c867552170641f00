// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidewater-labs/revtempl/store"
	"github.com/tidewater-labs/revtempl/witness"
)

// BuildWitnesses extracts and stores the witness prefix of every
// template in the given cells.
//
// # Description
//
// Witness prefixes are cut from the stored canonical form, so reruns
// are idempotent: a prefix already stored counts as a duplicate and
// nothing is written. Witness records keep the source template id, and
// templates sharing a prefix accumulate on the same witness.
func (d *Driver) BuildWitnesses(ctx context.Context, widths, gateCounts []int) (InsertStats, error) {
	var stats InsertStats
	if ctx == nil {
		return stats, ErrNilContext
	}
	d.initMetrics()

	ctx, span := tracer.Start(ctx, "driver.BuildWitnesses",
		trace.WithAttributes(
			attribute.String("model", d.store.Model().Name()),
			attribute.IntSlice("widths", widths),
			attribute.IntSlice("gate_counts", gateCounts),
		),
	)
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()[:12] // 48 bits of entropy

	d.logger.Info("witness build started",
		slog.String("run_id", runID),
		slog.Any("widths", widths),
		slog.Any("gate_counts", gateCounts),
	)

	for _, w := range widths {
		for _, gc := range gateCounts {
			// Collect the cell before writing; witness inserts must not
			// overlap the template scan.
			var recs []store.TemplateRecord
			err := d.store.ScanDims(ctx, w, gc, func(rec store.TemplateRecord) error {
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return stats, err
			}

			for _, rec := range recs {
				c, err := rec.Circuit()
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					return stats, err
				}
				wres, err := d.store.InsertWitness(ctx, store.WitnessInsert{
					Circuit:          witness.Extract(c),
					SourceTemplateID: rec.TemplateID,
				})
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					return stats, err
				}
				if wres.Inserted {
					stats.Inserted++
				} else {
					stats.Duplicates++
				}
				if d.metrics != nil {
					outcome := "duplicate"
					if wres.Inserted {
						outcome = "inserted"
					}
					d.metrics.WitnessesTotal.Add(ctx, 1, metric.WithAttributes(
						attribute.String("outcome", outcome),
					))
				}
				if d.progress.Allow() {
					d.logger.Info("witness progress",
						slog.String("run_id", runID),
						slog.Int("width", w),
						slog.Int("gate_count", gc),
						slog.Uint64("inserted", stats.Inserted),
						slog.Uint64("duplicates", stats.Duplicates),
					)
				}
			}
		}
	}

	span.SetStatus(codes.Ok, "")
	d.logger.Info("witness build finished",
		slog.String("run_id", runID),
		slog.Uint64("inserted", stats.Inserted),
		slog.Uint64("duplicates", stats.Duplicates),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}
