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
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/store"
	"github.com/tidewater-labs/revtempl/synth"
	"github.com/tidewater-labs/revtempl/truthtable"
)

// BuildDatabase enumerates identity templates over the cross product of
// widths and gate counts.
//
// # Description
//
// Each (width, gateCount) point runs its own state machine: solve for
// the next identity, expand it into its equivalence family, store the
// members, exclude the family from the formula, and repeat until the
// solver proves exhaustion. A point that fails on a solver or encoding
// error is recorded as failed and the remaining points still run;
// context cancellation and store failures stop the whole run.
//
// # Outputs
//   - *Report: per-point outcomes and aggregate insert counts. Partial
//     but valid when err is non-nil.
//   - error: nil unless the run was canceled or the store failed.
func (d *Driver) BuildDatabase(ctx context.Context, widths, gateCounts []int) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	d.initMetrics()

	ctx, span := tracer.Start(ctx, "driver.BuildDatabase",
		trace.WithAttributes(
			attribute.String("model", d.store.Model().Name()),
			attribute.IntSlice("widths", widths),
			attribute.IntSlice("gate_counts", gateCounts),
		),
	)
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()[:12] // 48 bits of entropy
	report := &Report{RunID: runID}

	d.logger.Info("enumeration started",
		slog.String("run_id", runID),
		slog.String("model", d.store.Model().Name()),
		slog.Any("widths", widths),
		slog.Any("gate_counts", gateCounts),
	)

	for _, w := range widths {
		for _, gc := range gateCounts {
			point, skipped, err := d.runPoint(ctx, runID, w, gc)
			report.Points = append(report.Points, point)
			report.Skipped = append(report.Skipped, skipped...)
			report.Stats.Inserted += point.Templates
			report.Stats.Duplicates += point.Duplicates
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				report.Elapsed = time.Since(start)
				return report, err
			}
		}
	}

	report.Elapsed = time.Since(start)
	span.SetStatus(codes.Ok, "")
	d.logger.Info("enumeration finished",
		slog.String("run_id", runID),
		slog.Uint64("inserted", report.Stats.Inserted),
		slog.Uint64("duplicates", report.Stats.Duplicates),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// runPoint drives one (width, gateCount) point to a terminal state.
//
// The returned error is non-nil only for failures that must stop the
// whole run: context cancellation and store errors. Everything else is
// recorded in the point report.
func (d *Driver) runPoint(ctx context.Context, runID string, width, gateCount int) (PointReport, []SkippedTemplate, error) {
	point := PointReport{Width: width, GateCount: gateCount, State: StateSearching}
	var skipped []SkippedTemplate

	ctx, span := tracer.Start(ctx, "driver.Point",
		trace.WithAttributes(
			attribute.Int("width", width),
			attribute.Int("gate_count", gateCount),
		),
	)
	defer span.End()

	model := d.store.Model()
	target, err := truthtable.Identity(width)
	if err != nil {
		return d.failPoint(span, point, runID, err), skipped, nil
	}
	syn, err := synth.New(model, target, gateCount, d.racer, synth.Options{
		EveryWireTouched: d.cfg.EveryWireTouched,
	})
	if err != nil {
		return d.failPoint(span, point, runID, err), skipped, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context canceled")
			point.State = StateFailed
			point.Err = err.Error()
			return point, skipped, err
		}

		point.State = StateSearching
		c, found, err := d.solveOnce(ctx, syn)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				span.RecordError(cerr)
				span.SetStatus(codes.Error, "context canceled")
				point.State = StateFailed
				point.Err = cerr.Error()
				return point, skipped, cerr
			}
			return d.failPoint(span, point, runID, err), skipped, nil
		}
		point.Solves++
		if !found {
			point.State = StateExhausted
			span.SetStatus(codes.Ok, "")
			d.logger.Info("point exhausted",
				slog.String("run_id", runID),
				slog.Int("width", width),
				slog.Int("gate_count", gateCount),
				slog.Uint64("families", point.Families),
				slog.Uint64("templates", point.Templates),
				slog.Uint64("solves", point.Solves),
			)
			return point, skipped, nil
		}
		point.State = StateFamilyFound

		exp := d.expandMany(ctx, []gates.Circuit{c}, d.cfg.Unroll)[0]
		if exp.err != nil {
			// The family is unusable, but excluding just the found
			// circuit still guarantees forward progress.
			skipped = append(skipped, SkippedTemplate{
				Width:     width,
				GateCount: gateCount,
				Reason:    exp.err.Error(),
			})
			if d.metrics != nil {
				d.metrics.ExpansionSkips.Add(ctx, 1)
			}
			d.logger.Warn("expansion failed, template skipped",
				slog.String("run_id", runID),
				slog.Int("width", width),
				slog.Int("gate_count", gateCount),
				slog.String("error", exp.err.Error()),
			)
			if err := syn.Exclude(c); err != nil {
				return d.failPoint(span, point, runID, err), skipped, nil
			}
			continue
		}

		seedRes, err := d.store.InsertTemplate(ctx, store.TemplateInsert{
			Circuit: c,
			Origin:  store.OriginSAT,
		})
		if err != nil {
			// A broken store poisons every later point.
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			point.State = StateFailed
			point.Err = err.Error()
			return point, skipped, err
		}
		d.recordInsert(ctx, seedRes.Inserted)
		if seedRes.Inserted {
			point.Families++
			point.Templates++
			if d.metrics != nil {
				d.metrics.FamiliesTotal.Add(ctx, 1, metric.WithAttributes(
					attribute.String("model", model.Name()),
				))
			}
		} else {
			point.Duplicates++
		}

		raw := c.EncodeGates()
		for _, v := range exp.res.Variants {
			if bytes.Equal(v.EncodeGates(), raw) {
				continue
			}
			vres, err := d.store.InsertTemplate(ctx, store.TemplateInsert{
				Circuit:          v,
				Origin:           store.OriginUnroll,
				OriginTemplateID: seedRes.TemplateID,
				UnrollOps:        uint32(exp.res.Ops),
				FamilyHash:       seedRes.FamilyHash,
			})
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				point.State = StateFailed
				point.Err = err.Error()
				return point, skipped, err
			}
			d.recordInsert(ctx, vres.Inserted)
			if vres.Inserted {
				point.Templates++
			} else {
				point.Duplicates++
			}
		}
		if d.metrics != nil {
			d.metrics.ExpansionVariants.Record(ctx, int64(len(exp.res.Variants)))
		}

		if err := syn.ExcludeFamily(exp.res.Variants); err != nil {
			return d.failPoint(span, point, runID, err), skipped, nil
		}

		if d.progress.Allow() {
			vars, clauses := syn.FormulaSize()
			d.logger.Info("enumeration progress",
				slog.String("run_id", runID),
				slog.Int("width", width),
				slog.Int("gate_count", gateCount),
				slog.Uint64("families", point.Families),
				slog.Uint64("templates", point.Templates),
				slog.Uint64("duplicates", point.Duplicates),
				slog.Int("vars", vars),
				slog.Int("clauses", clauses),
			)
		}
	}
}

// solveOnce runs one solver call under the per-call timeout and records
// the synthesis metrics.
func (d *Driver) solveOnce(ctx context.Context, syn *synth.Synthesizer) (gates.Circuit, bool, error) {
	solveCtx := ctx
	if d.cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, d.cfg.SolveTimeout)
		defer cancel()
	}

	start := time.Now()
	c, found, err := syn.Solve(solveCtx)
	elapsed := time.Since(start)

	status := "sat"
	switch {
	case err != nil:
		status = "error"
	case !found:
		status = "unsat"
	}
	if d.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("model", syn.Model().Name()),
			attribute.Int("width", syn.Width()),
			attribute.String("status", status),
		)
		d.metrics.SolvesTotal.Add(ctx, 1, attrs)
		d.metrics.SolveDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
	return c, found, err
}

// failPoint marks the point failed and logs the cause.
func (d *Driver) failPoint(span trace.Span, point PointReport, runID string, err error) PointReport {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	point.State = StateFailed
	point.Err = err.Error()
	d.logger.Error("enumeration point failed",
		slog.String("run_id", runID),
		slog.Int("width", point.Width),
		slog.Int("gate_count", point.GateCount),
		slog.String("error", err.Error()),
	)
	return point
}

// recordInsert counts one template insert outcome.
func (d *Driver) recordInsert(ctx context.Context, inserted bool) {
	if d.metrics == nil {
		return
	}
	outcome := "duplicate"
	if inserted {
		outcome = "inserted"
	}
	d.metrics.TemplatesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
