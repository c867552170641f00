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
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/store"
	"github.com/tidewater-labs/revtempl/unroll"
)

// Dim is one (width, gate count) cell of the store.
type Dim struct {
	Width     int `json:"width"`
	GateCount int `json:"gate_count"`
}

// expansion carries one circuit's expansion outcome off the worker
// pool.
type expansion struct {
	res unroll.Result
	err error
}

// expandMany expands circuits on the worker pool.
//
// Workers only compute; they never touch the store, so a worker failure
// cannot leave partial writes. Failures are recorded per circuit, never
// propagated.
func (d *Driver) expandMany(ctx context.Context, circuits []gates.Circuit, opts unroll.Options) []expansion {
	out := make([]expansion, len(circuits))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.NumWorkers)
	for i, c := range circuits {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				out[i] = expansion{err: err}
				return nil
			}
			res, err := unroll.Expand(c, opts)
			out[i] = expansion{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait() // workers record failures in place
	return out
}

// Unroll re-expands stored seed templates with fresh options.
//
// # Description
//
// Scans each cell for templates that were not themselves produced by
// expansion, expands them on the worker pool, and inserts every new
// variant under the seed's family hash. Running with a larger swap
// budget than the original enumeration reaches deeper into each
// family's swap space.
//
// # Outputs
//   - *Report: insert counts plus any seeds skipped on expansion
//     failure. Partial but valid when err is non-nil.
//   - error: nil unless the run was canceled or the store failed.
func (d *Driver) Unroll(ctx context.Context, dims []Dim, opts unroll.Options) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	d.initMetrics()

	ctx, span := tracer.Start(ctx, "driver.Unroll",
		trace.WithAttributes(
			attribute.String("model", d.store.Model().Name()),
			attribute.Int("dims", len(dims)),
			attribute.Int("max_permutations", opts.MaxPermutations),
			attribute.Int("swap_budget", opts.SwapBudget),
		),
	)
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()[:12] // 48 bits of entropy
	report := &Report{RunID: runID}

	d.logger.Info("unroll started",
		slog.String("run_id", runID),
		slog.Int("dims", len(dims)),
		slog.Int("max_permutations", opts.MaxPermutations),
		slog.Int("swap_budget", opts.SwapBudget),
	)

	fail := func(err error) (*Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		report.Elapsed = time.Since(start)
		return report, err
	}

	for _, dim := range dims {
		// Collect the cell's seeds before writing anything; expansion
		// output must not feed back into the same scan.
		var seeds []store.TemplateRecord
		var circuits []gates.Circuit
		err := d.store.ScanDims(ctx, dim.Width, dim.GateCount, func(rec store.TemplateRecord) error {
			if rec.Origin == store.OriginUnroll {
				return nil
			}
			c, err := rec.Circuit()
			if err != nil {
				return err
			}
			seeds = append(seeds, rec)
			circuits = append(circuits, c)
			return nil
		})
		if err != nil {
			return fail(err)
		}

		outcomes := d.expandMany(ctx, circuits, opts)
		for i, exp := range outcomes {
			seed := seeds[i]
			if exp.err != nil {
				report.Skipped = append(report.Skipped, SkippedTemplate{
					Width:      dim.Width,
					GateCount:  dim.GateCount,
					TemplateID: seed.TemplateID,
					Reason:     exp.err.Error(),
				})
				if d.metrics != nil {
					d.metrics.ExpansionSkips.Add(ctx, 1)
				}
				d.logger.Warn("expansion failed, seed skipped",
					slog.String("run_id", runID),
					slog.Uint64("template_id", seed.TemplateID),
					slog.String("error", exp.err.Error()),
				)
				continue
			}

			for _, v := range exp.res.Variants {
				if bytes.Equal(v.EncodeGates(), seed.Gates) {
					continue
				}
				vres, err := d.store.InsertTemplate(ctx, store.TemplateInsert{
					Circuit:          v,
					Origin:           store.OriginUnroll,
					OriginTemplateID: seed.TemplateID,
					UnrollOps:        uint32(exp.res.Ops),
					FamilyHash:       seed.FamilyHash,
				})
				if err != nil {
					return fail(err)
				}
				d.recordInsert(ctx, vres.Inserted)
				if vres.Inserted {
					report.Stats.Inserted++
				} else {
					report.Stats.Duplicates++
				}
			}
			if d.metrics != nil {
				d.metrics.ExpansionVariants.Record(ctx, int64(len(exp.res.Variants)))
			}
			if d.progress.Allow() {
				d.logger.Info("unroll progress",
					slog.String("run_id", runID),
					slog.Int("width", dim.Width),
					slog.Int("gate_count", dim.GateCount),
					slog.Uint64("inserted", report.Stats.Inserted),
					slog.Uint64("duplicates", report.Stats.Duplicates),
				)
			}
		}
	}

	report.Elapsed = time.Since(start)
	span.SetStatus(codes.Ok, "")
	d.logger.Info("unroll finished",
		slog.String("run_id", runID),
		slog.Uint64("inserted", report.Stats.Inserted),
		slog.Uint64("duplicates", report.Stats.Duplicates),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}
