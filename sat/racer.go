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
	"log/slog"
	"time"

	"github.com/tidewater-labs/revtempl/cnf"
)

// Racer solves one formula on every backend concurrently and returns
// the first definitive answer.
//
// # Description
//
// Each backend receives its own deep copy of the formula, so backends
// that take ownership of clause slices cannot interfere with each
// other. The first backend to return a result wins; the shared context
// is then canceled so the losers stop (or, for uninterruptible
// in-process solvers, are abandoned). Backend failures are tolerated as
// long as some backend answers; only when every backend fails does
// Solve return a SolverError carrying all causes.
//
// # Thread Safety
//
// Safe for concurrent Solve calls.
type Racer struct {
	backends []Backend
}

// NewRacer builds a racer over the given backends.
func NewRacer(backends ...Backend) *Racer {
	return &Racer{backends: backends}
}

// Backends returns the configured backend list.
func (r *Racer) Backends() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Solve races all backends on the formula.
//
// # Inputs
//   - ctx: cancels the whole race.
//   - p: the formula; never mutated.
//
// # Outputs
//   - Result: the winning answer, with Backend and Elapsed filled in.
//   - error: ErrNoBackends, ctx.Err via SolverError, or SolverError when
//     every backend failed.
func (r *Racer) Solve(ctx context.Context, p cnf.Problem) (Result, error) {
	if len(r.backends) == 0 {
		return Result{}, ErrNoBackends
	}
	if len(p.Clauses) == 0 {
		// A formula with no clauses is vacuously satisfiable.
		return Result{
			Status:     StatusSat,
			Assignment: make([]bool, p.Vars+1),
			Backend:    "vacuous",
		}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res  Result
		err  error
		name string
	}
	// Buffered to backend count: losers and stragglers can always send
	// without a receiver and get collected.
	results := make(chan outcome, len(r.backends))
	start := time.Now()
	for _, backend := range r.backends {
		go func(b Backend) {
			res, err := b.Solve(ctx, p.Clone())
			res.Elapsed = time.Since(start)
			results <- outcome{res: res, err: err, name: b.Name()}
		}(backend)
	}

	causes := make(map[string]error, len(r.backends))
	for i := 0; i < len(r.backends); i++ {
		o := <-results
		if o.err == nil {
			recordRaceWin(ctx, o.name, o.res.Status.String())
			slog.Debug("solver race decided",
				"backend", o.name,
				"status", o.res.Status.String(),
				"elapsed", o.res.Elapsed,
				"vars", p.Vars,
				"clauses", len(p.Clauses))
			return o.res, nil
		}
		causes[o.name] = o.err
	}
	recordRaceFailure(ctx)
	return Result{}, &SolverError{
		Vars:    p.Vars,
		Clauses: len(p.Clauses),
		Causes:  causes,
	}
}
