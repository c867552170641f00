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
	"fmt"

	"github.com/crillab/gophersat/solver"

	"github.com/tidewater-labs/revtempl/cnf"
)

// Gophersat is the pure-Go CDCL solver from crillab/gophersat, run
// in-process.
type Gophersat struct{}

// NewGophersat returns the gophersat backend.
func NewGophersat() *Gophersat {
	return &Gophersat{}
}

// Name implements Backend.
func (g *Gophersat) Name() string { return BackendGophersat }

// Solve implements Backend. Cancellation is best effort: gophersat's
// Solve call cannot be interrupted, so on context cancellation the
// solving goroutine is abandoned and runs to completion in the
// background. The buffered channel lets it exit cleanly.
func (g *Gophersat) Solve(ctx context.Context, p cnf.Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	pb, err := solver.ParseSlice(p.Clauses)
	if err != nil {
		return Result{}, fmt.Errorf("gophersat: parse: %w", err)
	}
	type answer struct {
		res Result
		err error
	}
	done := make(chan answer, 1)
	go func() {
		s := solver.New(pb)
		switch s.Solve() {
		case solver.Sat:
			model := s.Model()
			assign := make([]bool, p.Vars+1)
			for i := 0; i < len(model) && i < p.Vars; i++ {
				assign[i+1] = model[i]
			}
			done <- answer{res: Result{
				Status:     StatusSat,
				Assignment: assign,
				Backend:    BackendGophersat,
			}}
		case solver.Unsat:
			done <- answer{res: Result{
				Status:  StatusUnsat,
				Backend: BackendGophersat,
			}}
		default:
			done <- answer{err: fmt.Errorf("gophersat: indeterminate status")}
		}
	}()
	select {
	case a := <-done:
		return a.res, a.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
