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

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"github.com/tidewater-labs/revtempl/cnf"
)

// Gini is the pure-Go solver from go-air/gini, run in-process.
type Gini struct{}

// NewGini returns the gini backend.
func NewGini() *Gini {
	return &Gini{}
}

// Name implements Backend.
func (g *Gini) Name() string { return BackendGini }

// Solve implements Backend. A fresh solver instance is built per call so
// concurrent solves never share state. Cancellation is best effort, as
// for the gophersat backend.
func (g *Gini) Solve(ctx context.Context, p cnf.Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	type answer struct {
		res Result
		err error
	}
	done := make(chan answer, 1)
	go func() {
		s := gini.New()
		for _, cl := range p.Clauses {
			for _, l := range cl {
				s.Add(z.Dimacs2Lit(l))
			}
			s.Add(0)
		}
		switch s.Solve() {
		case 1:
			assign := make([]bool, p.Vars+1)
			maxVar := int(s.MaxVar())
			for v := 1; v <= p.Vars && v <= maxVar; v++ {
				assign[v] = s.Value(z.Dimacs2Lit(v))
			}
			done <- answer{res: Result{
				Status:     StatusSat,
				Assignment: assign,
				Backend:    BackendGini,
			}}
		case -1:
			done <- answer{res: Result{
				Status:  StatusUnsat,
				Backend: BackendGini,
			}}
		default:
			done <- answer{err: fmt.Errorf("gini: solve canceled internally")}
		}
	}()
	select {
	case a := <-done:
		return a.res, a.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
