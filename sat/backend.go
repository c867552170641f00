// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package sat runs CNF formulas through competing solver backends.
//
// Two in-process solvers (gophersat, gini) are always available; external
// solvers such as kissat and cadical are wrapped as subprocesses speaking
// DIMACS. The Racer launches every configured backend on its own copy of
// the formula and returns the first definitive answer. UNSAT is an
// answer, not an error: the enumeration loop depends on it to detect
// exhaustion.
package sat

import (
	"context"
	"os/exec"

	"github.com/tidewater-labs/revtempl/cnf"
)

// Backend names as reported in Result.Backend and in SolverError causes.
const (
	BackendGophersat = "gophersat"
	BackendGini      = "gini"
	BackendKissat    = "kissat"
	BackendCadical   = "cadical"
)

// Backend is a single SAT solver.
//
// Solve blocks until the formula is decided, the context is canceled, or
// the solver fails. Implementations must be safe for concurrent Solve
// calls on distinct Problem values.
type Backend interface {
	// Name identifies the backend in results and error causes.
	Name() string

	// Solve decides the formula. A returned error means the backend
	// could not decide; an UNSAT formula yields a Result with
	// StatusUnsat and a nil error.
	Solve(ctx context.Context, p cnf.Problem) (Result, error)
}

// DefaultBackends returns the in-process solvers plus any external
// solvers found on PATH.
func DefaultBackends() []Backend {
	backends := []Backend{
		NewGophersat(),
		NewGini(),
	}
	if path, err := exec.LookPath(BackendKissat); err == nil {
		backends = append(backends, NewProcessBackend(BackendKissat, path))
	}
	if path, err := exec.LookPath(BackendCadical); err == nil {
		backends = append(backends, NewProcessBackend(BackendCadical, path))
	}
	return backends
}
