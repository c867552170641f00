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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/revtempl/cnf"
)

// scriptedBackend is a test double with a fixed answer, delay, and
// optional failure.
type scriptedBackend struct {
	name  string
	delay time.Duration
	res   Result
	err   error
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Solve(ctx context.Context, p cnf.Problem) (Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Result{}, s.err
	}
	res := s.res
	res.Backend = s.name
	return res, nil
}

// oneClauseProblem builds a minimal nonempty formula for racer tests.
func oneClauseProblem(t *testing.T) cnf.Problem {
	t.Helper()
	b := cnf.NewBuilder()
	v := b.Fresh()
	require.NoError(t, b.AddClause(v))
	return b.Problem()
}

// TestRacerFirstAnswerWins checks that the fastest definitive answer is
// returned even when a slower backend would answer differently.
func TestRacerFirstAnswerWins(t *testing.T) {
	fast := &scriptedBackend{name: "fast", res: Result{Status: StatusUnsat}}
	slow := &scriptedBackend{
		name:  "slow",
		delay: 200 * time.Millisecond,
		res:   Result{Status: StatusSat, Assignment: []bool{false, true}},
	}
	r := NewRacer(slow, fast)
	res, err := r.Solve(context.Background(), oneClauseProblem(t))
	require.NoError(t, err)
	assert.Equal(t, StatusUnsat, res.Status)
	assert.Equal(t, "fast", res.Backend)
}

// TestRacerToleratesBackendFailure checks that a failing backend does
// not poison the race while another backend answers.
func TestRacerToleratesBackendFailure(t *testing.T) {
	broken := &scriptedBackend{name: "broken", err: errors.New("segfault")}
	ok := &scriptedBackend{
		name:  "ok",
		delay: 20 * time.Millisecond,
		res:   Result{Status: StatusSat, Assignment: []bool{false, true}},
	}
	r := NewRacer(broken, ok)
	res, err := r.Solve(context.Background(), oneClauseProblem(t))
	require.NoError(t, err)
	assert.Equal(t, StatusSat, res.Status)
	assert.Equal(t, "ok", res.Backend)
}

// TestRacerAllBackendsFail checks the aggregated SolverError.
func TestRacerAllBackendsFail(t *testing.T) {
	a := &scriptedBackend{name: "a", err: errors.New("crash a")}
	b := &scriptedBackend{name: "b", err: errors.New("crash b")}
	r := NewRacer(a, b)
	_, err := r.Solve(context.Background(), oneClauseProblem(t))
	require.Error(t, err)
	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Causes, 2)
	assert.Contains(t, se.Error(), "crash a")
	assert.Contains(t, se.Error(), "crash b")
	assert.Equal(t, 1, se.Vars)
}

// TestRacerNoBackends checks the empty-configuration sentinel.
func TestRacerNoBackends(t *testing.T) {
	r := NewRacer()
	_, err := r.Solve(context.Background(), oneClauseProblem(t))
	assert.ErrorIs(t, err, ErrNoBackends)
}

// TestRacerEmptyFormula checks the vacuous satisfiability shortcut.
func TestRacerEmptyFormula(t *testing.T) {
	r := NewRacer(&scriptedBackend{name: "unused", err: errors.New("must not run")})
	res, err := r.Solve(context.Background(), cnf.Problem{Vars: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusSat, res.Status)
	assert.Len(t, res.Assignment, 4)
}

// TestRacerContextCancellation checks that canceling the parent context
// surfaces through the aggregated error.
func TestRacerContextCancellation(t *testing.T) {
	hang := &scriptedBackend{name: "hang", delay: time.Hour}
	r := NewRacer(hang)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Solve(ctx, oneClauseProblem(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestParseSolverOutputSat checks parsing of competition-format SAT
// output with values split across lines.
func TestParseSolverOutputSat(t *testing.T) {
	out := []byte("c kissat something\ns SATISFIABLE\nv 1 -2 3\nv -4 0\n")
	res, err := parseSolverOutput("kissat", out, 5)
	require.NoError(t, err)
	assert.Equal(t, StatusSat, res.Status)
	assert.True(t, res.Value(1))
	assert.False(t, res.Value(2))
	assert.True(t, res.Value(3))
	assert.False(t, res.Value(4))
	assert.False(t, res.Value(5), "unprinted variable defaults to false")
}

// TestParseSolverOutputUnsat checks UNSAT output parsing.
func TestParseSolverOutputUnsat(t *testing.T) {
	out := []byte("c comment\ns UNSATISFIABLE\n")
	res, err := parseSolverOutput("cadical", out, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsat, res.Status)
	assert.Nil(t, res.Assignment)
}

// TestParseSolverOutputMalformed checks rejection of unusable output.
func TestParseSolverOutputMalformed(t *testing.T) {
	_, err := parseSolverOutput("kissat", []byte("c nothing here\n"), 2)
	assert.Error(t, err)
	_, err = parseSolverOutput("kissat", []byte("s MAYBE\n"), 2)
	assert.Error(t, err)
	_, err = parseSolverOutput("kissat", []byte("v 1 0\n"), 2)
	assert.Error(t, err, "value line before status")
}

// TestResultValueBounds checks the Value accessor's range handling.
func TestResultValueBounds(t *testing.T) {
	r := Result{Status: StatusSat, Assignment: []bool{false, true, false}}
	assert.True(t, r.Value(1))
	assert.False(t, r.Value(0))
	assert.False(t, r.Value(3))
	assert.False(t, Result{Status: StatusUnsat}.Value(1))
}
