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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tidewater-labs/revtempl/cnf"
)

// ProcessBackend wraps an external DIMACS solver binary such as kissat
// or cadical. The formula goes in on stdin; the answer is parsed from
// the standard competition output ("s" status line plus "v" value
// lines). Exit codes 10 and 20 are the conventional SAT and UNSAT
// signals, not failures.
type ProcessBackend struct {
	name string
	path string
	args []string
}

// NewProcessBackend wraps the solver binary at path. The name appears in
// results and error causes.
func NewProcessBackend(name, path string, args ...string) *ProcessBackend {
	return &ProcessBackend{name: name, path: path, args: args}
}

// Name implements Backend.
func (b *ProcessBackend) Name() string { return b.name }

// Solve implements Backend. Context cancellation kills the subprocess.
func (b *ProcessBackend) Solve(ctx context.Context, p cnf.Problem) (Result, error) {
	var in bytes.Buffer
	if err := p.WriteDimacs(&in); err != nil {
		return Result{}, fmt.Errorf("%s: encode dimacs: %w", b.name, err)
	}
	cmd := exec.CommandContext(ctx, b.path, b.args...)
	cmd.Stdin = &in
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return Result{}, fmt.Errorf("%s: %w", b.name, err)
		}
		if code := ee.ExitCode(); code != 10 && code != 20 {
			return Result{}, fmt.Errorf("%s: exit code %d: %s",
				b.name, code, firstLine(ee.Stderr))
		}
	}
	return parseSolverOutput(b.name, out, p.Vars)
}

// parseSolverOutput interprets DIMACS competition output. The assignment
// is sized to vars regardless of how many values the solver printed.
func parseSolverOutput(name string, out []byte, vars int) (Result, error) {
	var (
		status     = StatusUnknown
		assignment []bool
	)
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "s "):
			switch strings.TrimSpace(line[2:]) {
			case "SATISFIABLE":
				status = StatusSat
				assignment = make([]bool, vars+1)
			case "UNSATISFIABLE":
				status = StatusUnsat
			default:
				return Result{}, fmt.Errorf("%s: unrecognized status line %q", name, line)
			}
		case strings.HasPrefix(line, "v "):
			if assignment == nil {
				return Result{}, fmt.Errorf("%s: value line before SAT status", name)
			}
			for _, f := range strings.Fields(line[2:]) {
				l, err := strconv.Atoi(f)
				if err != nil {
					return Result{}, fmt.Errorf("%s: bad value literal %q: %w", name, f, err)
				}
				if l == 0 {
					continue
				}
				v := l
				if v < 0 {
					v = -v
				}
				if v <= vars {
					assignment[v] = l > 0
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, fmt.Errorf("%s: read output: %w", name, err)
	}
	switch status {
	case StatusSat:
		return Result{Status: StatusSat, Assignment: assignment, Backend: name}, nil
	case StatusUnsat:
		return Result{Status: StatusUnsat, Backend: name}, nil
	default:
		return Result{}, fmt.Errorf("%s: no status line in solver output", name)
	}
}

// firstLine extracts the first stderr line for error messages.
func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
