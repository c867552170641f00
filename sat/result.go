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

import "time"

// Status is the outcome of a decided formula.
type Status uint8

const (
	// StatusUnknown means no backend produced an answer.
	StatusUnknown Status = iota

	// StatusSat means a satisfying assignment was found.
	StatusSat

	// StatusUnsat means the formula has no satisfying assignment.
	StatusUnsat
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSat:
		return "sat"
	case StatusUnsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Result is one backend's answer for a formula.
type Result struct {
	// Status is the decision.
	Status Status

	// Assignment holds variable values indexed by variable number;
	// index 0 is unused. Nil unless Status is StatusSat. Variables the
	// solver never saw default to false.
	Assignment []bool

	// Backend names the solver that produced the answer.
	Backend string

	// Elapsed is the wall time the winning backend spent, measured by
	// the racer.
	Elapsed time.Duration
}

// Value returns the assigned value of a variable. It returns false for
// out-of-range variables and for non-SAT results.
func (r Result) Value(v int) bool {
	if r.Assignment == nil || v <= 0 || v >= len(r.Assignment) {
		return false
	}
	return r.Assignment[v]
}
