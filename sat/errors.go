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
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoBackends indicates a racer with an empty backend list.
var ErrNoBackends = errors.New("no solver backends configured")

// SolverError reports that every backend failed to decide a formula.
// UNSAT is never a SolverError; it is a regular Result.
type SolverError struct {
	// Vars and Clauses describe the formula that could not be decided.
	Vars    int
	Clauses int

	// Causes maps backend name to that backend's failure.
	Causes map[string]error
}

// Error formats the per-backend causes in backend-name order.
func (e *SolverError) Error() string {
	names := make([]string, 0, len(e.Causes))
	for name := range e.Causes {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	fmt.Fprintf(&sb, "all %d solver backends failed on formula (%d vars, %d clauses)",
		len(e.Causes), e.Vars, e.Clauses)
	for _, name := range names {
		fmt.Fprintf(&sb, "; %s: %v", name, e.Causes[name])
	}
	return sb.String()
}

// Unwrap exposes the per-backend causes so errors.Is can see through to
// context cancellation and other sentinels.
func (e *SolverError) Unwrap() []error {
	names := make([]string, 0, len(e.Causes))
	for name := range e.Causes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]error, 0, len(names))
	for _, name := range names {
		out = append(out, e.Causes[name])
	}
	return out
}
