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

// State represents a state of one enumeration point.
type State string

const (
	// StateSearching means the solver is looking for the next identity.
	StateSearching State = "searching"

	// StateFamilyFound means a satisfying circuit was returned and is
	// being expanded and stored.
	StateFamilyFound State = "family_found"

	// StateExhausted means the solver proved no identity remains at
	// this width and gate count.
	StateExhausted State = "exhausted"

	// StateFailed means the point stopped on an error before
	// exhaustion.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if the state ends the point.
func (s State) IsTerminal() bool {
	return s == StateExhausted || s == StateFailed
}
