// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package gates

import "fmt"

// ECA57Gate computes target ^= ctrl1 OR NOT ctrl2.
//
// The three wires must be pairwise distinct, so every gate touches exactly
// three wires. The gate is self-inverse: applying it twice restores the
// original state.
type ECA57Gate struct {
	T  int
	C1 int
	C2 int
}

// NewECA57Gate builds a gate after checking the three wires are distinct
// and non-negative.
func NewECA57Gate(target, ctrl1, ctrl2 int) (ECA57Gate, error) {
	g := ECA57Gate{T: target, C1: ctrl1, C2: ctrl2}
	if target < 0 || ctrl1 < 0 || ctrl2 < 0 {
		return ECA57Gate{}, fmt.Errorf("%w: negative wire in %s", ErrInvalidGate, g)
	}
	if target == ctrl1 || target == ctrl2 || ctrl1 == ctrl2 {
		return ECA57Gate{}, fmt.Errorf("%w: wires must be distinct in %s", ErrInvalidGate, g)
	}
	return g, nil
}

// Model returns ModelECA57.
func (g ECA57Gate) Model() ModelID { return ModelECA57 }

// Target returns the target wire.
func (g ECA57Gate) Target() int { return g.T }

// WireMask returns the bitmask of the three touched wires.
func (g ECA57Gate) WireMask() uint64 {
	return 1<<uint(g.T) | 1<<uint(g.C1) | 1<<uint(g.C2)
}

// Apply flips the target when ctrl1 OR NOT ctrl2 holds.
func (g ECA57Gate) Apply(state uint64) uint64 {
	c1 := state >> uint(g.C1) & 1
	c2 := state >> uint(g.C2) & 1
	if c1|(c2^1) == 1 {
		state ^= 1 << uint(g.T)
	}
	return state
}

// Validate checks wire distinctness and range for the given width.
func (g ECA57Gate) Validate(width int) error {
	if g.T == g.C1 || g.T == g.C2 || g.C1 == g.C2 {
		return fmt.Errorf("%w: wires must be distinct in %s", ErrInvalidGate, g)
	}
	for _, w := range [3]int{g.T, g.C1, g.C2} {
		if w < 0 || w >= width {
			return fmt.Errorf("%w: wire %d in %s at width %d", ErrWireOutOfRange, w, g, width)
		}
	}
	return nil
}

// Relabel maps each wire through perm.
func (g ECA57Gate) Relabel(perm []int) Gate {
	return ECA57Gate{T: perm[g.T], C1: perm[g.C1], C2: perm[g.C2]}
}

// Encode writes the 3-byte form: target, ctrl1, ctrl2.
func (g ECA57Gate) Encode(dst []byte) int {
	dst[0] = byte(g.T)
	dst[1] = byte(g.C1)
	dst[2] = byte(g.C2)
	return 3
}

// String renders the gate as eca57(t;c1,c2).
func (g ECA57Gate) String() string {
	return fmt.Sprintf("eca57(%d;%d,%d)", g.T, g.C1, g.C2)
}

// ECA57 is the three-wire gate family computing target ^= ctrl1 OR NOT ctrl2.
type ECA57 struct{}

// ID returns ModelECA57.
func (ECA57) ID() ModelID { return ModelECA57 }

// Name returns "eca57".
func (ECA57) Name() string { return "eca57" }

// MinWidth returns 3: a gate needs three distinct wires.
func (ECA57) MinWidth() int { return 3 }

// GateLen returns 3.
func (ECA57) GateLen() int { return 3 }

// SelfInverse returns true; the controlled flip undoes itself.
func (ECA57) SelfInverse() bool { return true }

// RotationInvariant returns true. Rotating an identity circuit by one
// position conjugates it by its leading gate, so the rotated circuit is
// again an identity.
func (ECA57) RotationInvariant() bool { return true }

// Canonicalizable returns true.
func (ECA57) Canonicalizable() bool { return true }

// Universe returns all width*(width-1)*(width-2) gates, ordered by target,
// then ctrl1, then ctrl2. The order is part of the engine's deterministic
// behavior; do not change it.
func (ECA57) Universe(width int) []Gate {
	if width < 3 {
		return nil
	}
	out := make([]Gate, 0, width*(width-1)*(width-2))
	for t := 0; t < width; t++ {
		for c1 := 0; c1 < width; c1++ {
			if c1 == t {
				continue
			}
			for c2 := 0; c2 < width; c2++ {
				if c2 == t || c2 == c1 {
					continue
				}
				out = append(out, ECA57Gate{T: t, C1: c1, C2: c2})
			}
		}
	}
	return out
}

// Decode parses the 3-byte form produced by Encode.
func (ECA57) Decode(data []byte) (Gate, error) {
	if len(data) != 3 {
		return nil, fmt.Errorf("%w: eca57 gate needs 3 bytes, got %d", ErrTruncatedGates, len(data))
	}
	return NewECA57Gate(int(data[0]), int(data[1]), int(data[2]))
}

// Commutes reports whether the two gates touch disjoint wire sets.
func (ECA57) Commutes(a, b Gate) bool {
	return disjoint(a.WireMask(), b.WireMask())
}
