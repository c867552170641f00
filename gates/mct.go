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

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
)

// MCTGate is a multi-controlled Toffoli gate: the target wire flips when
// every control wire is 1. Controls is a bitmask; a gate with no controls
// is an unconditional NOT.
type MCTGate struct {
	T        int
	Controls uint64
}

// NewMCTGate builds a gate after checking the target is not a control.
func NewMCTGate(target int, controls uint64) (MCTGate, error) {
	g := MCTGate{T: target, Controls: controls}
	if target < 0 || target > 63 {
		return MCTGate{}, fmt.Errorf("%w: target %d out of representable range", ErrInvalidGate, target)
	}
	if controls&(1<<uint(target)) != 0 {
		return MCTGate{}, fmt.Errorf("%w: target %d is also a control in %s", ErrInvalidGate, target, g)
	}
	return g, nil
}

// Model returns ModelMCT.
func (g MCTGate) Model() ModelID { return ModelMCT }

// Target returns the target wire.
func (g MCTGate) Target() int { return g.T }

// WireMask returns controls plus target.
func (g MCTGate) WireMask() uint64 {
	return g.Controls | 1<<uint(g.T)
}

// Apply flips the target when all control wires are 1.
func (g MCTGate) Apply(state uint64) uint64 {
	if state&g.Controls == g.Controls {
		state ^= 1 << uint(g.T)
	}
	return state
}

// Validate checks target/control separation and wire range.
func (g MCTGate) Validate(width int) error {
	if g.T < 0 || g.T >= width {
		return fmt.Errorf("%w: target %d at width %d", ErrWireOutOfRange, g.T, width)
	}
	if g.Controls&(1<<uint(g.T)) != 0 {
		return fmt.Errorf("%w: target %d is also a control in %s", ErrInvalidGate, g.T, g)
	}
	if width < 64 && g.Controls>>uint(width) != 0 {
		return fmt.Errorf("%w: control above wire %d in %s", ErrWireOutOfRange, width-1, g)
	}
	return nil
}

// Relabel maps the target and every control wire through perm.
func (g MCTGate) Relabel(perm []int) Gate {
	var ctrls uint64
	rest := g.Controls
	for rest != 0 {
		w := bits.TrailingZeros64(rest)
		rest &= rest - 1
		ctrls |= 1 << uint(perm[w])
	}
	return MCTGate{T: perm[g.T], Controls: ctrls}
}

// Encode writes the 9-byte form: target byte, then the control mask as a
// little-endian uint64.
func (g MCTGate) Encode(dst []byte) int {
	dst[0] = byte(g.T)
	binary.LittleEndian.PutUint64(dst[1:9], g.Controls)
	return 9
}

// String renders the gate as mct(t;c...) with controls in ascending order.
func (g MCTGate) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mct(%d;", g.T)
	first := true
	rest := g.Controls
	for rest != 0 {
		w := bits.TrailingZeros64(rest)
		rest &= rest - 1
		if !first {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", w)
		first = false
	}
	sb.WriteByte(')')
	return sb.String()
}

// MCT is the multi-controlled Toffoli family.
type MCT struct{}

// ID returns ModelMCT.
func (MCT) ID() ModelID { return ModelMCT }

// Name returns "mct".
func (MCT) Name() string { return "mct" }

// MinWidth returns 1: a single NOT gate is a valid one-wire circuit.
func (MCT) MinWidth() int { return 1 }

// GateLen returns 9.
func (MCT) GateLen() int { return 9 }

// SelfInverse returns true; a conditional flip undoes itself.
func (MCT) SelfInverse() bool { return true }

// RotationInvariant returns false. Rotation of identity circuits holds by
// the same conjugation argument as ECA57, but the expansion and
// canonicalization stages additionally rely on rotation being compatible
// with the family's canonical ordering, which has not been established for
// MCT. Keep rotation disabled until it is.
func (MCT) RotationInvariant() bool { return false }

// Canonicalizable returns true.
func (MCT) Canonicalizable() bool { return true }

// Universe returns every (target, control subset) pair, ordered by target
// then by control mask. The count is width * 2^(width-1); callers should
// restrict this to small widths.
func (MCT) Universe(width int) []Gate {
	if width < 1 || width > 16 {
		return nil
	}
	out := make([]Gate, 0, width<<uint(width-1))
	full := uint64(1)<<uint(width) - 1
	for t := 0; t < width; t++ {
		avail := full &^ (1 << uint(t))
		// Enumerate subsets of avail in ascending mask order.
		sub := uint64(0)
		for {
			out = append(out, MCTGate{T: t, Controls: sub})
			if sub == avail {
				break
			}
			sub = (sub - avail) & avail
		}
	}
	return out
}

// Decode parses the 9-byte form produced by Encode.
func (MCT) Decode(data []byte) (Gate, error) {
	if len(data) != 9 {
		return nil, fmt.Errorf("%w: mct gate needs 9 bytes, got %d", ErrTruncatedGates, len(data))
	}
	return NewMCTGate(int(data[0]), binary.LittleEndian.Uint64(data[1:9]))
}

// Commutes reports whether the two gates touch disjoint wire sets.
func (MCT) Commutes(a, b Gate) bool {
	return disjoint(a.WireMask(), b.WireMask())
}
