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
	"fmt"
	"strings"
)

// Circuit is an ordered sequence of gates from one family acting on a
// fixed number of wires.
//
// # Description
//
// The zero-length circuit is valid and acts as the identity. Circuits are
// treated as immutable: transformation methods return copies and callers
// must not mutate the Gates slice after construction.
type Circuit struct {
	ModelID ModelID
	Width   int
	Gates   []Gate
}

// NewCircuit builds a circuit and validates it.
func NewCircuit(model ModelID, width int, gs []Gate) (Circuit, error) {
	c := Circuit{ModelID: model, Width: width, Gates: gs}
	if err := c.Validate(); err != nil {
		return Circuit{}, err
	}
	return c, nil
}

// Validate checks the width against the family minimum and every gate
// against the circuit width and family.
func (c Circuit) Validate() error {
	m, err := ModelByID(c.ModelID)
	if err != nil {
		return err
	}
	if c.Width < m.MinWidth() {
		return fmt.Errorf("%w: width %d, %s needs >= %d", ErrWidthTooSmall, c.Width, m.Name(), m.MinWidth())
	}
	if c.Width > 64 {
		return fmt.Errorf("%w: width %d exceeds 64", ErrWireOutOfRange, c.Width)
	}
	for i, g := range c.Gates {
		if g.Model() != c.ModelID {
			return fmt.Errorf("%w: gate %d is %s, circuit is %s", ErrModelMismatch, i, g.Model(), c.ModelID)
		}
		if err := g.Validate(c.Width); err != nil {
			return fmt.Errorf("gate %d: %w", i, err)
		}
	}
	return nil
}

// GateCount returns the number of gates.
func (c Circuit) GateCount() int { return len(c.Gates) }

// Apply runs the input word through every gate in order.
func (c Circuit) Apply(word uint64) uint64 {
	for _, g := range c.Gates {
		word = g.Apply(word)
	}
	return word
}

// Permutation evaluates the circuit over all 2^width inputs and returns
// the full output table indexed by input word.
func (c Circuit) Permutation() []uint64 {
	n := uint64(1) << uint(c.Width)
	out := make([]uint64, n)
	for w := uint64(0); w < n; w++ {
		out[w] = c.Apply(w)
	}
	return out
}

// IsIdentity reports whether the circuit maps every input to itself.
func (c Circuit) IsIdentity() bool {
	n := uint64(1) << uint(c.Width)
	for w := uint64(0); w < n; w++ {
		if c.Apply(w) != w {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (c Circuit) Clone() Circuit {
	gs := make([]Gate, len(c.Gates))
	copy(gs, c.Gates)
	return Circuit{ModelID: c.ModelID, Width: c.Width, Gates: gs}
}

// Mirror returns the circuit with gate order reversed.
func (c Circuit) Mirror() Circuit {
	gs := make([]Gate, len(c.Gates))
	for i, g := range c.Gates {
		gs[len(c.Gates)-1-i] = g
	}
	return Circuit{ModelID: c.ModelID, Width: c.Width, Gates: gs}
}

// Rotate returns the circuit cyclically shifted left by k positions, so
// gate k becomes the first gate.
func (c Circuit) Rotate(k int) Circuit {
	n := len(c.Gates)
	if n == 0 {
		return c.Clone()
	}
	k = ((k % n) + n) % n
	gs := make([]Gate, 0, n)
	gs = append(gs, c.Gates[k:]...)
	gs = append(gs, c.Gates[:k]...)
	return Circuit{ModelID: c.ModelID, Width: c.Width, Gates: gs}
}

// Relabel returns the circuit with every wire i renamed to perm[i]. perm
// must be a permutation of [0, width).
func (c Circuit) Relabel(perm []int) Circuit {
	gs := make([]Gate, len(c.Gates))
	for i, g := range c.Gates {
		gs[i] = g.Relabel(perm)
	}
	return Circuit{ModelID: c.ModelID, Width: c.Width, Gates: gs}
}

// Prefix returns the circuit truncated to its first n gates.
func (c Circuit) Prefix(n int) Circuit {
	if n > len(c.Gates) {
		n = len(c.Gates)
	}
	gs := make([]Gate, n)
	copy(gs, c.Gates[:n])
	return Circuit{ModelID: c.ModelID, Width: c.Width, Gates: gs}
}

// Window returns the subcircuit of n gates starting at position i.
func (c Circuit) Window(i, n int) Circuit {
	gs := make([]Gate, n)
	copy(gs, c.Gates[i:i+n])
	return Circuit{ModelID: c.ModelID, Width: c.Width, Gates: gs}
}

// EncodeGates serializes the gate sequence as the concatenation of each
// gate's fixed-width encoding.
func (c Circuit) EncodeGates() []byte {
	m, err := ModelByID(c.ModelID)
	if err != nil {
		return nil
	}
	gl := m.GateLen()
	buf := make([]byte, gl*len(c.Gates))
	for i, g := range c.Gates {
		g.Encode(buf[i*gl:])
	}
	return buf
}

// DecodeGates parses a gate sequence serialized by EncodeGates.
func DecodeGates(m Model, data []byte) ([]Gate, error) {
	gl := m.GateLen()
	if len(data)%gl != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %s gates of %d bytes", ErrTruncatedGates, len(data), m.Name(), gl)
	}
	gs := make([]Gate, 0, len(data)/gl)
	for off := 0; off < len(data); off += gl {
		g, err := m.Decode(data[off : off+gl])
		if err != nil {
			return nil, fmt.Errorf("gate %d: %w", off/gl, err)
		}
		gs = append(gs, g)
	}
	return gs, nil
}

// String renders the circuit as model/width[g0 g1 ...].
func (c Circuit) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%d[", c.ModelID, c.Width)
	for i, g := range c.Gates {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(g.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
