// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package truthtable models boolean bijections over fixed-width bit
// vectors. A table is the synthesis target handed to the encoder: the
// engine searches for gate sequences whose composed action equals it.
//
// Bit order is LSB-first throughout: bit s of a table value is the value
// of wire s.
package truthtable

import (
	"errors"
	"fmt"

	"github.com/tidewater-labs/revtempl/gates"
)

// Sentinel errors for table construction.
var (
	// ErrNotBijection indicates a value list with duplicate or
	// out-of-range outputs.
	ErrNotBijection = errors.New("truth table is not a bijection")

	// ErrWidthMismatch indicates composing or comparing tables of
	// different widths.
	ErrWidthMismatch = errors.New("truth table width mismatch")

	// ErrBadWidth indicates a width outside the supported [1, 24] range.
	ErrBadWidth = errors.New("unsupported truth table width")
)

// maxWidth bounds table materialization at 2^24 entries.
const maxWidth = 24

// Table is a bijection over width-bit words, stored as the full output
// list indexed by input word. Tables are immutable after construction.
type Table struct {
	width  int
	values []uint64
}

// Identity returns the table mapping every input to itself.
func Identity(width int) (Table, error) {
	if width < 1 || width > maxWidth {
		return Table{}, fmt.Errorf("%w: %d", ErrBadWidth, width)
	}
	n := uint64(1) << uint(width)
	vals := make([]uint64, n)
	for w := uint64(0); w < n; w++ {
		vals[w] = w
	}
	return Table{width: width, values: vals}, nil
}

// New builds a table from the output list and verifies it is a bijection.
// values[w] is the output word for input w.
func New(width int, values []uint64) (Table, error) {
	if width < 1 || width > maxWidth {
		return Table{}, fmt.Errorf("%w: %d", ErrBadWidth, width)
	}
	n := uint64(1) << uint(width)
	if uint64(len(values)) != n {
		return Table{}, fmt.Errorf("%w: %d values for width %d", ErrNotBijection, len(values), width)
	}
	seen := make([]bool, n)
	for w, v := range values {
		if v >= n {
			return Table{}, fmt.Errorf("%w: output %d out of range at input %d", ErrNotBijection, v, w)
		}
		if seen[v] {
			return Table{}, fmt.Errorf("%w: output %d repeated", ErrNotBijection, v)
		}
		seen[v] = true
	}
	vals := make([]uint64, n)
	copy(vals, values)
	return Table{width: width, values: vals}, nil
}

// OfCircuit evaluates a circuit over all inputs and returns its table.
func OfCircuit(c gates.Circuit) (Table, error) {
	if err := c.Validate(); err != nil {
		return Table{}, err
	}
	if c.Width > maxWidth {
		return Table{}, fmt.Errorf("%w: %d", ErrBadWidth, c.Width)
	}
	return Table{width: c.Width, values: c.Permutation()}, nil
}

// Width returns the number of wires.
func (t Table) Width() int { return t.width }

// Size returns the number of input words, 2^width.
func (t Table) Size() uint64 { return uint64(1) << uint(t.width) }

// Eval returns the output word for the given input word.
func (t Table) Eval(word uint64) uint64 { return t.values[word] }

// Bit returns the value of wire s in the output for the given input.
func (t Table) Bit(word uint64, s int) uint64 {
	return t.values[word] >> uint(s) & 1
}

// Compose returns the table applying t first, then u.
func (t Table) Compose(u Table) (Table, error) {
	if t.width != u.width {
		return Table{}, fmt.Errorf("%w: %d vs %d", ErrWidthMismatch, t.width, u.width)
	}
	vals := make([]uint64, len(t.values))
	for w, v := range t.values {
		vals[w] = u.values[v]
	}
	return Table{width: t.width, values: vals}, nil
}

// Inverse returns the table mapping each output back to its input.
func (t Table) Inverse() Table {
	vals := make([]uint64, len(t.values))
	for w, v := range t.values {
		vals[v] = uint64(w)
	}
	return Table{width: t.width, values: vals}
}

// Equal reports whether two tables have the same width and mapping.
func (t Table) Equal(u Table) bool {
	if t.width != u.width {
		return false
	}
	for w, v := range t.values {
		if u.values[w] != v {
			return false
		}
	}
	return true
}

// IsIdentity reports whether every input maps to itself.
func (t Table) IsIdentity() bool {
	for w, v := range t.values {
		if uint64(w) != v {
			return false
		}
	}
	return true
}
