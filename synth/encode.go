// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package synth

import (
	"github.com/tidewater-labs/revtempl/cnf"
	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/truthtable"
)

// structure holds the structural variable grids of an encoded formula.
// All grids are indexed [slot][wire]. ECA57 formulas use t, c1, c2; MCT
// formulas use t and ctrl.
type structure struct {
	model gates.ModelID
	width int
	slots int

	t    [][]int
	c1   [][]int
	c2   [][]int
	ctrl [][]int
}

// grid allocates a slots-by-width variable grid.
func grid(b *cnf.Builder, slots, width int) [][]int {
	out := make([][]int, slots)
	for g := range out {
		out[g] = b.FreshN(width)
	}
	return out
}

// dataGrid allocates the wire-value variables d[word][slot][wire],
// with slot 0 holding the input word and slot `slots` the output.
func dataGrid(b *cnf.Builder, words, slots, width int) [][][]int {
	out := make([][][]int, words)
	for i := range out {
		out[i] = grid(b, slots+1, width)
	}
	return out
}

// signed returns the variable as a positive literal when val is true,
// negated otherwise.
func signed(v int, val bool) int {
	if val {
		return v
	}
	return -v
}

// pinBoundary forces slot 0 to the input word and the last slot to the
// target's output word, for every input word.
func pinBoundary(b *cnf.Builder, data [][][]int, target truthtable.Table, slots int) error {
	width := target.Width()
	for i := uint64(0); i < target.Size(); i++ {
		out := target.Eval(i)
		for w := 0; w < width; w++ {
			if err := b.SetLit(signed(data[i][0][w], i>>uint(w)&1 == 1)); err != nil {
				return err
			}
			if err := b.SetLit(signed(data[i][slots][w], out>>uint(w)&1 == 1)); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeECA57 builds the synthesis formula for the ECA57 model.
//
// Structural variables are one-hot target/ctrl1/ctrl2 selectors per
// slot, with pairwise guards keeping the three roles on distinct wires.
// Wire values propagate slot to slot: the selected ctrl1 value, the
// negated selected ctrl2 value, and the target selector combine into a
// per-wire switch bit that is xored into the next slot.
func encodeECA57(b *cnf.Builder, target truthtable.Table, slots int) (structure, error) {
	width := target.Width()
	words := int(target.Size())

	s := structure{
		model: gates.ModelECA57,
		width: width,
		slots: slots,
		t:     grid(b, slots, width),
		c1:    grid(b, slots, width),
		c2:    grid(b, slots, width),
	}
	data := dataGrid(b, words, slots, width)

	for g := 0; g < slots; g++ {
		if err := b.Exactly(s.t[g], 1); err != nil {
			return s, err
		}
		if err := b.Exactly(s.c1[g], 1); err != nil {
			return s, err
		}
		if err := b.Exactly(s.c2[g], 1); err != nil {
			return s, err
		}
		for w := 0; w < width; w++ {
			if err := b.NAND(s.t[g][w], s.c1[g][w]); err != nil {
				return s, err
			}
			if err := b.NAND(s.t[g][w], s.c2[g][w]); err != nil {
				return s, err
			}
			if err := b.NAND(s.c1[g][w], s.c2[g][w]); err != nil {
				return s, err
			}
		}
	}

	for i := 0; i < words; i++ {
		for g := 0; g < slots; g++ {
			// Selected ctrl1 value: OR over wires of (selector AND data).
			c1Products := make([]int, width)
			for w := 0; w < width; w++ {
				v := b.Fresh()
				if err := b.EqualsAnd(v, []int{s.c1[g][w], data[i][g][w]}); err != nil {
					return s, err
				}
				c1Products[w] = v
			}
			c1Val := b.Fresh()
			if err := b.EqualsOr(c1Val, c1Products); err != nil {
				return s, err
			}

			c2Products := make([]int, width)
			for w := 0; w < width; w++ {
				v := b.Fresh()
				if err := b.EqualsAnd(v, []int{s.c2[g][w], data[i][g][w]}); err != nil {
					return s, err
				}
				c2Products[w] = v
			}
			c2Val := b.Fresh()
			if err := b.EqualsOr(c2Val, c2Products); err != nil {
				return s, err
			}

			// The gate fires when ctrl1 OR NOT ctrl2.
			orCond := b.Fresh()
			if err := b.EqualsOr(orCond, []int{c1Val, -c2Val}); err != nil {
				return s, err
			}

			for w := 0; w < width; w++ {
				sw := b.Fresh()
				if err := b.EqualsAnd(sw, []int{orCond, s.t[g][w]}); err != nil {
					return s, err
				}
				if err := b.XorEquals([]int{data[i][g+1][w], data[i][g][w], sw}, false); err != nil {
					return s, err
				}
			}
		}
	}

	return s, pinBoundary(b, data, target, slots)
}

// encodeMCT builds the synthesis formula for the multiple-control
// Toffoli model.
//
// Each slot has a one-hot target selector and a free control bit per
// wire, guarded so the target wire is never also a control. The gate
// fires on a word when every selected control wire carries a one, which
// is the conjunction over wires of (control selected implies data set).
func encodeMCT(b *cnf.Builder, target truthtable.Table, slots int) (structure, error) {
	width := target.Width()
	words := int(target.Size())

	s := structure{
		model: gates.ModelMCT,
		width: width,
		slots: slots,
		t:     grid(b, slots, width),
		ctrl:  grid(b, slots, width),
	}
	data := dataGrid(b, words, slots, width)

	for g := 0; g < slots; g++ {
		if err := b.Exactly(s.t[g], 1); err != nil {
			return s, err
		}
		for w := 0; w < width; w++ {
			if err := b.NAND(s.t[g][w], s.ctrl[g][w]); err != nil {
				return s, err
			}
		}
	}

	for i := 0; i < words; i++ {
		for g := 0; g < slots; g++ {
			imps := make([]int, width)
			for w := 0; w < width; w++ {
				v := b.Fresh()
				if err := b.EqualsOr(v, []int{data[i][g][w], -s.ctrl[g][w]}); err != nil {
					return s, err
				}
				imps[w] = v
			}
			fire := b.Fresh()
			if err := b.EqualsAnd(fire, imps); err != nil {
				return s, err
			}

			for w := 0; w < width; w++ {
				sw := b.Fresh()
				if err := b.EqualsAnd(sw, []int{fire, s.t[g][w]}); err != nil {
					return s, err
				}
				if err := b.XorEquals([]int{data[i][g+1][w], data[i][g][w], sw}, false); err != nil {
					return s, err
				}
			}
		}
	}

	return s, pinBoundary(b, data, target, slots)
}

// requireEveryWireTouched adds one clause per wire demanding some slot
// select it in a structural role, rejecting circuits with idle wires.
func requireEveryWireTouched(b *cnf.Builder, s structure) error {
	for w := 0; w < s.width; w++ {
		var lits []int
		for g := 0; g < s.slots; g++ {
			lits = append(lits, s.t[g][w])
			switch s.model {
			case gates.ModelECA57:
				lits = append(lits, s.c1[g][w], s.c2[g][w])
			case gates.ModelMCT:
				lits = append(lits, s.ctrl[g][w])
			}
		}
		if err := b.AtLeast(lits, 1); err != nil {
			return err
		}
	}
	return nil
}
