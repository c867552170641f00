// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package unroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/revtempl/canon"
	"github.com/tidewater-labs/revtempl/gates"
)

// eca57 builds an ECA57 circuit from triples.
func eca57(t *testing.T, width int, triples ...[3]int) gates.Circuit {
	t.Helper()
	gs := make([]gates.Gate, len(triples))
	for i, tr := range triples {
		g, err := gates.NewECA57Gate(tr[0], tr[1], tr[2])
		require.NoError(t, err)
		gs[i] = g
	}
	c, err := gates.NewCircuit(gates.ModelECA57, width, gs)
	require.NoError(t, err)
	return c
}

// mct builds an MCT circuit from (target, mask) pairs.
func mct(t *testing.T, width int, specs ...[2]uint64) gates.Circuit {
	t.Helper()
	gs := make([]gates.Gate, len(specs))
	for i, sp := range specs {
		g, err := gates.NewMCTGate(int(sp[0]), sp[1])
		require.NoError(t, err)
		gs[i] = g
	}
	c, err := gates.NewCircuit(gates.ModelMCT, width, gs)
	require.NoError(t, err)
	return c
}

// rawSet collects variant encodings for set comparisons.
func rawSet(variants []gates.Circuit) map[string]bool {
	out := make(map[string]bool, len(variants))
	for _, v := range variants {
		out[string(v.EncodeGates())] = true
	}
	return out
}

// TestSwapBudgetZero checks that a zero budget returns exactly the
// input circuit with no exploration.
func TestSwapBudgetZero(t *testing.T) {
	c := mct(t, 4, [2]uint64{1, 0b0001}, [2]uint64{3, 0b0100})
	space, exhausted, err := SwapSpace(c, 0)
	require.NoError(t, err)
	require.Len(t, space, 1)
	assert.Equal(t, c.EncodeGates(), space[0].EncodeGates())
	assert.False(t, exhausted)
}

// TestSwapSpaceDisjointPair checks that two gates on disjoint wires
// yield both orderings.
func TestSwapSpaceDisjointPair(t *testing.T) {
	c := mct(t, 4, [2]uint64{1, 0b0001}, [2]uint64{3, 0b0100})
	space, exhausted, err := SwapSpace(c, 1000)
	require.NoError(t, err)
	assert.Len(t, space, 2)
	assert.True(t, exhausted)

	swapped := mct(t, 4, [2]uint64{3, 0b0100}, [2]uint64{1, 0b0001})
	assert.True(t, rawSet(space)[string(swapped.EncodeGates())])
}

// TestSwapSpaceSharedWires checks that overlapping gates never swap.
func TestSwapSpaceSharedWires(t *testing.T) {
	c := eca57(t, 3, [3]int{0, 1, 2}, [3]int{1, 2, 0})
	space, exhausted, err := SwapSpace(c, 1000)
	require.NoError(t, err)
	assert.Len(t, space, 1)
	assert.True(t, exhausted)
}

// TestSwapSpaceWraparound checks the cyclic last-first pair is part of
// the neighborhood.
func TestSwapSpaceWraparound(t *testing.T) {
	c := eca57(t, 6, [3]int{0, 1, 2}, [3]int{1, 2, 3}, [3]int{3, 4, 5})
	space, exhausted, err := SwapSpace(c, 1000)
	require.NoError(t, err)
	assert.True(t, exhausted)
	require.Len(t, space, 2)

	wrapped := eca57(t, 6, [3]int{3, 4, 5}, [3]int{1, 2, 3}, [3]int{0, 1, 2})
	assert.True(t, rawSet(space)[string(wrapped.EncodeGates())])
}

// TestSwapSpaceBudgetBounds checks the exhausted flag against a space
// larger than the budget.
func TestSwapSpaceBudgetBounds(t *testing.T) {
	c := eca57(t, 9, [3]int{0, 1, 2}, [3]int{3, 4, 5}, [3]int{6, 7, 8})

	full, exhausted, err := SwapSpace(c, 1000)
	require.NoError(t, err)
	assert.Len(t, full, 6, "three disjoint gates generate all orderings")
	assert.True(t, exhausted)

	partial, exhausted, err := SwapSpace(c, 2)
	require.NoError(t, err)
	assert.Len(t, partial, 2)
	assert.False(t, exhausted)
}

// TestExpandFamilyClosure checks that expansion output stays within one
// canonical family.
func TestExpandFamilyClosure(t *testing.T) {
	c := eca57(t, 4, [3]int{0, 1, 2}, [3]int{1, 2, 3}, [3]int{2, 3, 0})
	res, err := Expand(c, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Variants)
	assert.Equal(t, c.EncodeGates(), res.Variants[0].EncodeGates(), "input leads the list")

	base, err := canon.Canonicalize(c)
	require.NoError(t, err)
	for _, v := range res.Variants {
		got, err := canon.Canonicalize(v)
		require.NoError(t, err)
		assert.Equal(t, base.Hash, got.Hash)
	}

	set := rawSet(res.Variants)
	assert.True(t, set[string(c.Rotate(1).EncodeGates())])
	assert.True(t, set[string(c.Mirror().EncodeGates())])
	assert.True(t, set[string(c.Relabel([]int{1, 0, 2, 3}).EncodeGates())])
	assert.Equal(t, OpMirror|OpPermute|OpRotate|OpSwap, res.Ops)
}

// TestExpandDeterminism checks identical runs produce identical ordered
// output.
func TestExpandDeterminism(t *testing.T) {
	c := eca57(t, 4, [3]int{0, 1, 2}, [3]int{1, 2, 3}, [3]int{2, 3, 0})
	a, err := Expand(c, DefaultOptions())
	require.NoError(t, err)
	b, err := Expand(c, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, len(a.Variants), len(b.Variants))
	for i := range a.Variants {
		assert.Equal(t, a.Variants[i].EncodeGates(), b.Variants[i].EncodeGates())
	}
	assert.Equal(t, a.Ops, b.Ops)
	assert.Equal(t, a.Exhausted, b.Exhausted)
}

// TestExpandMCTSkipsRotation checks rotation stays disabled for the
// Toffoli model.
func TestExpandMCTSkipsRotation(t *testing.T) {
	c := mct(t, 2, [2]uint64{0, 0}, [2]uint64{1, 0}, [2]uint64{1, 0b01})
	res, err := Expand(c, DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, res.Ops&OpRotate)
	assert.NotZero(t, res.Ops&OpMirror)

	rotated := c.Rotate(1)
	assert.False(t, rawSet(res.Variants)[string(rotated.EncodeGates())],
		"rotation is not an MCT equivalence")
}

// TestExpandPermutationCap checks the relabeling bound: the first 24
// lexicographic permutations of five wires all fix wire 0.
func TestExpandPermutationCap(t *testing.T) {
	c := eca57(t, 5, [3]int{0, 1, 2})
	res, err := Expand(c, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Variants, 12)
	for _, v := range res.Variants {
		g := v.Gates[0].(gates.ECA57Gate)
		assert.Equal(t, 0, g.T, "capped permutations fix wire 0 for this gate")
	}
}

// TestExpandZeroValueOptions checks the conservative zero configuration.
func TestExpandZeroValueOptions(t *testing.T) {
	c := eca57(t, 4, [3]int{0, 1, 2}, [3]int{1, 2, 3})
	res, err := Expand(c, Options{})
	require.NoError(t, err)
	// No swaps, no relabeling; rotations and mirror still apply.
	assert.Zero(t, res.Ops&OpSwap)
	assert.Zero(t, res.Ops&OpPermute)
	assert.NotZero(t, res.Ops&OpRotate)
	set := rawSet(res.Variants)
	assert.True(t, set[string(c.Rotate(1).EncodeGates())])
	assert.False(t, res.Exhausted)
}

// TestOpString checks flag formatting.
func TestOpString(t *testing.T) {
	assert.Equal(t, "none", Op(0).String())
	assert.Equal(t, "mirror|swap", (OpMirror | OpSwap).String())
	assert.Equal(t, "mirror|permute|rotate|swap", (OpMirror | OpPermute | OpRotate | OpSwap).String())
}
