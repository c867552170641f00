// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/revtempl/gates"
)

// eca57Circuit builds an ECA57 circuit from (target, ctrl1, ctrl2)
// triples.
func eca57Circuit(t *testing.T, width int, triples ...[3]int) gates.Circuit {
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

// mctCircuit builds an MCT circuit from (target, control mask) pairs.
func mctCircuit(t *testing.T, width int, specs ...[2]uint64) gates.Circuit {
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

// TestCanonicalDeterminism checks that repeated canonicalization gives
// identical bytes and hash.
func TestCanonicalDeterminism(t *testing.T) {
	c := eca57Circuit(t, 4, [3]int{0, 1, 2}, [3]int{3, 2, 1})
	a, err := Canonicalize(c)
	require.NoError(t, err)
	b, err := Canonicalize(c)
	require.NoError(t, err)
	assert.Equal(t, a.Gates, b.Gates)
	assert.Equal(t, a.Hash, b.Hash)
}

// TestCanonicalStableUnderRelabeling checks that renaming wires never
// changes the canonical hash.
func TestCanonicalStableUnderRelabeling(t *testing.T) {
	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{1, 2, 0})
	base, err := Canonicalize(c)
	require.NoError(t, err)
	for _, perm := range [][]int{{1, 0, 2}, {2, 0, 1}, {2, 1, 0}} {
		got, err := Canonicalize(c.Relabel(perm))
		require.NoError(t, err)
		assert.Equal(t, base.Hash, got.Hash, "perm %v", perm)
		assert.Equal(t, base.Gates, got.Gates, "perm %v", perm)
	}

	m := mctCircuit(t, 3, [2]uint64{0, 0b110}, [2]uint64{1, 0b100})
	mBase, err := Canonicalize(m)
	require.NoError(t, err)
	got, err := Canonicalize(m.Relabel([]int{2, 0, 1}))
	require.NoError(t, err)
	assert.Equal(t, mBase.Hash, got.Hash)
}

// TestCanonicalMirror checks that a self-inverse model's mirror lands
// in the same family.
func TestCanonicalMirror(t *testing.T) {
	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{1, 2, 0}, [3]int{2, 0, 1})
	base, err := Canonicalize(c)
	require.NoError(t, err)
	mir, err := Canonicalize(c.Mirror())
	require.NoError(t, err)
	assert.Equal(t, base.Hash, mir.Hash)

	m := mctCircuit(t, 2, [2]uint64{0, 0}, [2]uint64{1, 0b01})
	mBase, err := Canonicalize(m)
	require.NoError(t, err)
	mMir, err := Canonicalize(m.Mirror())
	require.NoError(t, err)
	assert.Equal(t, mBase.Hash, mMir.Hash)
}

// TestCanonicalRotationECA57 checks that rotations stay in the family
// for the rotation-invariant model.
func TestCanonicalRotationECA57(t *testing.T) {
	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{1, 2, 0}, [3]int{2, 0, 1})
	base, err := Canonicalize(c)
	require.NoError(t, err)
	for k := 1; k < c.GateCount(); k++ {
		got, err := Canonicalize(c.Rotate(k))
		require.NoError(t, err)
		assert.Equal(t, base.Hash, got.Hash, "rotation %d", k)
	}
}

// TestCanonicalRotationMCTDistinct checks that rotation is not part of
// the MCT quotient: a rotated circuit outside the relabel-mirror orbit
// gets a different hash.
func TestCanonicalRotationMCTDistinct(t *testing.T) {
	c := mctCircuit(t, 2, [2]uint64{0, 0}, [2]uint64{1, 0}, [2]uint64{1, 0b01})
	base, err := Canonicalize(c)
	require.NoError(t, err)
	rot, err := Canonicalize(c.Rotate(1))
	require.NoError(t, err)
	assert.NotEqual(t, base.Hash, rot.Hash)
}

// TestStructureQuotient checks that the structural form keeps gate
// order: the mirror of an order-asymmetric circuit hashes differently
// under CanonicalizeStructure but identically under Canonicalize.
func TestStructureQuotient(t *testing.T) {
	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{1, 2, 0})
	mir := c.Mirror()

	fam, err := Canonicalize(c)
	require.NoError(t, err)
	famMir, err := Canonicalize(mir)
	require.NoError(t, err)
	assert.Equal(t, fam.Hash, famMir.Hash)

	st, err := CanonicalizeStructure(c)
	require.NoError(t, err)
	stMir, err := CanonicalizeStructure(mir)
	require.NoError(t, err)
	assert.NotEqual(t, st.Hash, stMir.Hash)

	// Relabeling still collapses under the structural quotient.
	stRel, err := CanonicalizeStructure(c.Relabel([]int{2, 0, 1}))
	require.NoError(t, err)
	assert.Equal(t, st.Hash, stRel.Hash)
}

// TestFamilyAndStructureDomainsSeparate checks that the two quotients
// never share a hash even when the canonical bytes coincide.
func TestFamilyAndStructureDomainsSeparate(t *testing.T) {
	c := eca57Circuit(t, 3, [3]int{0, 1, 2})
	fam, err := Canonicalize(c)
	require.NoError(t, err)
	st, err := CanonicalizeStructure(c)
	require.NoError(t, err)
	assert.Equal(t, fam.Gates, st.Gates, "single gate: same minimal bytes")
	assert.NotEqual(t, fam.Hash, st.Hash, "domain separation")
}

// TestCanonicalBytesDecode checks the canonical byte string is a valid
// gate sequence of the original dimensions and a fixed point of
// canonicalization.
func TestCanonicalBytesDecode(t *testing.T) {
	c := eca57Circuit(t, 4, [3]int{3, 0, 1}, [3]int{2, 3, 0})
	can, err := Canonicalize(c)
	require.NoError(t, err)
	gs, err := gates.DecodeGates(gates.ECA57{}, can.Gates)
	require.NoError(t, err)
	dec, err := gates.NewCircuit(gates.ModelECA57, 4, gs)
	require.NoError(t, err)
	again, err := Canonicalize(dec)
	require.NoError(t, err)
	assert.Equal(t, can.Hash, again.Hash)
	assert.Equal(t, can.Gates, again.Gates)
}

// TestCanonicalizeEmptyCircuit checks the zero-gate circuit is handled.
func TestCanonicalizeEmptyCircuit(t *testing.T) {
	c, err := gates.NewCircuit(gates.ModelMCT, 2, nil)
	require.NoError(t, err)
	can, err := Canonicalize(c)
	require.NoError(t, err)
	assert.Empty(t, can.Gates)
	assert.NotEqual(t, [32]byte{}, can.Hash)
}

// TestCanonicalizeWidthLimit checks the factorial-enumeration guard.
func TestCanonicalizeWidthLimit(t *testing.T) {
	g, err := gates.NewMCTGate(0, 0)
	require.NoError(t, err)
	c, err := gates.NewCircuit(gates.ModelMCT, 9, []gates.Gate{g})
	require.NoError(t, err)
	_, err = Canonicalize(c)
	var ce *CanonicalizationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "mct", ce.Model)
}

// TestPermutations checks order and count of the enumeration helper.
func TestPermutations(t *testing.T) {
	ps := permutations(3)
	require.Len(t, ps, 6)
	assert.Equal(t, []int{0, 1, 2}, ps[0])
	assert.Equal(t, []int{0, 2, 1}, ps[1])
	assert.Equal(t, []int{2, 1, 0}, ps[5])
}
