// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package store

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/revtempl/gates"
)

func patternHash(start byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = start + byte(i)
	}
	return h
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// TestTemplateRecordGolden pins the template record layout byte for
// byte. A failure here means the on-disk format changed and
// SchemaVersion must be bumped.
func TestTemplateRecordGolden(t *testing.T) {
	rec := TemplateRecord{
		TemplateID:       42,
		ModelID:          gates.ModelECA57,
		Width:            3,
		GateCount:        2,
		CanonicalHash:    patternHash(0x00),
		FamilyHash:       patternHash(0x20),
		Origin:           OriginSAT,
		OriginTemplateID: 7,
		UnrollOps:        13,
		Gates:            []byte{0, 1, 2, 2, 0, 1},
	}
	golden(t).Assert(t, "template_record", rec.Encode())
}

// TestWitnessRecordGolden pins the witness record layout byte for byte.
func TestWitnessRecordGolden(t *testing.T) {
	rec := WitnessRecord{
		WitnessID:        9,
		ModelID:          gates.ModelMCT,
		Width:            4,
		WitnessLen:       2,
		WitnessHash:      patternHash(0x40),
		SourceTemplateID: 42,
		Gates:            []byte{0, 6, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	golden(t).Assert(t, "witness_record", rec.Encode())
}

// TestTemplateRecordRoundTrip checks encode/decode and circuit
// reconstruction.
func TestTemplateRecordRoundTrip(t *testing.T) {
	g1, err := gates.NewECA57Gate(0, 1, 2)
	require.NoError(t, err)
	g2, err := gates.NewECA57Gate(2, 0, 1)
	require.NoError(t, err)
	c, err := gates.NewCircuit(gates.ModelECA57, 3, []gates.Gate{g1, g2})
	require.NoError(t, err)

	rec := TemplateRecord{
		TemplateID:       1,
		ModelID:          gates.ModelECA57,
		Width:            3,
		GateCount:        2,
		CanonicalHash:    patternHash(0x10),
		FamilyHash:       patternHash(0x30),
		Origin:           OriginUnroll,
		OriginTemplateID: 1,
		UnrollOps:        5,
		Gates:            c.EncodeGates(),
	}

	back, err := DecodeTemplateRecord(rec.Encode())
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	rc, err := back.Circuit()
	require.NoError(t, err)
	assert.Equal(t, c.Gates, rc.Gates)
	assert.Equal(t, 3, rc.Width)
}

// TestWitnessRecordRoundTrip checks encode/decode and circuit
// reconstruction.
func TestWitnessRecordRoundTrip(t *testing.T) {
	g1, err := gates.NewMCTGate(0, 0b0110)
	require.NoError(t, err)
	g2, err := gates.NewMCTGate(3, 0)
	require.NoError(t, err)
	c, err := gates.NewCircuit(gates.ModelMCT, 4, []gates.Gate{g1, g2})
	require.NoError(t, err)

	rec := WitnessRecord{
		WitnessID:        7,
		ModelID:          gates.ModelMCT,
		Width:            4,
		WitnessLen:       2,
		WitnessHash:      patternHash(0x50),
		SourceTemplateID: 3,
		Gates:            c.EncodeGates(),
	}

	back, err := DecodeWitnessRecord(rec.Encode())
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	rc, err := back.Circuit()
	require.NoError(t, err)
	assert.Equal(t, c.Gates, rc.Gates)
}

// TestRecordCorruption checks that truncated and padded buffers are
// rejected.
func TestRecordCorruption(t *testing.T) {
	rec := TemplateRecord{
		ModelID: gates.ModelECA57,
		Width:   3,
		Gates:   []byte{0, 1, 2},
	}
	enc := rec.Encode()

	_, err := DecodeTemplateRecord(enc[:templateHeaderLen-1])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = DecodeTemplateRecord(append(append([]byte(nil), enc...), 0xFF))
	assert.ErrorIs(t, err, ErrCorruptRecord)

	wrec := WitnessRecord{ModelID: gates.ModelMCT, Width: 2}
	wenc := wrec.Encode()

	_, err = DecodeWitnessRecord(wenc[:witnessHeaderLen-1])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = DecodeWitnessRecord(append(append([]byte(nil), wenc...), 0xFF))
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

// TestOriginNames checks origin rendering and validity.
func TestOriginNames(t *testing.T) {
	assert.Equal(t, "sat", OriginSAT.String())
	assert.Equal(t, "unroll", OriginUnroll.String())
	assert.Equal(t, "distilled", OriginDistilled.String())
	assert.Equal(t, "origin(9)", Origin(9).String())

	assert.True(t, OriginSAT.valid())
	assert.False(t, Origin(0).valid())
	assert.False(t, Origin(9).valid())
}

// TestKeyLayouts checks key sizes, prefixes, and that id components
// sort numerically under lexicographic comparison.
func TestKeyLayouts(t *testing.T) {
	hash := patternHash(0x00)

	tk := templateKey(1, 3, 2, hash)
	require.Len(t, tk, 37)
	assert.Equal(t, byte(prefixTemplates), tk[0])
	assert.Equal(t, []byte{1, 3, 0, 2}, tk[1:5])
	assert.Equal(t, hash[:], tk[5:])

	fk := familyKey(2, hash)
	require.Len(t, fk, 34)
	assert.Equal(t, byte(prefixFamilies), fk[0])

	wk := witnessKey(1, 4, 3, hash)
	require.Len(t, wk, 37)
	assert.Equal(t, byte(prefixWitnesses), wk[0])

	pk := prefilterKey(1, 4, 0x0102030405060708)
	require.Len(t, pk, 11)
	assert.Equal(t, []byte{prefixPrefilter, 1, 4, 1, 2, 3, 4, 5, 6, 7, 8}, pk)

	// Big-endian ids keep lexicographic order numeric.
	low := dimsKey(1, 3, 2, 255)
	high := dimsKey(1, 3, 2, 256)
	assert.Negative(t, bytes.Compare(low, high))
}

// TestParseDimsKey checks the dims key round-trip and rejection of
// foreign keys.
func TestParseDimsKey(t *testing.T) {
	key := dimsKey(1, 3, 2, 77)
	d, err := parseDimsKey(key)
	require.NoError(t, err)
	assert.Equal(t, dims{model: 1, width: 3, gateCount: 2, id: 77}, d)

	_, err = parseDimsKey(key[:6])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = parseDimsKey(templateKey(1, 3, 2, patternHash(0)))
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

// TestIDListHelpers checks append-if-missing and list decoding.
func TestIDListHelpers(t *testing.T) {
	list, changed, err := appendIDList(nil, 5)
	require.NoError(t, err)
	assert.True(t, changed)

	list, changed, err = appendIDList(list, 9)
	require.NoError(t, err)
	assert.True(t, changed)

	same, changed, err := appendIDList(list, 5)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, list, same)

	ids, err := decodeIDList(list)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 9}, ids)

	_, err = decodeIDList(list[:7])
	assert.ErrorIs(t, err, ErrCorruptRecord)
}
