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
	"encoding/binary"
	"fmt"

	"github.com/tidewater-labs/revtempl/gates"
)

// SchemaVersion covers the key and record layouts. The metadata index
// also records canon.Version; opening or merging gates on both.
const SchemaVersion uint32 = 1

// Origin records how a template entered the store.
type Origin uint8

const (
	// OriginSAT marks a template found by SAT synthesis.
	OriginSAT Origin = 1

	// OriginUnroll marks a template derived by equivalence expansion
	// from a stored seed.
	OriginUnroll Origin = 2

	// OriginDistilled marks a template imported by external tooling.
	OriginDistilled Origin = 3
)

// String returns the origin name used in logs.
func (o Origin) String() string {
	switch o {
	case OriginSAT:
		return "sat"
	case OriginUnroll:
		return "unroll"
	case OriginDistilled:
		return "distilled"
	default:
		return fmt.Sprintf("origin(%d)", uint8(o))
	}
}

func (o Origin) valid() bool {
	return o == OriginSAT || o == OriginUnroll || o == OriginDistilled
}

// Record header sizes in bytes.
const (
	templateHeaderLen = 8 + 1 + 1 + 2 + 32 + 32 + 1 + 8 + 4 + 2
	witnessHeaderLen  = 8 + 1 + 1 + 2 + 32 + 8 + 2
)

// TemplateRecord is the stored form of one canonical template.
//
// # Description
//
// The header is a fixed 91-byte little-endian layout followed by the
// canonical gate encoding. OriginTemplateID is the seed template for
// unroll-derived entries and zero otherwise. UnrollOps is the bitmask
// of expansion operations that produced the variant.
type TemplateRecord struct {
	TemplateID       uint64
	ModelID          gates.ModelID
	Width            uint8
	GateCount        uint16
	CanonicalHash    [32]byte
	FamilyHash       [32]byte
	Origin           Origin
	OriginTemplateID uint64
	UnrollOps        uint32
	Gates            []byte
}

// Encode serializes the record.
func (r TemplateRecord) Encode() []byte {
	buf := make([]byte, 0, templateHeaderLen+len(r.Gates))
	buf = binary.LittleEndian.AppendUint64(buf, r.TemplateID)
	buf = append(buf, uint8(r.ModelID), r.Width)
	buf = binary.LittleEndian.AppendUint16(buf, r.GateCount)
	buf = append(buf, r.CanonicalHash[:]...)
	buf = append(buf, r.FamilyHash[:]...)
	buf = append(buf, uint8(r.Origin))
	buf = binary.LittleEndian.AppendUint64(buf, r.OriginTemplateID)
	buf = binary.LittleEndian.AppendUint32(buf, r.UnrollOps)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Gates)))
	buf = append(buf, r.Gates...)
	return buf
}

// DecodeTemplateRecord parses a stored template record.
func DecodeTemplateRecord(data []byte) (TemplateRecord, error) {
	var r TemplateRecord
	if len(data) < templateHeaderLen {
		return r, fmt.Errorf("%w: template record %d bytes, header needs %d",
			ErrCorruptRecord, len(data), templateHeaderLen)
	}
	r.TemplateID = binary.LittleEndian.Uint64(data[0:])
	r.ModelID = gates.ModelID(data[8])
	r.Width = data[9]
	r.GateCount = binary.LittleEndian.Uint16(data[10:])
	copy(r.CanonicalHash[:], data[12:44])
	copy(r.FamilyHash[:], data[44:76])
	r.Origin = Origin(data[76])
	r.OriginTemplateID = binary.LittleEndian.Uint64(data[77:])
	r.UnrollOps = binary.LittleEndian.Uint32(data[85:])
	gatesLen := int(binary.LittleEndian.Uint16(data[89:]))
	if len(data) != templateHeaderLen+gatesLen {
		return r, fmt.Errorf("%w: template record %d bytes, gates_len says %d",
			ErrCorruptRecord, len(data), templateHeaderLen+gatesLen)
	}
	r.Gates = append([]byte(nil), data[templateHeaderLen:]...)
	return r, nil
}

// Circuit reconstructs the canonical circuit from the record.
func (r TemplateRecord) Circuit() (gates.Circuit, error) {
	m, err := gates.ModelByID(r.ModelID)
	if err != nil {
		return gates.Circuit{}, err
	}
	gs, err := gates.DecodeGates(m, r.Gates)
	if err != nil {
		return gates.Circuit{}, fmt.Errorf("template %d: %w", r.TemplateID, err)
	}
	return gates.NewCircuit(r.ModelID, int(r.Width), gs)
}

// WitnessRecord is the stored form of one witness prefix.
//
// # Description
//
// The header is a fixed 54-byte little-endian layout followed by the
// witness gate encoding. WitnessHash is the relabel-quotient hash of
// the prefix; SourceTemplateID names the template it was cut from.
type WitnessRecord struct {
	WitnessID        uint64
	ModelID          gates.ModelID
	Width            uint8
	WitnessLen       uint16
	WitnessHash      [32]byte
	SourceTemplateID uint64
	Gates            []byte
}

// Encode serializes the record.
func (r WitnessRecord) Encode() []byte {
	buf := make([]byte, 0, witnessHeaderLen+len(r.Gates))
	buf = binary.LittleEndian.AppendUint64(buf, r.WitnessID)
	buf = append(buf, uint8(r.ModelID), r.Width)
	buf = binary.LittleEndian.AppendUint16(buf, r.WitnessLen)
	buf = append(buf, r.WitnessHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, r.SourceTemplateID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Gates)))
	buf = append(buf, r.Gates...)
	return buf
}

// DecodeWitnessRecord parses a stored witness record.
func DecodeWitnessRecord(data []byte) (WitnessRecord, error) {
	var r WitnessRecord
	if len(data) < witnessHeaderLen {
		return r, fmt.Errorf("%w: witness record %d bytes, header needs %d",
			ErrCorruptRecord, len(data), witnessHeaderLen)
	}
	r.WitnessID = binary.LittleEndian.Uint64(data[0:])
	r.ModelID = gates.ModelID(data[8])
	r.Width = data[9]
	r.WitnessLen = binary.LittleEndian.Uint16(data[10:])
	copy(r.WitnessHash[:], data[12:44])
	r.SourceTemplateID = binary.LittleEndian.Uint64(data[44:])
	gatesLen := int(binary.LittleEndian.Uint16(data[52:]))
	if len(data) != witnessHeaderLen+gatesLen {
		return r, fmt.Errorf("%w: witness record %d bytes, gates_len says %d",
			ErrCorruptRecord, len(data), witnessHeaderLen+gatesLen)
	}
	r.Gates = append([]byte(nil), data[witnessHeaderLen:]...)
	return r, nil
}

// Circuit reconstructs the witness circuit from the record.
func (r WitnessRecord) Circuit() (gates.Circuit, error) {
	m, err := gates.ModelByID(r.ModelID)
	if err != nil {
		return gates.Circuit{}, err
	}
	gs, err := gates.DecodeGates(m, r.Gates)
	if err != nil {
		return gates.Circuit{}, fmt.Errorf("witness %d: %w", r.WitnessID, err)
	}
	return gates.NewCircuit(r.ModelID, int(r.Width), gs)
}
