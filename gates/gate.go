// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package gates defines the reversible gate families the engine can
// synthesize, expand, and store.
//
// A gate family is described by a Model: it knows how wide a circuit must
// be, how gates serialize, whether the family is self-inverse, and whether
// circuit rotation preserves the identity property. Individual gates are
// immutable values implementing the Gate interface.
//
// Two families are built in:
//
//   - ECA57: three-wire gates computing target ^= ctrl1 OR NOT ctrl2.
//     Every gate touches exactly three distinct wires; circuits need
//     width >= 3.
//   - MCT: multi-controlled Toffoli gates. The target flips when every
//     control wire is 1; a gate with no controls is a NOT.
//
// Circuit state is carried as a uint64 bitmask, bit i holding the value
// of wire i. This bounds supported widths to 64, far beyond anything the
// synthesis pipeline can reach.
package gates

import (
	"errors"
	"fmt"
)

// ModelID identifies a gate family on the wire and in store keys.
type ModelID uint8

const (
	// ModelECA57 is the three-wire ECA57 family.
	ModelECA57 ModelID = 1

	// ModelMCT is the multi-controlled Toffoli family.
	ModelMCT ModelID = 2
)

// String returns the lowercase family name used in logs and store metadata.
func (id ModelID) String() string {
	switch id {
	case ModelECA57:
		return "eca57"
	case ModelMCT:
		return "mct"
	default:
		return fmt.Sprintf("model(%d)", uint8(id))
	}
}

// Sentinel errors for gate and circuit validation.
var (
	// ErrUnknownModel indicates a model id with no registered gate family.
	ErrUnknownModel = errors.New("unknown gate model")

	// ErrWidthTooSmall indicates a circuit narrower than the family minimum.
	ErrWidthTooSmall = errors.New("circuit width below model minimum")

	// ErrWireOutOfRange indicates a gate referencing a wire >= width.
	ErrWireOutOfRange = errors.New("gate wire out of range")

	// ErrInvalidGate indicates a structurally malformed gate, such as a
	// target that is also a control.
	ErrInvalidGate = errors.New("invalid gate")

	// ErrModelMismatch indicates a circuit mixing gates from different
	// families.
	ErrModelMismatch = errors.New("gate model mismatch in circuit")

	// ErrTruncatedGates indicates serialized gate bytes that do not divide
	// evenly into whole gates.
	ErrTruncatedGates = errors.New("truncated gate encoding")
)

// Gate is one immutable reversible gate.
//
// # Description
//
// A Gate acts on a circuit state bitmask and knows its own serialized
// form. Implementations are small value types; copying is cheap and
// mutation is impossible after construction.
//
// # Thread Safety
//
// Gates are immutable and safe for concurrent use.
type Gate interface {
	// Model returns the family this gate belongs to.
	Model() ModelID

	// Target returns the wire whose value the gate may flip.
	Target() int

	// WireMask returns a bitmask of every wire the gate touches,
	// target included.
	WireMask() uint64

	// Apply returns the state after the gate acts on it. Bit i of the
	// state is the value of wire i.
	Apply(state uint64) uint64

	// Validate reports whether the gate is well formed for a circuit of
	// the given width.
	Validate(width int) error

	// Relabel returns a copy of the gate with every wire i replaced by
	// perm[i]. The permutation must cover every wire the gate touches.
	Relabel(perm []int) Gate

	// Encode writes the gate's serialized form into dst and returns the
	// number of bytes written. dst must have room for the model's gate
	// length.
	Encode(dst []byte) int

	// String renders the gate for logs and error messages.
	String() string
}

// Model describes one reversible gate family.
//
// # Description
//
// A Model is the single authority on a family's structural rules: minimum
// width, serialized gate size, commutation, and which circuit-level
// symmetries provably preserve the identity property. The expansion and
// canonicalization stages consult these flags rather than assuming them.
//
// # Thread Safety
//
// Models are stateless values and safe for concurrent use.
type Model interface {
	// ID returns the wire/store identifier of the family.
	ID() ModelID

	// Name returns the lowercase family name.
	Name() string

	// MinWidth returns the smallest circuit width the family supports.
	MinWidth() int

	// GateLen returns the serialized size of one gate in bytes.
	GateLen() int

	// SelfInverse reports whether every gate in the family is its own
	// inverse. Mirroring a circuit is only identity-preserving when this
	// holds.
	SelfInverse() bool

	// RotationInvariant reports whether cyclically rotating an identity
	// circuit yields another identity circuit. This holds for ECA57 and
	// must be independently established before enabling it for any other
	// family.
	RotationInvariant() bool

	// Canonicalizable reports whether the family defines a canonical
	// relabeling rule. Families without one cannot be canonicalized and
	// must be rejected loudly downstream.
	Canonicalizable() bool

	// Universe returns every valid gate at the given width in a fixed,
	// deterministic order. Intended for small widths; the MCT universe
	// grows exponentially with width.
	Universe(width int) []Gate

	// Decode parses one serialized gate. data must be exactly GateLen
	// bytes.
	Decode(data []byte) (Gate, error)

	// Commutes reports whether two adjacent gates may be swapped without
	// changing the circuit's action. Both families use the conservative
	// rule: gates commute when their wire sets are disjoint.
	Commutes(a, b Gate) bool
}

// ModelByID resolves a model identifier to its family.
func ModelByID(id ModelID) (Model, error) {
	switch id {
	case ModelECA57:
		return ECA57{}, nil
	case ModelMCT:
		return MCT{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownModel, uint8(id))
	}
}

// ModelByName resolves a lowercase family name to its model.
func ModelByName(name string) (Model, error) {
	switch name {
	case "eca57":
		return ECA57{}, nil
	case "mct":
		return MCT{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
}

// disjoint reports whether two wire masks share no wires.
func disjoint(a, b uint64) bool {
	return a&b == 0
}
