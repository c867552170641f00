// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package witness derives bounded prefixes from templates and the
// k-gram tokens used to prefilter witness lookups.
//
// A witness is the leading half of a template, one gate more than half
// rounded down. Tokens are taken from every window of two and three
// consecutive gates: each window is canonicalized under wire relabeling
// only (order must stay fixed, since a prefix is not an identity) and
// the first eight bytes of its hash become the token. Matching is a
// prefilter: token hits are a superset of true matches and callers must
// verify candidates exactly.
package witness

import (
	"encoding/binary"

	"github.com/tidewater-labs/revtempl/canon"
	"github.com/tidewater-labs/revtempl/gates"
)

// Gram window bounds. Circuits shorter than MinGram produce no tokens
// and bypass the prefilter entirely.
const (
	MinGram = 2
	MaxGram = 3
)

// Length returns the witness prefix length for a template gate count.
func Length(gateCount int) int {
	return gateCount/2 + 1
}

// Extract returns the witness prefix of a template circuit.
func Extract(c gates.Circuit) gates.Circuit {
	return c.Prefix(Length(c.GateCount()))
}

// GramTokens returns the token of every k-gate window of c, in window
// order, without deduplication.
func GramTokens(c gates.Circuit, k int) ([]uint64, error) {
	n := c.GateCount()
	if k < 1 || n < k {
		return nil, nil
	}
	out := make([]uint64, 0, n-k+1)
	for i := 0; i+k <= n; i++ {
		can, err := canon.CanonicalizeStructure(c.Window(i, k))
		if err != nil {
			return nil, err
		}
		out = append(out, binary.LittleEndian.Uint64(can.Hash[:8]))
	}
	return out, nil
}

// Tokens returns the deduplicated tokens of all gram sizes for c, in
// first-occurrence order.
func Tokens(c gates.Circuit) ([]uint64, error) {
	var out []uint64
	seen := make(map[uint64]struct{})
	for k := MinGram; k <= MaxGram; k++ {
		toks, err := GramTokens(c, k)
		if err != nil {
			return nil, err
		}
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}
