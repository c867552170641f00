// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package canon assigns circuits their canonical form and content hash.
//
// Two quotients are exposed. Canonicalize identifies a circuit with its
// whole equivalence family: wire relabelings, plus the mirror image for
// self-inverse gate models and every cyclic rotation for models where
// rotating an identity circuit yields another identity. Every member of
// a family maps to the same canonical byte string and hash, which is
// what template deduplication keys on. CanonicalizeStructure quotients
// by wire relabeling only; witness prefixes and prefilter windows use
// it, because a prefix is not an identity and mirror or rotation would
// change the function it computes.
//
// The canonical form is the lexicographically smallest encoded gate
// sequence over all candidates. Hashes are SHA-256 over a versioned,
// domain-separated preimage, so family hashes and structure hashes can
// never collide by construction and a change to the canonical rule
// changes every hash.
package canon

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/tidewater-labs/revtempl/gates"
)

// Version identifies the canonical rule. Stores record it and refuse to
// merge data canonicalized under a different rule.
const Version = 2

// maxWidth bounds relabeling enumeration: candidates grow with width
// factorial.
const maxWidth = 8

// CanonicalizationError reports a circuit no canonical rule covers.
type CanonicalizationError struct {
	Model  string
	Detail string
}

// Error implements error.
func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("cannot canonicalize %s circuit: %s", e.Model, e.Detail)
}

// Canonical is the canonical form of one circuit.
type Canonical struct {
	// Gates is the canonical encoded gate sequence.
	Gates []byte

	// Hash is the content hash shared by every circuit mapping to the
	// same canonical form.
	Hash [32]byte
}

// Canonicalize maps the circuit to its family-canonical form.
func Canonicalize(c gates.Circuit) (Canonical, error) {
	return canonicalize(c, true)
}

// CanonicalizeStructure maps the circuit to its relabeling-canonical
// form, keeping gate order fixed.
func CanonicalizeStructure(c gates.Circuit) (Canonical, error) {
	return canonicalize(c, false)
}

func canonicalize(c gates.Circuit, family bool) (Canonical, error) {
	model, err := gates.ModelByID(c.ModelID)
	if err != nil {
		return Canonical{}, &CanonicalizationError{Model: "unknown", Detail: err.Error()}
	}
	if !model.Canonicalizable() {
		return Canonical{}, &CanonicalizationError{
			Model:  model.Name(),
			Detail: "gate model defines no canonical rule",
		}
	}
	if c.Width > maxWidth {
		return Canonical{}, &CanonicalizationError{
			Model:  model.Name(),
			Detail: fmt.Sprintf("width %d exceeds relabeling limit %d", c.Width, maxWidth),
		}
	}
	if err := c.Validate(); err != nil {
		return Canonical{}, &CanonicalizationError{Model: model.Name(), Detail: err.Error()}
	}

	variants := []gates.Circuit{c}
	if family {
		if model.SelfInverse() {
			variants = append(variants, c.Mirror())
		}
		if model.RotationInvariant() {
			base := variants
			for _, v := range base {
				for k := 1; k < v.GateCount(); k++ {
					variants = append(variants, v.Rotate(k))
				}
			}
		}
	}

	var best []byte
	for _, perm := range permutations(c.Width) {
		for _, v := range variants {
			enc := v.Relabel(perm).EncodeGates()
			if best == nil || bytes.Compare(enc, best) < 0 {
				best = enc
			}
		}
	}
	if best == nil {
		best = []byte{}
	}

	domain := "struct"
	if family {
		domain = "family"
	}
	h := sha256.New()
	fmt.Fprintf(h, "revtempl/canon/v%d|%s|%s|%d|%d|", Version, domain, model.Name(), c.Width, c.GateCount())
	h.Write(best)
	out := Canonical{Gates: best}
	copy(out.Hash[:], h.Sum(nil))
	return out, nil
}

// permutations enumerates all permutations of [0, n) in lexicographic
// order, identity first.
func permutations(n int) [][]int {
	cur := make([]int, n)
	for i := range cur {
		cur[i] = i
	}
	var out [][]int
	for {
		next := make([]int, n)
		copy(next, cur)
		out = append(out, next)
		// Standard next-permutation step.
		i := n - 2
		for i >= 0 && cur[i] >= cur[i+1] {
			i--
		}
		if i < 0 {
			return out
		}
		j := n - 1
		for cur[j] <= cur[i] {
			j--
		}
		cur[i], cur[j] = cur[j], cur[i]
		for l, r := i+1, n-1; l < r; l, r = l+1, r-1 {
			cur[l], cur[r] = cur[r], cur[l]
		}
	}
}
