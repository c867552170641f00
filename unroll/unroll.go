// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package unroll expands one identity circuit into its equivalence
// variants.
//
// The expansion pipeline runs swap-space search, then rotations (for
// rotation-invariant models), then mirroring (for self-inverse models),
// then wire relabelings, deduplicating raw encodings between stages.
// Duplicates across different expansions are expected and are resolved
// downstream by canonical hash, not here. The whole pipeline is
// deterministic: same circuit and options always produce the same
// variant list in the same order.
//
// Every operation assumes the input realizes the identity permutation.
// Mirror and rotation (and the cyclic wraparound swap) preserve
// identity-ness but not the function of arbitrary circuits.
package unroll

import (
	"fmt"

	"github.com/tidewater-labs/revtempl/gates"
)

// Op flags record which transformation classes an expansion exercised.
// The values are persisted in template records.
type Op uint32

const (
	OpMirror  Op = 1
	OpPermute Op = 2
	OpRotate  Op = 4
	OpSwap    Op = 8
)

// String lists the set ops in persistence-bit order.
func (o Op) String() string {
	names := []struct {
		bit  Op
		name string
	}{{OpMirror, "mirror"}, {OpPermute, "permute"}, {OpRotate, "rotate"}, {OpSwap, "swap"}}
	out := ""
	for _, n := range names {
		if o&n.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if out == "" {
		return "none"
	}
	return out
}

// Options bounds the expansion. The zero value performs no swap
// exploration and no relabeling; use DefaultOptions for the standard
// bounds.
type Options struct {
	// MaxPermutations caps how many wire relabelings are applied, in
	// lexicographic order starting with the identity. Values below 2
	// disable relabeling.
	MaxPermutations int

	// SwapBudget caps swap-space search, counted in expanded nodes.
	// Zero means the swap stage returns exactly the input circuit.
	SwapBudget int
}

// DefaultOptions covers the full symmetric group up to four wires and a
// comfortably large swap frontier for small templates.
func DefaultOptions() Options {
	return Options{
		MaxPermutations: 24,
		SwapBudget:      1000,
	}
}

// Result is one expansion's output.
type Result struct {
	// Variants holds the input circuit and every produced variant, in
	// deterministic order. Raw-encoding duplicates are removed.
	Variants []gates.Circuit

	// Ops records which transformation classes ran.
	Ops Op

	// Exhausted reports whether the swap frontier was fully explored
	// before the budget ran out.
	Exhausted bool
}

// Expand produces the equivalence variants of an identity circuit.
func Expand(c gates.Circuit, opts Options) (Result, error) {
	model, err := gates.ModelByID(c.ModelID)
	if err != nil {
		return Result{}, err
	}
	if err := c.Validate(); err != nil {
		return Result{}, fmt.Errorf("unroll: %w", err)
	}

	var ops Op
	set, exhausted, err := SwapSpace(c, opts.SwapBudget)
	if err != nil {
		return Result{}, err
	}
	if opts.SwapBudget > 0 && c.GateCount() > 1 {
		ops |= OpSwap
	}

	if model.RotationInvariant() {
		if c.GateCount() > 1 {
			ops |= OpRotate
		}
		var staged []gates.Circuit
		for _, v := range set {
			for k := 0; k < v.GateCount(); k++ {
				staged = append(staged, v.Rotate(k))
			}
		}
		if staged != nil {
			set = dedup(staged)
		}
	}

	if model.SelfInverse() {
		ops |= OpMirror
		for _, v := range set {
			set = append(set, v.Mirror())
		}
		set = dedup(set)
	}

	if opts.MaxPermutations > 1 && c.Width > 1 {
		ops |= OpPermute
		perms := boundedPermutations(c.Width, opts.MaxPermutations)
		var staged []gates.Circuit
		for _, v := range set {
			for _, p := range perms {
				staged = append(staged, v.Relabel(p))
			}
		}
		set = dedup(staged)
	}

	return Result{Variants: set, Ops: ops, Exhausted: exhausted}, nil
}

// SwapSpace searches the space reachable from c by exchanging adjacent
// commuting gates, including the cyclic last-first pair. Search is
// breadth first; budget caps the number of nodes expanded. A zero
// budget returns exactly the input with no exploration.
func SwapSpace(c gates.Circuit, budget int) ([]gates.Circuit, bool, error) {
	if err := c.Validate(); err != nil {
		return nil, false, fmt.Errorf("unroll: %w", err)
	}
	if budget <= 0 {
		return []gates.Circuit{c}, false, nil
	}
	model, err := gates.ModelByID(c.ModelID)
	if err != nil {
		return nil, false, err
	}

	visited := make(map[string]struct{})
	var order []gates.Circuit
	queue := []gates.Circuit{c}
	expanded := 0
	exhausted := true
	for len(queue) > 0 {
		if expanded >= budget {
			exhausted = false
			break
		}
		cur := queue[0]
		queue = queue[1:]
		key := string(cur.EncodeGates())
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}
		order = append(order, cur)
		expanded++

		n := cur.GateCount()
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			if i == j {
				continue
			}
			if !model.Commutes(cur.Gates[i], cur.Gates[j]) {
				continue
			}
			next := cur.Clone()
			next.Gates[i], next.Gates[j] = next.Gates[j], next.Gates[i]
			if _, ok := visited[string(next.EncodeGates())]; !ok {
				queue = append(queue, next)
			}
		}
	}
	return order, exhausted, nil
}

// dedup removes raw-encoding duplicates, keeping first occurrences.
func dedup(in []gates.Circuit) []gates.Circuit {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, c := range in {
		key := string(c.EncodeGates())
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// boundedPermutations lists permutations of [0, n) in lexicographic
// order, up to the limit.
func boundedPermutations(n, limit int) [][]int {
	cur := make([]int, n)
	for i := range cur {
		cur[i] = i
	}
	var out [][]int
	for len(out) < limit {
		next := make([]int, n)
		copy(next, cur)
		out = append(out, next)
		i := n - 2
		for i >= 0 && cur[i] >= cur[i+1] {
			i--
		}
		if i < 0 {
			break
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
	return out
}
