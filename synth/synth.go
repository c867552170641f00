// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package synth encodes exact circuit synthesis as SAT and decodes
// solver models back into circuits.
//
// A Synthesizer serves exactly one (model, width, gate count) point
// against one target truth table. Its formula only ever grows: Exclude
// and ExcludeFamily append blocking clauses over the structural
// assignment, which is what lets the enumeration loop walk every
// solution exactly once and terminate on unsatisfiable.
package synth

import (
	"context"
	"fmt"

	"github.com/tidewater-labs/revtempl/cnf"
	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/sat"
	"github.com/tidewater-labs/revtempl/truthtable"
)

// maxWidth bounds the encoding: data variables scale with 2^width, so
// wider requests are rejected before allocating anything.
const maxWidth = 16

// Options tunes formula construction.
type Options struct {
	// EveryWireTouched adds the constraint that every wire appears in
	// at least one gate's structural role, rejecting circuits that
	// leave a wire idle.
	EveryWireTouched bool
}

// Synthesizer owns one growing formula for one synthesis point.
//
// # Thread Safety
//
// Not safe for concurrent use. The enumeration driver serializes
// Solve/Exclude on one goroutine; the racer underneath does its own
// parallelism.
type Synthesizer struct {
	model     gates.Model
	target    truthtable.Table
	gateCount int
	racer     *sat.Racer

	builder   *cnf.Builder
	structure structure
}

// New builds the synthesis formula for the target table.
//
// # Inputs
//   - model: the gate model to synthesize over.
//   - target: the truth table the circuit must realize.
//   - gateCount: exact number of gates, at least 1.
//   - racer: solver backends to race; must have at least one backend.
//   - opts: optional structural constraints.
//
// # Outputs
//   - *Synthesizer ready for Solve, or an EncodingError for dimensions
//     the model cannot express.
func New(model gates.Model, target truthtable.Table, gateCount int, racer *sat.Racer, opts Options) (*Synthesizer, error) {
	name := model.Name()
	width := target.Width()
	if width < model.MinWidth() {
		return nil, encodingErrf(name, width, gateCount,
			"model requires width >= %d", model.MinWidth())
	}
	if width > maxWidth {
		return nil, encodingErrf(name, width, gateCount,
			"width exceeds encoding limit %d", maxWidth)
	}
	if gateCount < 1 {
		return nil, encodingErrf(name, width, gateCount, "gate count must be at least 1")
	}

	b := cnf.NewBuilder()
	var (
		s   structure
		err error
	)
	switch model.ID() {
	case gates.ModelECA57:
		s, err = encodeECA57(b, target, gateCount)
	case gates.ModelMCT:
		s, err = encodeMCT(b, target, gateCount)
	default:
		return nil, encodingErrf(name, width, gateCount, "no encoder for model")
	}
	if err != nil {
		return nil, encodingErrf(name, width, gateCount, "build formula: %v", err)
	}
	if opts.EveryWireTouched {
		if err := requireEveryWireTouched(b, s); err != nil {
			return nil, encodingErrf(name, width, gateCount, "wire coverage: %v", err)
		}
	}

	return &Synthesizer{
		model:     model,
		target:    target,
		gateCount: gateCount,
		racer:     racer,
		builder:   b,
		structure: s,
	}, nil
}

// Model returns the gate model being synthesized.
func (s *Synthesizer) Model() gates.Model { return s.model }

// Width returns the wire count.
func (s *Synthesizer) Width() int { return s.target.Width() }

// GateCount returns the exact gate count of this synthesis point.
func (s *Synthesizer) GateCount() int { return s.gateCount }

// FormulaSize reports current variable and clause counts, for logs.
func (s *Synthesizer) FormulaSize() (vars, clauses int) {
	return s.builder.NumVars(), s.builder.NumClauses()
}

// Solve races the backends on the current formula.
//
// # Outputs
//   - (circuit, true, nil) on a satisfying assignment.
//   - (zero, false, nil) when the formula is unsatisfiable; this is the
//     normal exhaustion signal, not a failure.
//   - (zero, false, err) when every backend failed or decoding broke.
func (s *Synthesizer) Solve(ctx context.Context) (gates.Circuit, bool, error) {
	res, err := s.racer.Solve(ctx, s.builder.Problem())
	if err != nil {
		return gates.Circuit{}, false, err
	}
	if res.Status == sat.StatusUnsat {
		return gates.Circuit{}, false, nil
	}
	c, err := s.decode(res)
	if err != nil {
		return gates.Circuit{}, false, err
	}
	return c, true, nil
}

// Exclude appends a blocking clause forbidding exactly the circuit's
// structural assignment.
func (s *Synthesizer) Exclude(c gates.Circuit) error {
	lits, err := s.exclusionLits(c)
	if err != nil {
		return err
	}
	return s.builder.ExcludeAssignment(lits)
}

// ExcludeFamily blocks every circuit in the set. The driver passes a
// full equivalence family here so no member can be re-derived.
func (s *Synthesizer) ExcludeFamily(circuits []gates.Circuit) error {
	for _, c := range circuits {
		if err := s.Exclude(c); err != nil {
			return err
		}
	}
	return nil
}

// decode reads the structural one-hot assignment out of a model.
func (s *Synthesizer) decode(res sat.Result) (gates.Circuit, error) {
	width := s.target.Width()
	gs := make([]gates.Gate, 0, s.gateCount)
	for g := 0; g < s.gateCount; g++ {
		switch s.model.ID() {
		case gates.ModelECA57:
			t, c1, c2 := -1, -1, -1
			for w := 0; w < width; w++ {
				if res.Value(s.structure.t[g][w]) {
					t = w
				}
				if res.Value(s.structure.c1[g][w]) {
					c1 = w
				}
				if res.Value(s.structure.c2[g][w]) {
					c2 = w
				}
			}
			if t < 0 || c1 < 0 || c2 < 0 {
				return gates.Circuit{}, fmt.Errorf("synth: decode slot %d: incomplete one-hot assignment", g)
			}
			gate, err := gates.NewECA57Gate(t, c1, c2)
			if err != nil {
				return gates.Circuit{}, fmt.Errorf("synth: decode slot %d: %w", g, err)
			}
			gs = append(gs, gate)
		case gates.ModelMCT:
			t := -1
			var mask uint64
			for w := 0; w < width; w++ {
				if res.Value(s.structure.t[g][w]) {
					t = w
				}
				if res.Value(s.structure.ctrl[g][w]) {
					mask |= 1 << uint(w)
				}
			}
			if t < 0 {
				return gates.Circuit{}, fmt.Errorf("synth: decode slot %d: no target selected", g)
			}
			gate, err := gates.NewMCTGate(t, mask)
			if err != nil {
				return gates.Circuit{}, fmt.Errorf("synth: decode slot %d: %w", g, err)
			}
			gs = append(gs, gate)
		}
	}
	return gates.NewCircuit(s.model.ID(), width, gs)
}

// exclusionLits flattens a circuit into the signed structural literal
// vector whose negation blocks it.
func (s *Synthesizer) exclusionLits(c gates.Circuit) ([]int, error) {
	if c.ModelID != s.model.ID() {
		return nil, fmt.Errorf("synth: exclude: %w: circuit is %v", gates.ErrModelMismatch, c.ModelID)
	}
	if c.Width != s.target.Width() || c.GateCount() != s.gateCount {
		return nil, encodingErrf(s.model.Name(), s.target.Width(), s.gateCount,
			"exclude: circuit dims %dx%d do not match", c.Width, c.GateCount())
	}
	width := s.target.Width()
	var lits []int
	for g, gate := range c.Gates {
		switch s.model.ID() {
		case gates.ModelECA57:
			eg, ok := gate.(gates.ECA57Gate)
			if !ok {
				return nil, fmt.Errorf("synth: exclude slot %d: %w", g, gates.ErrModelMismatch)
			}
			for w := 0; w < width; w++ {
				lits = append(lits,
					signed(s.structure.t[g][w], w == eg.T),
					signed(s.structure.c1[g][w], w == eg.C1),
					signed(s.structure.c2[g][w], w == eg.C2))
			}
		case gates.ModelMCT:
			mg, ok := gate.(gates.MCTGate)
			if !ok {
				return nil, fmt.Errorf("synth: exclude slot %d: %w", g, gates.ErrModelMismatch)
			}
			for w := 0; w < width; w++ {
				lits = append(lits,
					signed(s.structure.t[g][w], w == mg.T),
					signed(s.structure.ctrl[g][w], mg.Controls>>uint(w)&1 == 1))
			}
		}
	}
	return lits, nil
}
