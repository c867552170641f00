// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package cnf builds conjunctive-normal-form formulas for the synthesis
// encoder.
//
// Variables are positive integers allocated from a Builder; a literal is
// a signed variable, negative meaning negated. The Builder offers the
// constraint shapes the encoder needs: equivalences, parity, cardinality
// bounds (sequential-counter encoding), and assignment exclusion for the
// solve/exclude enumeration loop.
package cnf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Sentinel errors for formula construction.
var (
	// ErrZeroLiteral indicates literal 0, which DIMACS reserves as the
	// clause terminator.
	ErrZeroLiteral = errors.New("literal 0 is not a valid literal")

	// ErrUnknownVariable indicates a literal referencing a variable that
	// was never allocated.
	ErrUnknownVariable = errors.New("literal references unallocated variable")

	// ErrEmptyClause indicates an explicit empty clause, which would make
	// the formula trivially unsatisfiable by construction.
	ErrEmptyClause = errors.New("empty clause")

	// ErrBadBound indicates a cardinality bound outside [0, len(lits)].
	ErrBadBound = errors.New("cardinality bound out of range")
)

// maxDirectXorLen is the widest parity constraint encoded directly;
// longer ones are split with auxiliary variables.
const maxDirectXorLen = 3

// Builder incrementally constructs a CNF formula.
//
// # Description
//
// The builder only ever grows: variables and clauses are appended, never
// removed. This matches the enumeration loop's contract, where blocking
// clauses accumulate on one formula across solve calls.
//
// # Thread Safety
//
// Not safe for concurrent use. The synthesizer owns its builder and
// serializes access.
type Builder struct {
	vars    int
	clauses [][]int
}

// NewBuilder returns an empty formula builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Fresh allocates a new variable and returns its positive literal.
func (b *Builder) Fresh() int {
	b.vars++
	return b.vars
}

// FreshN allocates n consecutive variables.
func (b *Builder) FreshN(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = b.Fresh()
	}
	return out
}

// NumVars returns the number of allocated variables.
func (b *Builder) NumVars() int { return b.vars }

// NumClauses returns the number of clauses added so far.
func (b *Builder) NumClauses() int { return len(b.clauses) }

// AddClause appends one clause after validating every literal.
func (b *Builder) AddClause(lits ...int) error {
	if len(lits) == 0 {
		return ErrEmptyClause
	}
	for _, l := range lits {
		if err := b.checkLit(l); err != nil {
			return err
		}
	}
	cl := make([]int, len(lits))
	copy(cl, lits)
	b.clauses = append(b.clauses, cl)
	return nil
}

// SetLit forces a literal true with a unit clause.
func (b *Builder) SetLit(lit int) error {
	return b.AddClause(lit)
}

// SetLits forces every literal true.
func (b *Builder) SetLits(lits []int) error {
	for _, l := range lits {
		if err := b.SetLit(l); err != nil {
			return err
		}
	}
	return nil
}

// Equals constrains a <-> b.
func (b *Builder) Equals(a, c int) error {
	if err := b.AddClause(-a, c); err != nil {
		return err
	}
	return b.AddClause(a, -c)
}

// EqualsAnd constrains v <-> AND(lits).
func (b *Builder) EqualsAnd(v int, lits []int) error {
	head := make([]int, 0, len(lits)+1)
	head = append(head, v)
	for _, l := range lits {
		head = append(head, -l)
	}
	if err := b.AddClause(head...); err != nil {
		return err
	}
	for _, l := range lits {
		if err := b.AddClause(-v, l); err != nil {
			return err
		}
	}
	return nil
}

// EqualsOr constrains v <-> OR(lits).
func (b *Builder) EqualsOr(v int, lits []int) error {
	head := make([]int, 0, len(lits)+1)
	head = append(head, -v)
	head = append(head, lits...)
	if err := b.AddClause(head...); err != nil {
		return err
	}
	for _, l := range lits {
		if err := b.AddClause(v, -l); err != nil {
			return err
		}
	}
	return nil
}

// NAND forbids a and b from both being true.
func (b *Builder) NAND(a, c int) error {
	return b.AddClause(-a, -c)
}

// XorEquals constrains the exclusive-or of the literals to equal value.
// Constraints wider than three literals are split into a chain with
// auxiliary variables to keep clauses short.
func (b *Builder) XorEquals(lits []int, value bool) error {
	for _, l := range lits {
		if err := b.checkLit(l); err != nil {
			return err
		}
	}
	if len(lits) == 0 {
		if value {
			return fmt.Errorf("%w: empty xor cannot be true", ErrEmptyClause)
		}
		return nil
	}
	if len(lits) <= maxDirectXorLen {
		b.xorDirect(lits, value)
		return nil
	}
	// aux <- xor of the first two literals, then recurse on the rest.
	aux := b.Fresh()
	b.xorDirect([]int{aux, lits[0], lits[1]}, false)
	rest := make([]int, 0, len(lits)-1)
	rest = append(rest, aux)
	rest = append(rest, lits[2:]...)
	return b.XorEquals(rest, value)
}

// xorDirect emits the full clause set for a short parity constraint: one
// clause per assignment whose parity disagrees with value.
func (b *Builder) xorDirect(lits []int, value bool) {
	n := len(lits)
	for signs := 0; signs < 1<<uint(n); signs++ {
		neg := 0
		for i := 0; i < n; i++ {
			if signs>>uint(i)&1 == 1 {
				neg++
			}
		}
		// The clause with this sign pattern forbids the assignment
		// setting exactly the negated literals true, which has parity
		// neg mod 2.
		if (neg%2 == 1) == value {
			continue
		}
		cl := make([]int, n)
		for i, l := range lits {
			if signs>>uint(i)&1 == 1 {
				cl[i] = -l
			} else {
				cl[i] = l
			}
		}
		b.clauses = append(b.clauses, cl)
	}
}

// AtMost constrains at most k of the literals to be true using the
// sequential-counter encoding.
func (b *Builder) AtMost(lits []int, k int) error {
	for _, l := range lits {
		if err := b.checkLit(l); err != nil {
			return err
		}
	}
	n := len(lits)
	if k < 0 {
		return fmt.Errorf("%w: at most %d of %d", ErrBadBound, k, n)
	}
	if k >= n {
		return nil
	}
	if k == 0 {
		for _, l := range lits {
			if err := b.AddClause(-l); err != nil {
				return err
			}
		}
		return nil
	}
	// Sequential counter: s[i][j] means at least j+1 of the first i+1
	// literals are true.
	s := make([][]int, n-1)
	for i := range s {
		s[i] = b.FreshN(k)
	}
	if err := b.AddClause(-lits[0], s[0][0]); err != nil {
		return err
	}
	for j := 1; j < k; j++ {
		if err := b.AddClause(-s[0][j]); err != nil {
			return err
		}
	}
	for i := 1; i < n-1; i++ {
		if err := b.AddClause(-lits[i], s[i][0]); err != nil {
			return err
		}
		if err := b.AddClause(-s[i-1][0], s[i][0]); err != nil {
			return err
		}
		for j := 1; j < k; j++ {
			if err := b.AddClause(-lits[i], -s[i-1][j-1], s[i][j]); err != nil {
				return err
			}
			if err := b.AddClause(-s[i-1][j], s[i][j]); err != nil {
				return err
			}
		}
		if err := b.AddClause(-lits[i], -s[i-1][k-1]); err != nil {
			return err
		}
	}
	return b.AddClause(-lits[n-1], -s[n-2][k-1])
}

// AtLeast constrains at least k of the literals to be true.
func (b *Builder) AtLeast(lits []int, k int) error {
	n := len(lits)
	if k <= 0 {
		for _, l := range lits {
			if err := b.checkLit(l); err != nil {
				return err
			}
		}
		return nil
	}
	if k > n {
		return fmt.Errorf("%w: at least %d of %d", ErrBadBound, k, n)
	}
	if k == 1 {
		return b.AddClause(lits...)
	}
	// At least k of X is at most n-k of not-X.
	neg := make([]int, n)
	for i, l := range lits {
		neg[i] = -l
	}
	return b.AtMost(neg, n-k)
}

// Exactly constrains exactly k of the literals to be true.
func (b *Builder) Exactly(lits []int, k int) error {
	if err := b.AtLeast(lits, k); err != nil {
		return err
	}
	return b.AtMost(lits, k)
}

// ExcludeAssignment appends a clause forbidding the given total
// assignment: at least one literal must take the opposite value.
func (b *Builder) ExcludeAssignment(lits []int) error {
	neg := make([]int, len(lits))
	for i, l := range lits {
		neg[i] = -l
	}
	return b.AddClause(neg...)
}

// Problem snapshots the formula for solving. The clause list is deep
// copied so racing backends can consume it independently.
func (b *Builder) Problem() Problem {
	cls := make([][]int, len(b.clauses))
	for i, cl := range b.clauses {
		c := make([]int, len(cl))
		copy(c, cl)
		cls[i] = c
	}
	return Problem{Vars: b.vars, Clauses: cls}
}

// checkLit validates one literal against the allocated variable range.
func (b *Builder) checkLit(l int) error {
	if l == 0 {
		return ErrZeroLiteral
	}
	v := l
	if v < 0 {
		v = -v
	}
	if v > b.vars {
		return fmt.Errorf("%w: %d (have %d variables)", ErrUnknownVariable, l, b.vars)
	}
	return nil
}

// Problem is an immutable CNF formula ready for a solver.
type Problem struct {
	Vars    int
	Clauses [][]int
}

// Clone returns a deep copy. Backends that index into or take ownership
// of clause slices get their own copy from the racer.
func (p Problem) Clone() Problem {
	cls := make([][]int, len(p.Clauses))
	for i, cl := range p.Clauses {
		c := make([]int, len(cl))
		copy(c, cl)
		cls[i] = c
	}
	return Problem{Vars: p.Vars, Clauses: cls}
}

// WriteDimacs writes the formula in DIMACS CNF format.
func (p Problem) WriteDimacs(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	if _, err := fmt.Fprintf(bw, "p cnf %d %d\n", p.Vars, len(p.Clauses)); err != nil {
		return err
	}
	for _, cl := range p.Clauses {
		for _, l := range cl {
			if _, err := bw.WriteString(strconv.Itoa(l)); err != nil {
				return err
			}
			if err := bw.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("0\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
