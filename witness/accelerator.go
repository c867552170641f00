// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package witness

import (
	"sort"
	"sync"
)

// Accelerator is an in-memory inverted index from k-gram tokens to
// witness ids, used to prefilter candidate witnesses before exact
// verification against the store.
//
// # Description
//
// Each witness contributes one posting per distinct token. A query
// unions the postings of its tokens, so any witness sharing at least
// one window with the query is returned. The result is a superset of
// true matches; callers verify candidates against the stored gate
// bytes.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reads proceed in parallel;
// Add and Remove take an exclusive lock.
type Accelerator struct {
	mu       sync.RWMutex
	postings map[uint64]map[uint64]struct{}
	byID     map[uint64][]uint64
}

// NewAccelerator creates an empty accelerator.
func NewAccelerator() *Accelerator {
	return &Accelerator{
		postings: make(map[uint64]map[uint64]struct{}),
		byID:     make(map[uint64][]uint64),
	}
}

// Add indexes a witness under its tokens, replacing any previous
// postings for the same id.
//
// # Inputs
//
//   - id: witness id, unique within the store
//   - tokens: prefilter tokens from Tokens; duplicates are ignored
func (a *Accelerator) Add(id uint64, tokens []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byID[id]; ok {
		a.removeLocked(id)
	}

	kept := make([]uint64, 0, len(tokens))
	for _, tok := range tokens {
		set, ok := a.postings[tok]
		if !ok {
			set = make(map[uint64]struct{})
			a.postings[tok] = set
		}
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		kept = append(kept, tok)
	}
	a.byID[id] = kept
}

// Remove drops a witness and all of its postings. Removing an unknown
// id is a no-op.
func (a *Accelerator) Remove(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeLocked(id)
}

func (a *Accelerator) removeLocked(id uint64) {
	for _, tok := range a.byID[id] {
		set := a.postings[tok]
		delete(set, id)
		if len(set) == 0 {
			delete(a.postings, tok)
		}
	}
	delete(a.byID, id)
}

// Query returns the ids of all witnesses sharing at least one token
// with the query, sorted ascending. An empty token list returns nil.
//
// # Outputs
//
//   - ids: candidate witness ids; a superset of exact matches
func (a *Accelerator) Query(tokens []uint64) []uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[uint64]struct{})
	for _, tok := range tokens {
		for id := range a.postings[tok] {
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Size returns the number of indexed witnesses.
func (a *Accelerator) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byID)
}

// AcceleratorStats summarizes index occupancy.
type AcceleratorStats struct {
	Witnesses   int `json:"witnesses"`
	Tokens      int `json:"tokens"`
	Postings    int `json:"postings"`
	MaxPostings int `json:"max_postings"`
}

// Stats returns occupancy counters for monitoring.
func (a *Accelerator) Stats() AcceleratorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := AcceleratorStats{
		Witnesses: len(a.byID),
		Tokens:    len(a.postings),
	}
	for _, set := range a.postings {
		st.Postings += len(set)
		if len(set) > st.MaxPostings {
			st.MaxPostings = len(set)
		}
	}
	return st
}
