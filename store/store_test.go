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
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/revtempl/canon"
	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/witness"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemStore(t *testing.T, model gates.ModelID) *Store {
	t.Helper()
	cfg := InMemoryConfig(model)
	cfg.Logger = testLogger()
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

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

// Three width-3 pair circuits in distinct canonical families: equal
// gates, distinct gates sharing a target, and distinct targets. Wire
// relabeling, mirroring, and rotation all preserve the target multiset
// and gate equality pattern, so no operation maps one onto another.
func threeFamilies(t *testing.T) []gates.Circuit {
	t.Helper()
	return []gates.Circuit{
		eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{0, 1, 2}),
		eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{0, 2, 1}),
		eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{1, 0, 2}),
	}
}

// TestInsertTemplateAssignsSequentialIDs checks that new templates get
// 1-based sequential ids and the counter tracks them.
func TestInsertTemplateAssignsSequentialIDs(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	for i, c := range threeFamilies(t) {
		res, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
		require.NoError(t, err)
		assert.True(t, res.Inserted)
		assert.Equal(t, uint64(i+1), res.TemplateID)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Templates)
	assert.Equal(t, SchemaVersion, st.SchemaVersion)
	assert.Equal(t, uint32(canon.Version), st.CanonicalizationVersion)
	assert.Equal(t, "eca57", st.Model)
}

// TestInsertTemplateIdempotent checks that re-inserting any member of
// an already stored family is a no-op returning the stored identity.
func TestInsertTemplateIdempotent(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{0, 2, 1})
	first, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
	require.NoError(t, err)
	require.True(t, first.Inserted)

	variants := []gates.Circuit{
		c,
		c.Relabel([]int{2, 0, 1}),
		c.Mirror(),
	}
	for _, v := range variants {
		res, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: v, Origin: OriginUnroll})
		require.NoError(t, err)
		assert.False(t, res.Inserted)
		assert.Equal(t, first.TemplateID, res.TemplateID)
		assert.Equal(t, first.CanonicalHash, res.CanonicalHash)
		assert.Equal(t, first.FamilyHash, res.FamilyHash)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Templates)
}

// TestInsertTemplateValidation checks model and origin rejection.
func TestInsertTemplateValidation(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	g, err := gates.NewMCTGate(0, 0b10)
	require.NoError(t, err)
	mct, err := gates.NewCircuit(gates.ModelMCT, 2, []gates.Gate{g})
	require.NoError(t, err)

	_, err = s.InsertTemplate(ctx, TemplateInsert{Circuit: mct, Origin: OriginSAT})
	assert.ErrorIs(t, err, ErrModelMismatch)

	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{0, 1, 2})
	_, err = s.InsertTemplate(ctx, TemplateInsert{Circuit: c})
	assert.Error(t, err)
}

// TestFamilyMembership checks family seeding, appending, and that
// duplicate inserts leave the member list alone.
func TestFamilyMembership(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	cs := threeFamilies(t)
	seed, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: cs[0], Origin: OriginSAT})
	require.NoError(t, err)
	assert.Equal(t, seed.CanonicalHash, seed.FamilyHash)

	variant, err := s.InsertTemplate(ctx, TemplateInsert{
		Circuit:          cs[1],
		Origin:           OriginUnroll,
		OriginTemplateID: seed.TemplateID,
		UnrollOps:        2,
		FamilyHash:       seed.FamilyHash,
	})
	require.NoError(t, err)
	assert.Equal(t, seed.FamilyHash, variant.FamilyHash)

	members, err := s.Family(ctx, seed.FamilyHash)
	require.NoError(t, err)
	assert.Equal(t, []uint64{seed.TemplateID, variant.TemplateID}, members)

	// A duplicate insert must not grow the family.
	_, err = s.InsertTemplate(ctx, TemplateInsert{
		Circuit:    cs[1].Relabel([]int{1, 2, 0}),
		Origin:     OriginUnroll,
		FamilyHash: seed.FamilyHash,
	})
	require.NoError(t, err)
	members, err = s.Family(ctx, seed.FamilyHash)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	unknown, err := s.Family(ctx, patternHash(0x80))
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

// TestGetTemplateAndLookupByHash checks both read paths return the
// stored record and miss with ErrNotFound.
func TestGetTemplateAndLookupByHash(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{1, 0, 2})
	res, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
	require.NoError(t, err)

	rec, err := s.GetTemplate(ctx, 3, 2, res.TemplateID)
	require.NoError(t, err)
	assert.Equal(t, res.TemplateID, rec.TemplateID)
	assert.Equal(t, res.CanonicalHash, rec.CanonicalHash)
	assert.Equal(t, OriginSAT, rec.Origin)
	assert.Equal(t, uint8(3), rec.Width)
	assert.Equal(t, uint16(2), rec.GateCount)

	// The stored gate bytes are the canonical form, not the input.
	can, err := canon.Canonicalize(c)
	require.NoError(t, err)
	assert.Equal(t, can.Gates, rec.Gates)

	byHash, err := s.LookupByHash(ctx, 3, 2, res.CanonicalHash)
	require.NoError(t, err)
	assert.Equal(t, rec, byHash)

	_, err = s.GetTemplate(ctx, 3, 2, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LookupByHash(ctx, 3, 2, patternHash(0x80))
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestScanDims checks ascending id order, early stop, and context
// cancellation.
func TestScanDims(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	for _, c := range threeFamilies(t) {
		_, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
		require.NoError(t, err)
	}

	var ids []uint64
	err := s.ScanDims(ctx, 3, 2, func(rec TemplateRecord) error {
		ids = append(ids, rec.TemplateID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	var seen int
	err = s.ScanDims(ctx, 3, 2, func(TemplateRecord) error {
		seen++
		return ErrStopScan
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	err = s.ScanDims(ctx, 4, 2, func(TemplateRecord) error {
		t.Fatal("callback on empty cell")
		return nil
	})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = s.ScanDims(cancelled, 3, 2, func(TemplateRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// TestWitnessRoundTrip checks witness insertion, relabeling-invariant
// deduplication, and the prefilter candidate path.
func TestWitnessRoundTrip(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	tmpl := eca57Circuit(t, 4,
		[3]int{0, 1, 2}, [3]int{1, 2, 3}, [3]int{2, 3, 0}, [3]int{3, 0, 1}, [3]int{0, 2, 3})
	wit := witness.Extract(tmpl)
	require.Equal(t, 3, wit.GateCount())

	res, err := s.InsertWitness(ctx, WitnessInsert{Circuit: wit, SourceTemplateID: 1})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, uint64(1), res.WitnessID)

	// A relabeled copy hashes and tokenizes identically.
	relabeled := wit.Relabel([]int{1, 2, 3, 0})
	dup, err := s.InsertWitness(ctx, WitnessInsert{Circuit: relabeled, SourceTemplateID: 7})
	require.NoError(t, err)
	assert.False(t, dup.Inserted)
	assert.Equal(t, res.WitnessID, dup.WitnessID)
	assert.Equal(t, res.WitnessHash, dup.WitnessHash)

	tokens, err := witness.Tokens(relabeled)
	require.NoError(t, err)
	cands, err := s.WitnessCandidates(ctx, 4, tokens)
	require.NoError(t, err)
	assert.Contains(t, cands, res.WitnessID)

	// Windows of two equal gates can never relabel onto windows of
	// distinct gates, so this probe misses every posting.
	probe := eca57Circuit(t, 4, [3]int{0, 1, 2}, [3]int{0, 1, 2})
	missTokens, err := witness.Tokens(probe)
	require.NoError(t, err)
	miss, err := s.WitnessCandidates(ctx, 4, missTokens)
	require.NoError(t, err)
	assert.Empty(t, miss)

	rec, err := s.GetWitness(ctx, 4, wit.GateCount(), res.WitnessHash)
	require.NoError(t, err)
	assert.Equal(t, res.WitnessID, rec.WitnessID)
	assert.Equal(t, uint64(1), rec.SourceTemplateID)

	var scanned []uint64
	err = s.ScanWitnesses(ctx, 4, func(rec WitnessRecord) error {
		scanned = append(scanned, rec.WitnessID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, scanned)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Witnesses)
}

// TestReopenPersistence checks that records, counters, and hashes
// survive a close and reopen.
func TestReopenPersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir, gates.ModelECA57)
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	cfg.Logger = testLogger()

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NotNil(t, s.Tampered())
	ctx := context.Background()

	cs := threeFamilies(t)
	first, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: cs[0], Origin: OriginSAT})
	require.NoError(t, err)
	_, err = s.InsertTemplate(ctx, TemplateInsert{Circuit: cs[1], Origin: OriginSAT})
	require.NoError(t, err)
	_, err = s.InsertWitness(ctx, WitnessInsert{Circuit: cs[0], SourceTemplateID: first.TemplateID})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetTemplate(ctx, 3, 2, first.TemplateID)
	require.NoError(t, err)
	assert.Equal(t, first.CanonicalHash, rec.CanonicalHash)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Templates)
	assert.Equal(t, uint64(1), st.Witnesses)
	assert.Equal(t, uint64(2), st.Families)

	// The id counter continues from the persisted value.
	res, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: cs[2], Origin: OriginSAT})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, uint64(3), res.TemplateID)
}

// TestReadOnlyStore checks that a read-only open serves reads and
// rejects every mutation.
func TestReadOnlyStore(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir, gates.ModelECA57)
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	cfg.Logger = testLogger()

	s, err := Open(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{0, 1, 2})
	res, err := s.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	roCfg := cfg
	roCfg.ReadOnly = true
	ro, err := Open(roCfg)
	require.NoError(t, err)
	defer ro.Close()

	rec, err := ro.GetTemplate(ctx, 3, 2, res.TemplateID)
	require.NoError(t, err)
	assert.Equal(t, res.CanonicalHash, rec.CanonicalHash)
	assert.Nil(t, ro.Tampered())

	_, err = ro.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = ro.InsertWitness(ctx, WitnessInsert{Circuit: c})
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = ro.Merge(ctx, nil)
	assert.ErrorIs(t, err, ErrReadOnly)
}

// TestWriterLockExclusion checks that a second writer cannot open the
// same directory while the first holds the lock.
func TestWriterLockExclusion(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir, gates.ModelECA57)
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	cfg.SessionID = "session-a"
	cfg.Logger = testLogger()

	s1, err := Open(cfg)
	require.NoError(t, err)

	cfg2 := cfg
	cfg2.SessionID = "session-b"
	_, err = Open(cfg2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	var lerr *LockError
	require.ErrorAs(t, err, &lerr)
	require.NotNil(t, lerr.Holder)
	assert.Equal(t, os.Getpid(), lerr.Holder.PID)
	assert.Equal(t, "session-a", lerr.Holder.SessionID)

	require.NoError(t, s1.Close())

	s2, err := Open(cfg2)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

// TestOpenGates checks the model and version verification on reopen.
func TestOpenGates(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir, gates.ModelECA57)
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	cfg.Logger = testLogger()

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	wrongModel := cfg
	wrongModel.Model = gates.ModelMCT
	_, err = Open(wrongModel)
	assert.ErrorIs(t, err, ErrModelMismatch)

	// Rewrite the canonicalization version as a future build would.
	db, err := openBadger(cfg)
	require.NoError(t, err)
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(metaCanonVersion), u32Bytes(canon.Version+1))
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(cfg)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

// TestMergeRenumbersAndRemaps checks duplicate elision, family
// preservation, and lineage remapping across a merge.
func TestMergeRenumbersAndRemaps(t *testing.T) {
	src := newMemStore(t, gates.ModelECA57)
	dst := newMemStore(t, gates.ModelECA57)
	ctx := context.Background()

	cs := threeFamilies(t)
	seed, err := src.InsertTemplate(ctx, TemplateInsert{Circuit: cs[0], Origin: OriginSAT})
	require.NoError(t, err)
	_, err = src.InsertTemplate(ctx, TemplateInsert{
		Circuit:          cs[1],
		Origin:           OriginUnroll,
		OriginTemplateID: seed.TemplateID,
		UnrollOps:        4,
		FamilyHash:       seed.FamilyHash,
	})
	require.NoError(t, err)
	_, err = src.InsertWitness(ctx, WitnessInsert{Circuit: cs[0], SourceTemplateID: seed.TemplateID})
	require.NoError(t, err)

	// The destination already holds the seed family.
	dstSeed, err := dst.InsertTemplate(ctx, TemplateInsert{Circuit: cs[0], Origin: OriginSAT})
	require.NoError(t, err)

	ms, err := dst.Merge(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{
		Templates:          1,
		TemplateDuplicates: 1,
		Witnesses:          1,
	}, ms)

	members, err := dst.Family(ctx, seed.FamilyHash)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, members)

	variant, err := dst.GetTemplate(ctx, 3, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, OriginUnroll, variant.Origin)
	assert.Equal(t, dstSeed.TemplateID, variant.OriginTemplateID)
	assert.Equal(t, uint32(4), variant.UnrollOps)

	var sources []uint64
	err = dst.ScanWitnesses(ctx, 3, func(rec WitnessRecord) error {
		sources = append(sources, rec.SourceTemplateID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{dstSeed.TemplateID}, sources)

	// Re-running the same merge only finds duplicates.
	again, err := dst.Merge(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{
		TemplateDuplicates: 2,
		WitnessDuplicates:  1,
	}, again)
}

// TestMergeModelGate checks that stores for different models refuse to
// merge.
func TestMergeModelGate(t *testing.T) {
	src := newMemStore(t, gates.ModelMCT)
	dst := newMemStore(t, gates.ModelECA57)

	_, err := dst.Merge(context.Background(), src)
	assert.ErrorIs(t, err, ErrModelMismatch)
}

// TestCloseSemantics checks idempotent close and post-close rejection.
func TestCloseSemantics(t *testing.T) {
	cfg := InMemoryConfig(gates.ModelECA57)
	cfg.Logger = testLogger()
	s, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	c := eca57Circuit(t, 3, [3]int{0, 1, 2}, [3]int{0, 1, 2})
	_, err = s.InsertTemplate(ctx, TemplateInsert{Circuit: c, Origin: OriginSAT})
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Stats(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.GetTemplate(ctx, 3, 2, 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
}
