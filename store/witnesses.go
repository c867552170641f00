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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tidewater-labs/revtempl/canon"
	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/witness"
)

// WitnessInsert describes one witness prefix to insert.
type WitnessInsert struct {
	// Circuit is the witness prefix, already cut from its template.
	Circuit gates.Circuit

	// SourceTemplateID is the template the prefix was cut from.
	SourceTemplateID uint64
}

// WitnessResult reports the outcome of a witness insert.
type WitnessResult struct {
	WitnessID   uint64
	WitnessHash [32]byte
	Inserted    bool
}

// InsertWitness stores a witness prefix and its prefilter tokens.
//
// # Description
//
// The prefix is canonicalized under wire relabeling only, since a
// prefix of an identity circuit is not itself an identity and mirror
// or rotation would change what it computes. Deduplication is by that
// hash. New witnesses append their id to the prefilter posting of every
// k-gram token in one transaction.
func (s *Store) InsertWitness(ctx context.Context, ins WitnessInsert) (WitnessResult, error) {
	var res WitnessResult
	if err := s.guardWrite(); err != nil {
		return res, err
	}
	if ins.Circuit.ModelID != s.model.ID() {
		return res, fmt.Errorf("%w: inserting %s witness into %s store",
			ErrModelMismatch, ins.Circuit.ModelID, s.model.Name())
	}
	if ins.Circuit.GateCount() > 0xFFFF {
		return res, fmt.Errorf("witness length %d exceeds record limit", ins.Circuit.GateCount())
	}

	can, err := canon.CanonicalizeStructure(ins.Circuit)
	if err != nil {
		return res, err
	}
	tokens, err := witness.Tokens(ins.Circuit)
	if err != nil {
		return res, err
	}
	width := uint8(ins.Circuit.Width)
	length := uint16(ins.Circuit.GateCount())

	start := time.Now()
	defer func() {
		txnDuration.WithLabelValues("insert_witness").Observe(time.Since(start).Seconds())
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.withTxn(ctx, func(txn *badger.Txn) error {
		wKey := witnessKey(uint8(s.model.ID()), width, length, can.Hash)

		item, err := txn.Get(wKey)
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := DecodeWitnessRecord(val)
			if err != nil {
				return err
			}
			res = WitnessResult{WitnessID: rec.WitnessID, WitnessHash: rec.WitnessHash}
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		count, err := readMetaU64(txn, metaWitnessCount)
		if err != nil {
			return err
		}
		id := count + 1

		rec := WitnessRecord{
			WitnessID:        id,
			ModelID:          s.model.ID(),
			Width:            width,
			WitnessLen:       length,
			WitnessHash:      can.Hash,
			SourceTemplateID: ins.SourceTemplateID,
			Gates:            can.Gates,
		}
		if err := txn.Set(wKey, rec.Encode()); err != nil {
			return err
		}

		for _, tok := range tokens {
			pKey := prefilterKey(uint8(s.model.ID()), width, tok)
			var list []byte
			item, err := txn.Get(pKey)
			if err == nil {
				if list, err = item.ValueCopy(nil); err != nil {
					return err
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			next, changed, err := appendIDList(list, id)
			if err != nil {
				return err
			}
			if changed {
				if err := txn.Set(pKey, next); err != nil {
					return err
				}
			}
		}

		if err := txn.Set(metaKey(metaWitnessCount), u64Bytes(id)); err != nil {
			return err
		}
		res = WitnessResult{WitnessID: id, WitnessHash: can.Hash, Inserted: true}
		return nil
	})
	if err != nil {
		return WitnessResult{}, err
	}

	if res.Inserted {
		insertsTotal.WithLabelValues("witness", "inserted").Inc()
		s.logger.Debug("witness inserted",
			slog.Uint64("witness_id", res.WitnessID),
			slog.String("hash", shortHash(res.WitnessHash)),
			slog.Uint64("source_template_id", ins.SourceTemplateID),
			slog.Int("length", int(length)),
			slog.Int("tokens", len(tokens)))
	} else {
		insertsTotal.WithLabelValues("witness", "duplicate").Inc()
	}
	return res, nil
}

// WitnessCandidates unions the prefilter postings of the given tokens
// at one width, returning candidate witness ids sorted ascending. The
// result is a superset of exact matches; callers verify against the
// stored gate bytes.
func (s *Store) WitnessCandidates(ctx context.Context, width int, tokens []uint64) ([]uint64, error) {
	if err := s.guardRead(); err != nil {
		return nil, err
	}
	seen := make(map[uint64]struct{})
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		for _, tok := range tokens {
			item, err := txn.Get(prefilterKey(uint8(s.model.ID()), uint8(width), tok))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			list, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ids, err := decodeIDList(list)
			if err != nil {
				return err
			}
			for _, id := range ids {
				seen[id] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetWitness loads a witness by its relabel-quotient hash.
func (s *Store) GetWitness(ctx context.Context, width, length int, hash [32]byte) (WitnessRecord, error) {
	var rec WitnessRecord
	if err := s.guardRead(); err != nil {
		return rec, err
	}
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(witnessKey(uint8(s.model.ID()), uint8(width), uint16(length), hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: witness %s at width %d length %d",
				ErrNotFound, shortHash(hash), width, length)
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err = DecodeWitnessRecord(val)
		return err
	})
	return rec, err
}

// ScanWitnesses streams every witness at one width in hash order.
// Returning ErrStopScan from fn ends the scan early without error.
func (s *Store) ScanWitnesses(ctx context.Context, width int, fn func(WitnessRecord) error) error {
	if err := s.guardRead(); err != nil {
		return err
	}
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := witnessPrefix(uint8(s.model.ID()), uint8(width))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := DecodeWitnessRecord(val)
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopScan) {
		return nil
	}
	return err
}
