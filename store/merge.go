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
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// MergeStats reports what a merge inserted and skipped.
type MergeStats struct {
	Templates          uint64
	TemplateDuplicates uint64
	Witnesses          uint64
	WitnessDuplicates  uint64
}

// Merge re-inserts every template and witness from src into this store.
//
// # Description
//
// Both stores must share the model, schema version, and
// canonicalization version; a mismatch fails before anything is
// written. Templates stream in ascending id order and are re-inserted
// through the normal canonical path, so ids are renumbered in the
// destination. Since expansion variants always carry a larger id than
// their seed, origin lineage and witness sources can be remapped on
// the fly; a dangling reference degrades to zero rather than pointing
// at the wrong record. The merge is resumable: every template lands in
// its own transaction, and re-running a partial merge only produces
// duplicates.
func (s *Store) Merge(ctx context.Context, src *Store) (MergeStats, error) {
	var ms MergeStats
	if err := s.guardWrite(); err != nil {
		return ms, err
	}
	if src == nil {
		return ms, fmt.Errorf("merge source is nil")
	}

	srcStats, err := src.Stats(ctx)
	if err != nil {
		return ms, fmt.Errorf("read source metadata: %w", err)
	}
	dstStats, err := s.Stats(ctx)
	if err != nil {
		return ms, fmt.Errorf("read destination metadata: %w", err)
	}
	if srcStats.SchemaVersion != dstStats.SchemaVersion ||
		srcStats.CanonicalizationVersion != dstStats.CanonicalizationVersion {
		return ms, fmt.Errorf("%w: source schema %d / canonicalization %d, destination %d / %d",
			ErrVersionMismatch,
			srcStats.SchemaVersion, srcStats.CanonicalizationVersion,
			dstStats.SchemaVersion, dstStats.CanonicalizationVersion)
	}
	if srcStats.Model != dstStats.Model {
		return ms, fmt.Errorf("%w: merging %q store into %q store",
			ErrModelMismatch, srcStats.Model, dstStats.Model)
	}

	idMap := make(map[uint64]uint64, srcStats.Templates)
	remap := func(srcID uint64, kind string) uint64 {
		if srcID == 0 {
			return 0
		}
		if dstID, ok := idMap[srcID]; ok {
			return dstID
		}
		s.logger.Warn("merge dropped dangling reference",
			slog.String("kind", kind),
			slog.Uint64("src_id", srcID))
		return 0
	}

	err = src.scanAllTemplates(ctx, func(rec TemplateRecord) error {
		c, err := rec.Circuit()
		if err != nil {
			return err
		}
		res, err := s.InsertTemplate(ctx, TemplateInsert{
			Circuit:          c,
			Origin:           rec.Origin,
			OriginTemplateID: remap(rec.OriginTemplateID, "origin_template"),
			UnrollOps:        rec.UnrollOps,
			FamilyHash:       rec.FamilyHash,
		})
		if err != nil {
			return fmt.Errorf("merge template %d: %w", rec.TemplateID, err)
		}
		idMap[rec.TemplateID] = res.TemplateID
		if res.Inserted {
			ms.Templates++
		} else {
			ms.TemplateDuplicates++
		}
		return nil
	})
	if err != nil {
		return ms, err
	}

	err = src.scanAllWitnesses(ctx, func(rec WitnessRecord) error {
		c, err := rec.Circuit()
		if err != nil {
			return err
		}
		res, err := s.InsertWitness(ctx, WitnessInsert{
			Circuit:          c,
			SourceTemplateID: remap(rec.SourceTemplateID, "witness_source"),
		})
		if err != nil {
			return fmt.Errorf("merge witness %d: %w", rec.WitnessID, err)
		}
		if res.Inserted {
			ms.Witnesses++
		} else {
			ms.WitnessDuplicates++
		}
		return nil
	})
	if err != nil {
		return ms, err
	}

	s.logger.Info("store merge complete",
		slog.String("model", dstStats.Model),
		slog.Uint64("templates", ms.Templates),
		slog.Uint64("template_duplicates", ms.TemplateDuplicates),
		slog.Uint64("witnesses", ms.Witnesses),
		slog.Uint64("witness_duplicates", ms.WitnessDuplicates))
	return ms, nil
}

// scanAllTemplates streams every template in the store in dims-index
// order: ascending width, gate count, then id.
func (s *Store) scanAllTemplates(ctx context.Context, fn func(TemplateRecord) error) error {
	if err := s.guardRead(); err != nil {
		return err
	}
	return s.withReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte{prefixDims, uint8(s.model.ID())}
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

			item := it.Item()
			dims, err := parseDimsKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			hashBytes, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(hashBytes) != 32 {
				return fmt.Errorf("%w: dims entry holds %d hash bytes", ErrCorruptRecord, len(hashBytes))
			}
			var hash [32]byte
			copy(hash[:], hashBytes)

			rec, err := getTemplateByHash(txn, dims.model, dims.width, dims.gateCount, hash)
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanAllWitnesses streams every witness in the store across widths.
func (s *Store) scanAllWitnesses(ctx context.Context, fn func(WitnessRecord) error) error {
	if err := s.guardRead(); err != nil {
		return err
	}
	return s.withReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte{prefixWitnesses, uint8(s.model.ID())}
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
}
