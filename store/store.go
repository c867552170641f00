// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package store persists canonical identity templates and their
// witnesses in a BadgerDB keyspace.
//
// One store holds one gate model. Six logical indexes share the
// keyspace behind single-byte prefixes: metadata, templates by
// canonical hash, family id lists, an ordered (width, gate count, id)
// index, witnesses by hash, and the witness token prefilter.
// Writes go through a single writer guarded by a process-wide flock on
// the store directory; readers run on snapshot transactions. Insertion
// is idempotent: the store canonicalizes every circuit itself and
// deduplicates by canonical hash, so re-inserting any variant of a
// known template is a no-op.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tidewater-labs/revtempl/canon"
	"github.com/tidewater-labs/revtempl/gates"
)

// Config holds configuration for a template store.
type Config struct {
	// Path is the store directory. Required unless InMemory is true.
	Path string

	// Model is the gate model this store holds. Required.
	Model gates.ModelID

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// ReadOnly rejects every write operation. The writer lock is not
	// taken, so read-only opens can inspect archived stores.
	ReadOnly bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// SessionID tags the writer lock info file. A random id is
	// generated when empty.
	SessionID string

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before GC.
	GCDiscardRatio float64

	// Logger receives store and badger events. Badger's own logging is
	// disabled when nil.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a store at path.
func DefaultConfig(path string, model gates.ModelID) Config {
	return Config{
		Path:           path,
		Model:          model,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for testing.
func InMemoryConfig(model gates.ModelID) Config {
	return Config{
		Model:    model,
		InMemory: true,
	}
}

// Store is a single-model template database.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes serialize on an
// internal mutex; reads use independent snapshot transactions.
type Store struct {
	cfg    Config
	model  gates.Model
	db     *badger.DB
	gc     *gcRunner
	lock   *writerLock
	logger *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens or creates a store.
//
// # Description
//
// Creation writes the schema version, canonicalization version, and
// model name into the metadata index; reopening verifies all three and
// fails with ErrVersionMismatch or ErrModelMismatch when the store was
// written by an incompatible build or for a different model. Unless
// read-only or in-memory, the exclusive writer flock is taken first; a
// live holder surfaces as a LockError wrapping ErrLocked.
func Open(cfg Config) (*Store, error) {
	model, err := gates.ModelByID(cfg.Model)
	if err != nil {
		return nil, err
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store path is required for persistent stores")
	}
	if cfg.InMemory && cfg.ReadOnly {
		return nil, errors.New("in-memory stores cannot be read-only")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		cfg:    cfg,
		model:  model,
		logger: logger,
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		if !cfg.ReadOnly {
			lock, err := acquireWriterLock(cfg.Path, cfg.SessionID, logger)
			if err != nil {
				return nil, err
			}
			s.lock = lock
		}
	}

	db, err := openBadger(cfg)
	if err != nil {
		s.releaseLock()
		return nil, err
	}
	s.db = db

	if err := s.initMeta(context.Background()); err != nil {
		db.Close()
		s.releaseLock()
		return nil, err
	}

	if cfg.GCInterval > 0 && !cfg.InMemory && !cfg.ReadOnly {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}

	logger.Info("template store opened",
		slog.String("model", model.Name()),
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("read_only", cfg.ReadOnly))

	return s, nil
}

// initMeta creates the metadata records on first open and verifies them
// on every later open.
func (s *Store) initMeta(ctx context.Context) error {
	var existing bool
	var schema, canonVer uint32
	var modelName string

	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(metaSchemaVersion))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existing = true
		if schema, err = metaU32(item); err != nil {
			return err
		}
		if item, err = txn.Get(metaKey(metaCanonVersion)); err != nil {
			return err
		}
		if canonVer, err = metaU32(item); err != nil {
			return err
		}
		if item, err = txn.Get(metaKey(metaModel)); err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		modelName = string(val)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read store metadata: %w", err)
	}

	if existing {
		if schema != SchemaVersion || canonVer != canon.Version {
			return fmt.Errorf("%w: store has schema %d / canonicalization %d, build expects %d / %d",
				ErrVersionMismatch, schema, canonVer, SchemaVersion, canon.Version)
		}
		if modelName != s.model.Name() {
			return fmt.Errorf("%w: store holds %q, opened as %q",
				ErrModelMismatch, modelName, s.model.Name())
		}
		return nil
	}

	if s.cfg.ReadOnly {
		return fmt.Errorf("%w: store at %s has no metadata", ErrVersionMismatch, s.cfg.Path)
	}

	return s.withTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(metaSchemaVersion), u32Bytes(SchemaVersion)); err != nil {
			return err
		}
		if err := txn.Set(metaKey(metaCanonVersion), u32Bytes(canon.Version)); err != nil {
			return err
		}
		if err := txn.Set(metaKey(metaModel), []byte(s.model.Name())); err != nil {
			return err
		}
		if err := txn.Set(metaKey(metaTemplateCount), u64Bytes(0)); err != nil {
			return err
		}
		return txn.Set(metaKey(metaWitnessCount), u64Bytes(0))
	})
}

// Model returns the gate model this store holds.
func (s *Store) Model() gates.Model { return s.model }

// Tampered reports external modifications of the writer lock info file.
// Returns nil for read-only and in-memory stores.
func (s *Store) Tampered() <-chan string {
	if s.lock == nil {
		return nil
	}
	return s.lock.Tampered()
}

// TemplateInsert describes one circuit to insert.
type TemplateInsert struct {
	// Circuit is any member of the template's equivalence family; the
	// store canonicalizes it before writing.
	Circuit gates.Circuit

	// Origin records how the template was produced.
	Origin Origin

	// OriginTemplateID is the seed template for unroll-derived
	// variants, zero otherwise.
	OriginTemplateID uint64

	// UnrollOps is the expansion-operation bitmask for unroll-derived
	// variants, zero otherwise.
	UnrollOps uint32

	// FamilyHash groups swap-connected templates. Zero means the
	// template seeds its own family under its canonical hash.
	FamilyHash [32]byte
}

// InsertResult reports the outcome of an insert.
type InsertResult struct {
	TemplateID    uint64
	CanonicalHash [32]byte
	FamilyHash    [32]byte
	Inserted      bool
}

var zeroHash [32]byte

// InsertTemplate canonicalizes and stores a template.
//
// # Description
//
// The circuit is canonicalized first; an existing record under the
// canonical hash makes the call a no-op returning the stored identity
// with Inserted false. New templates get the next sequential id and are
// written to the hash, dims, and family indexes in one transaction, so
// an aborted run never leaves a partial template.
func (s *Store) InsertTemplate(ctx context.Context, ins TemplateInsert) (InsertResult, error) {
	var res InsertResult
	if err := s.guardWrite(); err != nil {
		return res, err
	}
	if ins.Circuit.ModelID != s.model.ID() {
		return res, fmt.Errorf("%w: inserting %s circuit into %s store",
			ErrModelMismatch, ins.Circuit.ModelID, s.model.Name())
	}
	if !ins.Origin.valid() {
		return res, fmt.Errorf("invalid template origin %d", uint8(ins.Origin))
	}
	if ins.Circuit.GateCount() > 0xFFFF {
		return res, fmt.Errorf("gate count %d exceeds record limit", ins.Circuit.GateCount())
	}

	can, err := canon.Canonicalize(ins.Circuit)
	if err != nil {
		return res, err
	}
	family := ins.FamilyHash
	if family == zeroHash {
		family = can.Hash
	}
	width := uint8(ins.Circuit.Width)
	gateCount := uint16(ins.Circuit.GateCount())

	start := time.Now()
	defer func() {
		txnDuration.WithLabelValues("insert_template").Observe(time.Since(start).Seconds())
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.withTxn(ctx, func(txn *badger.Txn) error {
		tKey := templateKey(uint8(s.model.ID()), width, gateCount, can.Hash)

		item, err := txn.Get(tKey)
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := DecodeTemplateRecord(val)
			if err != nil {
				return err
			}
			res = InsertResult{
				TemplateID:    rec.TemplateID,
				CanonicalHash: rec.CanonicalHash,
				FamilyHash:    rec.FamilyHash,
				Inserted:      false,
			}
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		count, err := readMetaU64(txn, metaTemplateCount)
		if err != nil {
			return err
		}
		id := count + 1

		rec := TemplateRecord{
			TemplateID:       id,
			ModelID:          s.model.ID(),
			Width:            width,
			GateCount:        gateCount,
			CanonicalHash:    can.Hash,
			FamilyHash:       family,
			Origin:           ins.Origin,
			OriginTemplateID: ins.OriginTemplateID,
			UnrollOps:        ins.UnrollOps,
			Gates:            can.Gates,
		}
		if err := txn.Set(tKey, rec.Encode()); err != nil {
			return err
		}
		if err := txn.Set(dimsKey(uint8(s.model.ID()), width, gateCount, id), can.Hash[:]); err != nil {
			return err
		}
		if err := appendFamilyMember(txn, uint8(s.model.ID()), family, id); err != nil {
			return err
		}
		if err := txn.Set(metaKey(metaTemplateCount), u64Bytes(id)); err != nil {
			return err
		}

		res = InsertResult{
			TemplateID:    id,
			CanonicalHash: can.Hash,
			FamilyHash:    family,
			Inserted:      true,
		}
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}

	if res.Inserted {
		insertsTotal.WithLabelValues("template", "inserted").Inc()
		s.logger.Debug("template inserted",
			slog.Uint64("template_id", res.TemplateID),
			slog.String("hash", shortHash(res.CanonicalHash)),
			slog.String("origin", ins.Origin.String()),
			slog.Int("width", int(width)),
			slog.Int("gate_count", int(gateCount)))
	} else {
		insertsTotal.WithLabelValues("template", "duplicate").Inc()
	}
	return res, nil
}

// appendFamilyMember adds id to the family's ordered member list if it
// is not already present.
func appendFamilyMember(txn *badger.Txn, model uint8, family [32]byte, id uint64) error {
	fKey := familyKey(model, family)
	var list []byte
	item, err := txn.Get(fKey)
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
	if !changed {
		return nil
	}
	return txn.Set(fKey, next)
}

// GetTemplate loads a template by its dimensions and id.
func (s *Store) GetTemplate(ctx context.Context, width, gateCount int, id uint64) (TemplateRecord, error) {
	var rec TemplateRecord
	if err := s.guardRead(); err != nil {
		return rec, err
	}
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(dimsKey(uint8(s.model.ID()), uint8(width), uint16(gateCount), id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: template %d at width %d gate count %d",
				ErrNotFound, id, width, gateCount)
		}
		if err != nil {
			return err
		}
		hashBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(hashBytes) != 32 {
			return fmt.Errorf("%w: dims entry for template %d holds %d hash bytes",
				ErrCorruptRecord, id, len(hashBytes))
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		rec, err = getTemplateByHash(txn, uint8(s.model.ID()), uint8(width), uint16(gateCount), hash)
		return err
	})
	return rec, err
}

// LookupByHash loads a template by its canonical hash.
func (s *Store) LookupByHash(ctx context.Context, width, gateCount int, hash [32]byte) (TemplateRecord, error) {
	var rec TemplateRecord
	if err := s.guardRead(); err != nil {
		return rec, err
	}
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = getTemplateByHash(txn, uint8(s.model.ID()), uint8(width), uint16(gateCount), hash)
		return err
	})
	return rec, err
}

// getTemplateByHash reads one template record inside a transaction.
func getTemplateByHash(txn *badger.Txn, model, width uint8, gateCount uint16, hash [32]byte) (TemplateRecord, error) {
	var rec TemplateRecord
	item, err := txn.Get(templateKey(model, width, gateCount, hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, fmt.Errorf("%w: template %s at width %d gate count %d",
			ErrNotFound, shortHash(hash), width, gateCount)
	}
	if err != nil {
		return rec, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return rec, err
	}
	return DecodeTemplateRecord(val)
}

// Family returns the ordered template ids sharing a family hash. An
// unknown family returns an empty list.
func (s *Store) Family(ctx context.Context, familyHash [32]byte) ([]uint64, error) {
	if err := s.guardRead(); err != nil {
		return nil, err
	}
	var ids []uint64
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(familyKey(uint8(s.model.ID()), familyHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		list, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		ids, err = decodeIDList(list)
		return err
	})
	return ids, err
}

// ScanDims streams every template at one (width, gate count) cell in
// ascending id order. Returning ErrStopScan from fn ends the scan
// early without error.
func (s *Store) ScanDims(ctx context.Context, width, gateCount int, fn func(TemplateRecord) error) error {
	if err := s.guardRead(); err != nil {
		return err
	}
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := dimsPrefix(uint8(s.model.ID()), uint8(width), uint16(gateCount))
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
			hashBytes, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(hashBytes) != 32 {
				return fmt.Errorf("%w: dims entry holds %d hash bytes", ErrCorruptRecord, len(hashBytes))
			}
			var hash [32]byte
			copy(hash[:], hashBytes)

			rec, err := getTemplateByHash(txn, uint8(s.model.ID()), uint8(width), uint16(gateCount), hash)
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

// Stats summarizes store contents and format versions.
type Stats struct {
	Model                   string
	SchemaVersion           uint32
	CanonicalizationVersion uint32
	Templates               uint64
	Witnesses               uint64
	Families                uint64
}

// Stats reads the metadata counters and counts families.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.guardRead(); err != nil {
		return st, err
	}
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(metaModel))
		if err != nil {
			return err
		}
		name, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		st.Model = string(name)

		if item, err = txn.Get(metaKey(metaSchemaVersion)); err != nil {
			return err
		}
		if st.SchemaVersion, err = metaU32(item); err != nil {
			return err
		}
		if item, err = txn.Get(metaKey(metaCanonVersion)); err != nil {
			return err
		}
		if st.CanonicalizationVersion, err = metaU32(item); err != nil {
			return err
		}
		if st.Templates, err = readMetaU64(txn, metaTemplateCount); err != nil {
			return err
		}
		if st.Witnesses, err = readMetaU64(txn, metaWitnessCount); err != nil {
			return err
		}

		prefix := []byte{prefixFamilies, uint8(s.model.ID())}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			st.Families++
		}
		return nil
	})
	return st, err
}

// Close releases the writer lock and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}

	err := s.db.Close()
	if lerr := s.releaseLock(); err == nil {
		err = lerr
	}

	s.logger.Info("template store closed",
		slog.String("model", s.model.Name()),
		slog.String("path", s.cfg.Path))
	return err
}

func (s *Store) releaseLock() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.release()
	s.lock = nil
	return err
}

func (s *Store) guardRead() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (s *Store) guardWrite() error {
	if err := s.guardRead(); err != nil {
		return err
	}
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Meta value helpers.

func u32Bytes(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func u64Bytes(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func metaU32(item *badger.Item) (uint32, error) {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(val) != 4 {
		return 0, fmt.Errorf("%w: meta value %d bytes, want 4", ErrCorruptRecord, len(val))
	}
	return binary.LittleEndian.Uint32(val), nil
}

func readMetaU64(txn *badger.Txn, name string) (uint64, error) {
	item, err := txn.Get(metaKey(name))
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: meta value %d bytes, want 8", ErrCorruptRecord, len(val))
	}
	return binary.LittleEndian.Uint64(val), nil
}

func shortHash(h [32]byte) string {
	return fmt.Sprintf("%x", h[:8])
}
