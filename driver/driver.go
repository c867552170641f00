// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package driver orchestrates identity-template enumeration.
//
// The driver runs one state machine per (width, gate count) point:
// solve for the next identity circuit, expand it into its equivalence
// family, store every member, exclude the family from the formula, and
// repeat until the solver proves exhaustion. Expansion runs on a worker
// pool; all store writes go through the single configured store.
package driver

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/tidewater-labs/revtempl/sat"
	"github.com/tidewater-labs/revtempl/store"
	"github.com/tidewater-labs/revtempl/telemetry"
	"github.com/tidewater-labs/revtempl/unroll"
)

var (
	tracer = otel.Tracer("revtempl.driver")
	meter  = otel.Meter("revtempl.driver")
)

// Config controls an enumeration driver.
type Config struct {
	// Store receives every template and witness. Required, and must be
	// opened writable for the mutating operations.
	Store *store.Store

	// Backends are the solver backends to race. Empty means
	// sat.DefaultBackends().
	Backends []sat.Backend

	// NumWorkers bounds the expansion worker pool. Zero or negative
	// means runtime.NumCPU().
	NumWorkers int

	// SolveTimeout bounds each individual solver call. Zero means no
	// per-call limit; the run context still applies.
	SolveTimeout time.Duration

	// Unroll configures equivalence expansion for found circuits.
	Unroll unroll.Options

	// EveryWireTouched adds the synthesis constraint that no wire stays
	// idle across the whole circuit.
	EveryWireTouched bool

	// ProgressEvery throttles progress logging. Zero or negative means
	// a 5s interval.
	ProgressEvery time.Duration

	// Logger receives driver logs. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a starting configuration without a store.
func DefaultConfig() Config {
	return Config{
		NumWorkers:    runtime.NumCPU(),
		Unroll:        unroll.DefaultOptions(),
		ProgressEvery: 5 * time.Second,
	}
}

// InsertStats counts insert outcomes across one operation.
type InsertStats struct {
	Inserted   uint64 `json:"inserted"`
	Duplicates uint64 `json:"duplicates"`
}

// SkippedTemplate records a base template whose expansion failed. The
// template itself stays stored; only its derived variants are missing.
type SkippedTemplate struct {
	Width      int    `json:"width"`
	GateCount  int    `json:"gate_count"`
	TemplateID uint64 `json:"template_id,omitempty"`
	Reason     string `json:"reason"`
}

// PointReport summarizes one (width, gate count) enumeration point.
type PointReport struct {
	Width      int    `json:"width"`
	GateCount  int    `json:"gate_count"`
	State      State  `json:"state"`
	Solves     uint64 `json:"solves"`
	Families   uint64 `json:"families"`
	Templates  uint64 `json:"templates"`
	Duplicates uint64 `json:"duplicates"`
	Err        string `json:"err,omitempty"`
}

// Report is the outcome of one driver operation.
type Report struct {
	RunID   string            `json:"run_id"`
	Stats   InsertStats       `json:"stats"`
	Points  []PointReport     `json:"points,omitempty"`
	Skipped []SkippedTemplate `json:"skipped,omitempty"`
	Elapsed time.Duration     `json:"elapsed"`
}

// Driver enumerates identity templates into a store.
//
// # Thread Safety
//
// A Driver is safe for concurrent read operations, but the mutating
// operations (BuildDatabase, Unroll, BuildWitnesses) assume they are
// the store's only writer and must not run concurrently with each
// other.
type Driver struct {
	store  *store.Store
	racer  *sat.Racer
	cfg    Config
	logger *slog.Logger

	progress *rate.Limiter

	// Metrics (initialized lazily)
	metricsOnce sync.Once
	metrics     *telemetry.Metrics
}

// New builds a driver over an open store.
func New(cfg Config) (*Driver, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = sat.DefaultBackends()
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Driver{
		store:    cfg.Store,
		racer:    sat.NewRacer(cfg.Backends...),
		cfg:      cfg,
		logger:   cfg.Logger,
		progress: rate.NewLimiter(rate.Every(cfg.ProgressEvery), 1),
	}, nil
}

// initMetrics lazily initializes the engine instruments. Logs on
// failure but continues; every instrument use is nil-guarded.
func (d *Driver) initMetrics() {
	d.metricsOnce.Do(func() {
		m, err := telemetry.NewMetrics(meter)
		if err != nil {
			d.logger.Error("failed to initialize driver metrics (observability degraded)",
				slog.String("error", err.Error()),
			)
			return
		}
		d.metrics = m
	})
}
