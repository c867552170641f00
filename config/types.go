// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

// Package config loads and validates engine configuration.
//
// A Config is read from YAML, layered over DefaultConfig, checked with
// go-playground/validator, and then turned into component
// configurations through the mapper methods (StoreConfig, Backends,
// DriverConfig, and friends). The engine itself never reads files or
// environment variables; this package is where deployment concerns
// stop.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tidewater-labs/revtempl/sat"
)

// Duration is a time.Duration that unmarshals from YAML scalars like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses the scalar with time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the full engine configuration.
type Config struct {
	Store     StoreSection     `yaml:"store"`
	Solver    SolverSection    `yaml:"solver"`
	Unroll    UnrollSection    `yaml:"unroll"`
	Driver    DriverSection    `yaml:"driver"`
	Telemetry TelemetrySection `yaml:"telemetry"`
	Logging   LoggingSection   `yaml:"logging"`
}

// StoreSection configures the template store.
type StoreSection struct {
	// Path is the store directory.
	Path string `yaml:"path" validate:"required"`

	// Model is the gate model family name, e.g. "eca57" or "mct".
	Model string `yaml:"model" validate:"required,gatemodel"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is the value log garbage collection cadence. Zero
	// disables GC.
	GCInterval Duration `yaml:"gc_interval" validate:"gte=0"`

	// GCDiscardRatio is the minimum discardable fraction before a GC
	// pass rewrites a log file.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// SolverSection configures the SAT solver race.
type SolverSection struct {
	// Backends names the solvers to race, in launch order.
	Backends []string `yaml:"backends" validate:"required,min=1,dive,satbackend"`

	// Timeout bounds each individual solve call. Zero means no
	// per-call limit.
	Timeout Duration `yaml:"timeout" validate:"gte=0"`

	// KissatPath locates the kissat binary. Empty falls back to PATH
	// lookup when the backend is enabled.
	KissatPath string `yaml:"kissat_path"`

	// CadicalPath locates the cadical binary. Empty falls back to
	// PATH lookup when the backend is enabled.
	CadicalPath string `yaml:"cadical_path"`
}

// UnrollSection bounds equivalence expansion.
type UnrollSection struct {
	// MaxPermutations caps wire relabelings per expansion.
	MaxPermutations int `yaml:"max_permutations" validate:"gte=1"`

	// SwapBudget caps swap-space search nodes per expansion.
	SwapBudget int `yaml:"swap_budget" validate:"gte=0"`
}

// DriverSection configures the enumeration driver.
type DriverSection struct {
	// Workers bounds the expansion worker pool. Zero means one worker
	// per CPU.
	Workers int `yaml:"workers" validate:"gte=0"`

	// EveryWireTouched requires synthesized circuits to touch every
	// wire.
	EveryWireTouched bool `yaml:"every_wire_touched"`

	// ProgressEvery throttles progress logging.
	ProgressEvery Duration `yaml:"progress_every" validate:"gte=0"`
}

// TelemetrySection selects trace and metric exporters. Empty fields
// keep the telemetry package defaults, which honor the standard OTel
// environment variables.
type TelemetrySection struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Environment    string `yaml:"environment"`
}

// LoggingSection configures the process logger.
type LoggingSection struct {
	// Level is the minimum severity: debug, info, warn, or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format selects stderr output: "text", "json", or "auto" to pick
	// text on a terminal and JSON otherwise.
	Format string `yaml:"format" validate:"oneof=auto text json"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir"`

	// Service overrides the service attribute. Empty means
	// "revtempl".
	Service string `yaml:"service"`

	// Quiet drops stderr output.
	Quiet bool `yaml:"quiet"`
}

// DefaultConfig returns a runnable starting configuration: in-process
// solvers only, eca57 store in the working directory, telemetry off.
func DefaultConfig() Config {
	return Config{
		Store: StoreSection{
			Path:           "revtempl.db",
			Model:          "eca57",
			SyncWrites:     true,
			GCInterval:     Duration(5 * time.Minute),
			GCDiscardRatio: 0.5,
		},
		Solver: SolverSection{
			Backends: []string{sat.BackendGophersat, sat.BackendGini},
			Timeout:  Duration(5 * time.Second),
		},
		Unroll: UnrollSection{
			MaxPermutations: 24,
			SwapBudget:      1000,
		},
		Driver: DriverSection{
			ProgressEvery: Duration(5 * time.Second),
		},
		Telemetry: TelemetrySection{
			TraceExporter:  "none",
			MetricExporter: "none",
		},
		Logging: LoggingSection{
			Level:  "info",
			Format: "auto",
		},
	}
}
