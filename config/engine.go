// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/mattn/go-isatty"

	"github.com/tidewater-labs/revtempl/driver"
	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/pkg/logging"
	"github.com/tidewater-labs/revtempl/sat"
	"github.com/tidewater-labs/revtempl/store"
	"github.com/tidewater-labs/revtempl/telemetry"
	"github.com/tidewater-labs/revtempl/unroll"
)

// StoreConfig builds the store configuration. logger may be nil to
// silence badger.
func (c Config) StoreConfig(logger *slog.Logger) (store.Config, error) {
	model, err := gates.ModelByName(c.Store.Model)
	if err != nil {
		return store.Config{}, err
	}

	sc := store.DefaultConfig(c.Store.Path, model.ID())
	sc.SyncWrites = c.Store.SyncWrites
	sc.GCInterval = c.Store.GCInterval.Std()
	sc.GCDiscardRatio = c.Store.GCDiscardRatio
	sc.Logger = logger
	return sc, nil
}

// Backends builds the configured solver backends in launch order.
//
// External solvers resolve their binary from the configured path
// first, falling back to a PATH lookup. An enabled external solver
// with no locatable binary is an error rather than a silent drop, so
// a race never runs with fewer solvers than configured.
func (c Config) Backends() ([]sat.Backend, error) {
	backends := make([]sat.Backend, 0, len(c.Solver.Backends))
	for _, name := range c.Solver.Backends {
		switch name {
		case sat.BackendGophersat:
			backends = append(backends, sat.NewGophersat())
		case sat.BackendGini:
			backends = append(backends, sat.NewGini())
		case sat.BackendKissat:
			b, err := processBackend(sat.BackendKissat, c.Solver.KissatPath)
			if err != nil {
				return nil, err
			}
			backends = append(backends, b)
		case sat.BackendCadical:
			b, err := processBackend(sat.BackendCadical, c.Solver.CadicalPath)
			if err != nil {
				return nil, err
			}
			backends = append(backends, b)
		default:
			return nil, fmt.Errorf("unknown solver backend %q", name)
		}
	}
	return backends, nil
}

func processBackend(name, path string) (sat.Backend, error) {
	if path == "" {
		found, err := exec.LookPath(name)
		if err != nil {
			return nil, fmt.Errorf("solver %s not found on PATH: %w", name, err)
		}
		path = found
	}
	return sat.NewProcessBackend(name, path), nil
}

// UnrollOptions builds the expansion bounds.
func (c Config) UnrollOptions() unroll.Options {
	return unroll.Options{
		MaxPermutations: c.Unroll.MaxPermutations,
		SwapBudget:      c.Unroll.SwapBudget,
	}
}

// TelemetryConfig layers the telemetry section over the library
// defaults; empty fields keep the default, which honors the standard
// OTel environment variables.
func (c Config) TelemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	if c.Telemetry.TraceExporter != "" {
		tc.TraceExporter = c.Telemetry.TraceExporter
	}
	if c.Telemetry.MetricExporter != "" {
		tc.MetricExporter = c.Telemetry.MetricExporter
	}
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	if c.Telemetry.Environment != "" {
		tc.Environment = c.Telemetry.Environment
	}
	return tc
}

// LoggerConfig builds the process logger configuration. Format "auto"
// picks text on a terminal and JSON when stderr is redirected.
func (c Config) LoggerConfig() logging.Config {
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	default:
		level = logging.LevelInfo
	}

	var jsonOut bool
	switch c.Logging.Format {
	case "json":
		jsonOut = true
	case "text":
		jsonOut = false
	default:
		jsonOut = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	}

	service := c.Logging.Service
	if service == "" {
		service = "revtempl"
	}

	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    jsonOut,
		Quiet:   c.Logging.Quiet,
	}
}

// DriverConfig assembles a driver configuration over an open store.
func (c Config) DriverConfig(s *store.Store, logger *slog.Logger) (driver.Config, error) {
	backends, err := c.Backends()
	if err != nil {
		return driver.Config{}, err
	}
	return driver.Config{
		Store:            s,
		Backends:         backends,
		NumWorkers:       c.Driver.Workers,
		SolveTimeout:     c.Solver.Timeout.Std(),
		Unroll:           c.UnrollOptions(),
		EveryWireTouched: c.Driver.EveryWireTouched,
		ProgressEvery:    c.Driver.ProgressEvery.Std(),
		Logger:           logger,
	}, nil
}
