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
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/sat"
)

// Environment variables recognized by Load, applied after the file so
// deployments can relocate solver binaries without editing YAML.
const (
	// EnvKissatPath overrides Solver.KissatPath.
	EnvKissatPath = "REVTEMPL_KISSAT_PATH"

	// EnvCadicalPath overrides Solver.CadicalPath.
	EnvCadicalPath = "REVTEMPL_CADICAL_PATH"
)

// engineValidate is the validator instance for engine configuration.
// Initialized in init() with custom validators.
var engineValidate *validator.Validate

func init() {
	engineValidate = validator.New()

	_ = engineValidate.RegisterValidation("gatemodel", validateGateModel)
	_ = engineValidate.RegisterValidation("satbackend", validateSATBackend)
}

// validateGateModel accepts any family name the gate model registry
// resolves, so new models validate without touching this package.
func validateGateModel(fl validator.FieldLevel) bool {
	_, err := gates.ModelByName(fl.Field().String())
	return err == nil
}

// validateSATBackend accepts the known solver backend names.
func validateSATBackend(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case sat.BackendGophersat, sat.BackendGini, sat.BackendKissat, sat.BackendCadical:
		return true
	default:
		return false
	}
}

// Load reads a YAML configuration file.
//
// # Description
//
// File values layer over DefaultConfig, so a partial file only needs
// the fields it changes. Environment overrides (EnvKissatPath,
// EnvCadicalPath) apply after the file, and the merged result is
// validated before being returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvKissatPath); v != "" {
		c.Solver.KissatPath = v
	}
	if v := os.Getenv(EnvCadicalPath); v != "" {
		c.Solver.CadicalPath = v
	}
}

// Validate checks every section against its field constraints.
func (c *Config) Validate() error {
	if err := engineValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
