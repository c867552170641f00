// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package driver

import (
	"context"

	"github.com/tidewater-labs/revtempl/store"
)

// Family is one equivalence family within a (width, gate count) cell.
type Family struct {
	// Hash is the family's grouping hash.
	Hash [32]byte

	// Seed is the family's lowest-id member, the record the family was
	// first stored under.
	Seed store.TemplateRecord

	// Members lists every template id in the family, ascending.
	Members []uint64
}

// EnumerateFamily streams the cell's families in first-stored order.
//
// # Description
//
// Walks the cell in template-id order and emits each family once, when
// its first member is reached. Members come from the family index, so
// a family is complete when emitted even though later members of the
// cell have not been visited yet. fn may return store.ErrStopScan to
// stop early without error.
func (d *Driver) EnumerateFamily(ctx context.Context, width, gateCount int, fn func(Family) error) error {
	if ctx == nil {
		return ErrNilContext
	}

	seen := make(map[[32]byte]struct{})
	return d.store.ScanDims(ctx, width, gateCount, func(rec store.TemplateRecord) error {
		if _, ok := seen[rec.FamilyHash]; ok {
			return nil
		}
		seen[rec.FamilyHash] = struct{}{}

		members, err := d.store.Family(ctx, rec.FamilyHash)
		if err != nil {
			return err
		}
		return fn(Family{
			Hash:    rec.FamilyHash,
			Seed:    rec,
			Members: members,
		})
	})
}
