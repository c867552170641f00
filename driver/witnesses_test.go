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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/revtempl/gates"
	"github.com/tidewater-labs/revtempl/store"
)

// TestBuildWitnessesIdempotent stores templates from three distinct
// canonical classes and checks that every template contributes its
// prefix exactly once.
func TestBuildWitnessesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t, gates.ModelECA57)

	// Distinct target multisets keep the three circuits in distinct
	// canonical classes regardless of how relabeling reorders wires.
	circuits := []gates.Circuit{
		eca57Circuit(t, 4,
			[3]int{0, 1, 2}, [3]int{1, 2, 3}, [3]int{2, 3, 0}, [3]int{3, 0, 1}, [3]int{0, 2, 3}),
		eca57Circuit(t, 4,
			[3]int{0, 1, 2}, [3]int{1, 2, 3}, [3]int{2, 3, 0}, [3]int{0, 3, 1}, [3]int{0, 2, 1}),
		eca57Circuit(t, 4,
			[3]int{0, 1, 2}, [3]int{1, 0, 2}, [3]int{0, 1, 3}, [3]int{1, 2, 3}, [3]int{0, 2, 3}),
	}
	for _, c := range circuits {
		res, err := s.InsertTemplate(ctx, store.TemplateInsert{Circuit: c, Origin: store.OriginSAT})
		require.NoError(t, err)
		require.True(t, res.Inserted)
	}

	d := newTestDriver(t, s, nil)

	stats, err := d.BuildWitnesses(ctx, []int{4}, []int{5})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(circuits)), stats.Inserted+stats.Duplicates)
	assert.Positive(t, stats.Inserted)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Inserted, st.Witnesses)

	// A second pass finds every prefix already present.
	again, err := d.BuildWitnesses(ctx, []int{4}, []int{5})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), again.Inserted)
	assert.Equal(t, uint64(len(circuits)), again.Duplicates)
}

func TestBuildWitnessesEmptyCell(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	d := newTestDriver(t, s, nil)

	stats, err := d.BuildWitnesses(context.Background(), []int{3, 4}, []int{2, 3})
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestBuildWitnessesNilContext(t *testing.T) {
	s := newMemStore(t, gates.ModelECA57)
	d := newTestDriver(t, s, nil)

	_, err := d.BuildWitnesses(nil, []int{3}, []int{2})
	assert.ErrorIs(t, err, ErrNilContext)
}
