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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store transaction metrics.
var (
	txnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revtempl_store_txn_duration_seconds",
		Help:    "Time spent in store transactions",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	}, []string{"op"})

	insertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revtempl_store_inserts_total",
		Help: "Template and witness insert outcomes",
	}, []string{"kind", "outcome"})
)
