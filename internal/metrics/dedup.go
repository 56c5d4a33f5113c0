// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsDeduplicated tracks every packet id checked against the
	// Bloom filter, by outcome.
	PacketsDeduplicated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "packets_total",
			Help:      "Total number of packets checked for deduplication",
		},
		[]string{"outcome"}, // unique, duplicate
	)

	// FilterRotations tracks Bloom filter rotations, by trigger.
	FilterRotations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "filter_rotations_total",
			Help:      "Total number of Bloom filter rotations",
		},
		[]string{"trigger"}, // ttl, fill_ratio
	)

	// FilterFillRatio tracks the active filter's current fill ratio.
	FilterFillRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "filter_fill_ratio",
			Help:      "Current fraction of set bits in the active Bloom filter",
		},
	)
)
