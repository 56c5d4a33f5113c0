// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransportSends tracks send attempts made through a transport, by
	// transport name and outcome.
	TransportSends = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Total number of send attempts through a transport",
		},
		[]string{"transport", "outcome"}, // success, failure
	)

	// TransportLatency tracks observed send latency per transport,
	// feeding the manager's health-scoring feedback loop.
	TransportLatency = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "latency_seconds",
			Help:      "Observed send latency per transport",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
		},
		[]string{"transport"},
	)

	// TransportPeersDiscovered tracks distinct peers seen per transport.
	TransportPeersDiscovered = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "peers_discovered",
			Help:      "Number of distinct peers currently discovered per transport",
		},
		[]string{"transport"},
	)

	// TransportDegraded tracks transports the manager's health scoring
	// has marked degraded (1) versus healthy (0).
	TransportDegraded = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "degraded",
			Help:      "1 if the manager has marked this transport degraded, else 0",
		},
		[]string{"transport"},
	)
)
