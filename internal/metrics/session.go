// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated tracks sessions entering Handshaking.
	SessionsCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		},
		[]string{"direction"}, // outbound, inbound
	)

	// SessionsEstablished tracks sessions reaching Established.
	SessionsEstablished = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "established_total",
			Help:      "Total number of sessions that reached the Established state",
		},
	)

	// SessionsActive tracks the current size of the session table by state.
	SessionsActive = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions currently in each state",
		},
		[]string{"state"}, // handshaking, established, failed
	)

	// SessionsExpired tracks sessions removed by the cleanup sweep, by
	// the state they were removed from.
	SessionsExpired = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Total number of sessions removed by timeout",
		},
		[]string{"state"},
	)

	// SessionsFailed tracks sessions that transitioned to Failed.
	SessionsFailed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "failed_total",
			Help:      "Total number of sessions that transitioned to Failed",
		},
		[]string{"reason"}, // handshake, decryption
	)

	// SessionDuration tracks encrypt/decrypt call latency.
	SessionDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Session operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to 1.6s
		},
		[]string{"operation"}, // encrypt, decrypt
	)

	// SessionMessageSize tracks ciphertext sizes passed through sessions.
	SessionMessageSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "message_size_bytes",
			Help:      "Size of ciphertext processed by sessions",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
		[]string{"direction"}, // inbound, outbound
	)
)
