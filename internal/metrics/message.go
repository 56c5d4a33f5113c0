// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FragmentsSent tracks fragment packets emitted by the fragmenter.
	FragmentsSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fragments",
			Name:      "sent_total",
			Help:      "Total number of fragment packets sent",
		},
	)

	// FragmentsReassembled tracks messages fully reassembled from fragments.
	FragmentsReassembled = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fragments",
			Name:      "reassembled_total",
			Help:      "Total number of messages fully reassembled",
		},
	)

	// FragmentsDropped tracks fragments discarded before reassembly
	// completed, by reason.
	FragmentsDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fragments",
			Name:      "dropped_total",
			Help:      "Total number of fragments dropped before reassembly",
		},
		[]string{"reason"}, // checksum, mismatch, duplicate, timeout
	)

	// ReassemblyDuration tracks time from first to last fragment of a message.
	ReassemblyDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fragments",
			Name:      "reassembly_duration_seconds",
			Help:      "Time from first to last fragment of a reassembled message",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to 8s
		},
	)

	// MessageSize tracks whole (pre-fragmentation) message sizes.
	MessageSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "size_bytes",
			Help:      "Size of whole messages before fragmentation",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)
