// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveryAttempts tracks every send attempt made by the tracker.
	DeliveryAttempts = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of delivery attempts, including retries",
		},
	)

	// DeliveryRetries tracks retries specifically (attempts beyond the first).
	DeliveryRetries = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "retries_total",
			Help:      "Total number of delivery retries",
		},
	)

	// DeliveryConfirmed tracks messages confirmed via a delivery ack.
	DeliveryConfirmed = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "confirmed_total",
			Help:      "Total number of messages confirmed delivered",
		},
	)

	// DeliveryExpired tracks messages that exhausted their retry budget
	// or confirmation timeout without being confirmed.
	DeliveryExpired = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "expired_total",
			Help:      "Total number of messages that expired undelivered",
		},
	)

	// DeliveryConfirmationDuration tracks time from first send to confirmation.
	DeliveryConfirmationDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "confirmation_duration_seconds",
			Help:      "Time from first send attempt to delivery confirmation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
	)
)
