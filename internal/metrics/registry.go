// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics exposes Prometheus instrumentation for every
// component that can fail, retry, or drop work: handshakes, sessions,
// fragmentation, deduplication, delivery tracking, and transports.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bitchat"

// Registry is the collector registry every metric in this package
// registers against. Handler/StartServer serve it; a caller embedding
// this module in a larger process can merge it into their own registry
// instead of calling StartServer.
var Registry = prometheus.NewRegistry()
