// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package transport defines the polymorphic carrier contract messages
// travel over, and a Manager that picks among several registered
// transports per a configurable routing policy.
package transport

import (
	"context"

	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/types"
)

// Type identifies the closed set of transport kinds a Transport can
// declare itself as.
type Type int

const (
	ShortRange Type = iota
	RelayOverlay
	Local
	Custom
)

func (t Type) String() string {
	switch t {
	case ShortRange:
		return "short_range"
	case RelayOverlay:
		return "relay_overlay"
	case Local:
		return "local"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// LatencyClass orders transports from fastest to slowest.
type LatencyClass int

const (
	LatencyVeryLow LatencyClass = iota
	LatencyLow
	LatencyMedium
	LatencyHigh
)

// ReliabilityClass orders transports from least to most reliable.
type ReliabilityClass int

const (
	ReliabilityLow ReliabilityClass = iota
	ReliabilityMedium
	ReliabilityHigh
	ReliabilityVeryHigh
)

// Capabilities is immutable metadata describing a transport's
// properties; it governs routing decisions without invoking the
// transport itself.
type Capabilities struct {
	Type               Type
	MaxPacketSize      int
	SupportsDiscovery  bool
	SupportsBroadcast  bool
	RequiresInternet   bool
	LatencyClass       LatencyClass
	ReliabilityClass   ReliabilityClass
}

// Inbound is one packet received off a Transport, paired with the peer
// it arrived from.
type Inbound struct {
	From   types.PeerId
	Packet *packet.BitchatPacket
}

// Transport is a polymorphic carrier of packets between peers: a
// short-range radio, a relay overlay, or an in-process loopback for
// testing, all behind one contract.
type Transport interface {
	// SendTo delivers pkt to peer over this transport.
	SendTo(ctx context.Context, peer types.PeerId, pkt *packet.BitchatPacket) error
	// Broadcast delivers pkt to every peer this transport can reach.
	Broadcast(ctx context.Context, pkt *packet.BitchatPacket) error
	// Receive blocks until a packet arrives or ctx is cancelled.
	Receive(ctx context.Context) (Inbound, error)
	// DiscoveredPeers reports the peers currently known reachable.
	DiscoveredPeers() []types.PeerId
	// Start begins any background discovery/connection work.
	Start(ctx context.Context) error
	// Stop ends background work and releases resources.
	Stop() error
	// IsActive reports whether Start has run and Stop has not.
	IsActive() bool
	// Capabilities returns this transport's immutable metadata.
	Capabilities() Capabilities
}
