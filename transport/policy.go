// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

// PolicyKind selects how Manager.routeFor picks among its registered
// transports for a given target peer.
type PolicyKind int

const (
	// FirstAvailable picks the first active transport whose
	// DiscoveredPeers contains the target.
	FirstAvailable PolicyKind = iota
	// PreferenceOrder picks the first active transport, in preference
	// order, whose DiscoveredPeers contains the target, falling back
	// to FirstAvailable if none of the preferred types discover it.
	PreferenceOrder
	// LowestLatency picks, among reachable active transports, the one
	// with the smallest LatencyClass ordinal.
	LowestLatency
	// HighestReliability picks, among reachable active transports, the
	// one with the largest ReliabilityClass ordinal.
	HighestReliability
	// CustomPolicy is currently equivalent to FirstAvailable; it exists
	// as an extension point for a future scoring function.
	CustomPolicy
)

// Policy governs routing: a PolicyKind plus, for PreferenceOrder, the
// ordered list of preferred transport types.
type Policy struct {
	Kind       PolicyKind
	Preference []Type
}
