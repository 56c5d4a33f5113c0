// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package runtime

import (
	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/transport"
	"github.com/bitchat-mesh/core/types"
)

// EffectKind discriminates the closed set of internal fan-out
// instructions the Orchestrator issues to transport adapters.
type EffectKind int

const (
	EffectSendPacket EffectKind = iota
	EffectInitiateConnection
	EffectStartListening
	EffectStopListening
	EffectWriteToStorage
	EffectScheduleRetry
	EffectStartTransportDiscovery
	EffectStopTransportDiscovery
	EffectPauseTransport
	EffectResumeTransport
)

// Effect is one instruction broadcast to every subscribed transport
// adapter. Kind selects which of the typed fields are meaningful; some
// kinds carry none.
type Effect struct {
	Kind EffectKind

	Peer          types.PeerId
	Packet        *packet.BitchatPacket
	TransportType transport.Type
	StorageKey    string
	StorageValue  []byte
}
