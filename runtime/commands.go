// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package runtime wires sessions, fragmentation, dedup, delivery
// tracking, dispatch and transport together into the cooperating set
// of goroutine tasks an embedding application drives through a
// Command/AppEvent surface.
package runtime

import (
	"github.com/bitchat-mesh/core/transport"
	"github.com/bitchat-mesh/core/types"
)

// CommandKind discriminates the closed set of inbound Commands the
// Orchestrator's Ingress task accepts.
type CommandKind int

const (
	CommandSendMessage CommandKind = iota
	CommandConnectToPeer
	CommandDisconnectFromPeer
	CommandStartDiscovery
	CommandStopDiscovery
	CommandPauseTransport
	CommandResumeTransport
	CommandGetSystemStatus
	CommandShutdown
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendMessage:
		return "SendMessage"
	case CommandConnectToPeer:
		return "ConnectToPeer"
	case CommandDisconnectFromPeer:
		return "DisconnectFromPeer"
	case CommandStartDiscovery:
		return "StartDiscovery"
	case CommandStopDiscovery:
		return "StopDiscovery"
	case CommandPauseTransport:
		return "PauseTransport"
	case CommandResumeTransport:
		return "ResumeTransport"
	case CommandGetSystemStatus:
		return "GetSystemStatus"
	case CommandShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Command is one unit of externally-driven work submitted to the
// Orchestrator. Kind selects which of the typed fields are meaningful;
// some kinds carry none.
type Command struct {
	Kind CommandKind

	Recipient     types.PeerId
	Content       string
	PeerID        types.PeerId
	TransportType transport.Type
}

// SendMessageCommand builds a CommandSendMessage Command.
func SendMessageCommand(recipient types.PeerId, content string) Command {
	return Command{Kind: CommandSendMessage, Recipient: recipient, Content: content}
}

// ConnectToPeerCommand builds a CommandConnectToPeer Command.
func ConnectToPeerCommand(peer types.PeerId) Command {
	return Command{Kind: CommandConnectToPeer, PeerID: peer}
}

// DisconnectFromPeerCommand builds a CommandDisconnectFromPeer Command.
func DisconnectFromPeerCommand(peer types.PeerId) Command {
	return Command{Kind: CommandDisconnectFromPeer, PeerID: peer}
}

// PauseTransportCommand builds a CommandPauseTransport Command.
func PauseTransportCommand(t transport.Type) Command {
	return Command{Kind: CommandPauseTransport, TransportType: t}
}

// ResumeTransportCommand builds a CommandResumeTransport Command.
func ResumeTransportCommand(t transport.Type) Command {
	return Command{Kind: CommandResumeTransport, TransportType: t}
}
