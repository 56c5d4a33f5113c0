// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package runtime

import (
	"github.com/google/uuid"

	"github.com/bitchat-mesh/core/handlers"
	"github.com/bitchat-mesh/core/transport"
	"github.com/bitchat-mesh/core/types"
)

// EventKind discriminates the closed set of AppEvents the Orchestrator
// emits toward an embedding application.
type EventKind int

const (
	EventMessageReceived EventKind = iota
	EventMessageSent
	EventPeerStatusChanged
	EventDiscoveryStateChanged
	EventConversationUpdated
	EventDeliveryConfirmed
	EventMessageRead
	EventSystemBusy
	EventSystemError
	EventSystemStatusReport
)

func (k EventKind) String() string {
	switch k {
	case EventMessageReceived:
		return "MessageReceived"
	case EventMessageSent:
		return "MessageSent"
	case EventPeerStatusChanged:
		return "PeerStatusChanged"
	case EventDiscoveryStateChanged:
		return "DiscoveryStateChanged"
	case EventConversationUpdated:
		return "ConversationUpdated"
	case EventDeliveryConfirmed:
		return "DeliveryConfirmed"
	case EventMessageRead:
		return "MessageRead"
	case EventSystemBusy:
		return "SystemBusy"
	case EventSystemError:
		return "SystemError"
	case EventSystemStatusReport:
		return "SystemStatusReport"
	default:
		return "Unknown"
	}
}

// PeerStatus is a peer's connectivity state as observed by the
// Orchestrator.
type PeerStatus int

const (
	PeerConnected PeerStatus = iota
	PeerDisconnected
	PeerHandshaking
)

// Status summarizes the Orchestrator's current state, reported via
// EventSystemStatusReport.
type Status struct {
	ActiveSessions   int
	DiscoveredPeers  int
	InFlightDeliveries int
	PendingReassembly  int
}

// AppEvent is one unit of application-visible state change emitted by
// the Orchestrator. Kind selects which of the typed fields are
// meaningful; some kinds carry none.
type AppEvent struct {
	Kind EventKind

	Peer          types.PeerId
	Message       types.BitchatMessage
	MessageID     uuid.UUID
	PeerStatus    PeerStatus
	Discovering   bool
	TransportType transport.Type
	Err           error
	Status        Status
}

func messageReceivedEvent(from types.PeerId, msg types.BitchatMessage) AppEvent {
	return AppEvent{Kind: EventMessageReceived, Peer: from, Message: msg}
}

func messageSentEvent(to types.PeerId, id uuid.UUID) AppEvent {
	return AppEvent{Kind: EventMessageSent, Peer: to, MessageID: id}
}

func peerStatusChangedEvent(peer types.PeerId, status PeerStatus) AppEvent {
	return AppEvent{Kind: EventPeerStatusChanged, Peer: peer, PeerStatus: status}
}

func deliveryConfirmedEvent(peer types.PeerId, id uuid.UUID) AppEvent {
	return AppEvent{Kind: EventDeliveryConfirmed, Peer: peer, MessageID: id}
}

func messageReadEvent(peer types.PeerId, id uuid.UUID) AppEvent {
	return AppEvent{Kind: EventMessageRead, Peer: peer, MessageID: id}
}

func systemBusyEvent() AppEvent {
	return AppEvent{Kind: EventSystemBusy}
}

func systemErrorEvent(err error) AppEvent {
	return AppEvent{Kind: EventSystemError, Err: err}
}

func systemStatusReportEvent(s Status) AppEvent {
	return AppEvent{Kind: EventSystemStatusReport, Status: s}
}

// fromHandlerEvent translates a handlers.AppEvent (decoded-packet
// granularity) into the Orchestrator's own AppEvent vocabulary
// (application-surface granularity). Kinds with no orchestrator-level
// equivalent are dropped, not erroneously coerced.
func fromHandlerEvent(e handlers.AppEvent) (AppEvent, bool) {
	switch e.Kind {
	case handlers.EventMessageReceived:
		return messageReceivedEvent(e.From, e.Message), true
	case handlers.EventPeerAnnounced:
		return peerStatusChangedEvent(e.From, PeerConnected), true
	case handlers.EventDeliveryConfirmed:
		return deliveryConfirmedEvent(e.From, e.ConfirmedID), true
	case handlers.EventMessageRead:
		return messageReadEvent(e.From, e.ReadID), true
	case handlers.EventHandshakeCompleted, handlers.EventHandshakeFailed,
		handlers.EventSyncRequested:
		return AppEvent{}, false
	default:
		return AppEvent{}, false
	}
}
