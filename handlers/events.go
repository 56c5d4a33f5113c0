// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package handlers turns decoded packets into application-facing
// events by dispatching on message type.
package handlers

import (
	"github.com/google/uuid"

	"github.com/bitchat-mesh/core/types"
)

// EventKind discriminates the closed set of AppEvent payloads a
// Dispatcher can emit.
type EventKind int

const (
	EventMessageReceived EventKind = iota
	EventDeliveryConfirmed
	EventMessageRead
	EventPeerAnnounced
	EventHandshakeCompleted
	EventHandshakeFailed
	EventSyncRequested
)

func (k EventKind) String() string {
	switch k {
	case EventMessageReceived:
		return "MessageReceived"
	case EventDeliveryConfirmed:
		return "DeliveryConfirmed"
	case EventMessageRead:
		return "MessageRead"
	case EventPeerAnnounced:
		return "PeerAnnounced"
	case EventHandshakeCompleted:
		return "HandshakeCompleted"
	case EventHandshakeFailed:
		return "HandshakeFailed"
	case EventSyncRequested:
		return "SyncRequested"
	default:
		return "Unknown"
	}
}

// AppEvent is one unit of application-visible state change produced by
// handling an incoming packet. Kind selects which of the typed fields
// are meaningful; some kinds carry none beyond From.
type AppEvent struct {
	Kind EventKind
	From types.PeerId

	Message           types.BitchatMessage
	ConfirmedID       uuid.UUID
	ReadID            uuid.UUID
	ReaderNickname    string
	AnnouncedNickname string
	FailureReason     string
}

// MessageReceivedEvent builds an EventMessageReceived AppEvent.
func MessageReceivedEvent(from types.PeerId, msg types.BitchatMessage) AppEvent {
	return AppEvent{Kind: EventMessageReceived, From: from, Message: msg}
}

// DeliveryConfirmedEvent builds an EventDeliveryConfirmed AppEvent.
func DeliveryConfirmedEvent(from types.PeerId, messageID uuid.UUID) AppEvent {
	return AppEvent{Kind: EventDeliveryConfirmed, From: from, ConfirmedID: messageID}
}

// MessageReadEvent builds an EventMessageRead AppEvent.
func MessageReadEvent(from types.PeerId, messageID uuid.UUID, readerNickname string) AppEvent {
	return AppEvent{Kind: EventMessageRead, From: from, ReadID: messageID, ReaderNickname: readerNickname}
}

// PeerAnnouncedEvent builds an EventPeerAnnounced AppEvent.
func PeerAnnouncedEvent(from types.PeerId, nickname string) AppEvent {
	return AppEvent{Kind: EventPeerAnnounced, From: from, AnnouncedNickname: nickname}
}

// HandshakeCompletedEvent builds an EventHandshakeCompleted AppEvent.
func HandshakeCompletedEvent(from types.PeerId) AppEvent {
	return AppEvent{Kind: EventHandshakeCompleted, From: from}
}

// HandshakeFailedEvent builds an EventHandshakeFailed AppEvent.
func HandshakeFailedEvent(from types.PeerId, reason string) AppEvent {
	return AppEvent{Kind: EventHandshakeFailed, From: from, FailureReason: reason}
}

// SyncRequestedEvent builds an EventSyncRequested AppEvent.
func SyncRequestedEvent(from types.PeerId) AppEvent {
	return AppEvent{Kind: EventSyncRequested, From: from}
}
