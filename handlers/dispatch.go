// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package handlers

import (
	"fmt"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/fragmentation"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/types"
)

// Sink receives every AppEvent a Dispatcher produces. Implementations
// must not block indefinitely; a channel-backed Sink should select on
// a context or use a buffered channel sized for the runtime's
// back-pressure policy.
type Sink interface {
	Emit(AppEvent)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(AppEvent)

// Emit calls f.
func (f SinkFunc) Emit(e AppEvent) { f(e) }

// Dispatcher turns a decoded BitchatPacket into zero or more AppEvents,
// transparently reassembling fragment-carrying packets before
// dispatching the fragment's original type.
type Dispatcher struct {
	sink        Sink
	reassembler *fragmentation.Reassembler
	fragMode    fragmentation.Mode
	log         logger.Logger
}

// NewDispatcher creates a Dispatcher delivering events to sink and
// reassembling fragments with reassembler in the given Mode.
func NewDispatcher(sink Sink, reassembler *fragmentation.Reassembler, fragMode fragmentation.Mode, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{sink: sink, reassembler: reassembler, fragMode: fragMode, log: log}
}

// Dispatch decodes pkt's payload according to its MessageType and
// emits the corresponding AppEvent(s) to the Dispatcher's Sink. It
// returns UnknownMessageTypeError for any discriminant outside the
// closed set types.MessageType defines, so dispatch is total over
// every value that can appear on the wire.
func (d *Dispatcher) Dispatch(pkt *packet.BitchatPacket) error {
	switch pkt.MessageType {
	case types.MessageTypeMessage:
		msg, err := packet.DecodeBitchatMessage(pkt.Payload)
		if err != nil {
			return err
		}
		d.sink.Emit(MessageReceivedEvent(pkt.SenderID, msg))
		return nil

	case types.MessageTypeDeliveryAck:
		ack, err := packet.DecodeAckPayload(pkt.Payload)
		if err != nil {
			return err
		}
		d.sink.Emit(DeliveryConfirmedEvent(pkt.SenderID, ack.MessageID))
		return nil

	case types.MessageTypeReadReceipt:
		receipt, err := packet.DecodeAckPayload(pkt.Payload)
		if err != nil {
			return err
		}
		d.sink.Emit(MessageReadEvent(pkt.SenderID, receipt.MessageID, receipt.Nickname))
		return nil

	case types.MessageTypeAnnounce:
		d.sink.Emit(PeerAnnouncedEvent(pkt.SenderID, string(pkt.Payload)))
		return nil

	case types.MessageTypeRequestSync:
		d.sink.Emit(SyncRequestedEvent(pkt.SenderID))
		return nil

	case types.MessageTypeHandshakeInit, types.MessageTypeHandshakeResponse, types.MessageTypeHandshakeFinalize:
		// Handshake legs are consumed by the session layer, not turned
		// into application events here; a caller feeds pkt.Payload to
		// session.Manager and reports the outcome via
		// HandshakeCompletedEvent/HandshakeFailedEvent itself.
		return nil

	case types.MessageTypeFragmentStart, types.MessageTypeFragmentContinue, types.MessageTypeFragmentEnd:
		return d.dispatchFragment(pkt)

	default:
		return &bcerr.UnknownMessageTypeError{Discriminant: uint8(pkt.MessageType)}
	}
}

func (d *Dispatcher) dispatchFragment(pkt *packet.BitchatPacket) error {
	frag, err := fragmentation.DecodeFragment(d.fragMode, pkt.Payload)
	if err != nil {
		return err
	}

	payload, originalType, ok, err := d.reassembler.AddFragment(pkt.SenderID, frag)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	inner := &packet.BitchatPacket{
		MessageType: types.MessageType(originalType),
		SenderID:    pkt.SenderID,
		RecipientID: pkt.RecipientID,
		Timestamp:   pkt.Timestamp,
		Payload:     payload,
	}
	if err := d.Dispatch(inner); err != nil {
		return fmt.Errorf("handlers: dispatching reassembled message: %w", err)
	}
	return nil
}
