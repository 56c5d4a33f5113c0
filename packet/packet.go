// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package packet implements the canonical binary envelope and the
// content-specific payload codecs carried inside it.
package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/types"
)

// minEnvelopeSize is the smallest possible encoded envelope: type(1) +
// sender(8) + presence(1) + timestamp(8) + length(4), with no recipient
// and zero-length payload.
const minEnvelopeSize = 1 + types.PeerIdSize + 1 + 8 + 4

// BitchatPacket is the outer envelope every message, handshake leg,
// fragment and acknowledgment travels in.
type BitchatPacket struct {
	MessageType types.MessageType
	SenderID    types.PeerId
	RecipientID *types.PeerId // nil means broadcast
	Timestamp   types.Timestamp
	Payload     []byte
}

// IsBroadcast reports whether the packet has no recipient.
func (p *BitchatPacket) IsBroadcast() bool {
	return p.RecipientID == nil
}

// Encode produces the canonical wire representation of p.
func (p *BitchatPacket) Encode() ([]byte, error) {
	if !p.MessageType.Valid() {
		return nil, &bcerr.UnknownMessageTypeError{Discriminant: uint8(p.MessageType)}
	}

	size := minEnvelopeSize + len(p.Payload)
	if p.RecipientID != nil {
		size += types.PeerIdSize
	}

	buf := make([]byte, size)
	off := 0
	buf[off] = uint8(p.MessageType)
	off++
	copy(buf[off:], p.SenderID[:])
	off += types.PeerIdSize

	if p.RecipientID != nil {
		buf[off] = 1
		off++
		copy(buf[off:], p.RecipientID[:])
		off += types.PeerIdSize
	} else {
		buf[off] = 0
		off++
	}

	binary.BigEndian.PutUint64(buf[off:], uint64(p.Timestamp))
	off += 8

	binary.BigEndian.PutUint32(buf[off:], uint32(len(p.Payload)))
	off += 4

	copy(buf[off:], p.Payload)
	return buf, nil
}

// Decode parses the canonical wire representation into a BitchatPacket.
func Decode(data []byte) (*BitchatPacket, error) {
	if len(data) < minEnvelopeSize {
		return nil, fmt.Errorf("packet: short envelope (%d bytes): %w", len(data), bcerr.ErrPayloadTooSmall)
	}

	off := 0
	mt := types.MessageType(data[off])
	off++
	if !mt.Valid() {
		return nil, &bcerr.UnknownMessageTypeError{Discriminant: uint8(mt)}
	}

	p := &BitchatPacket{MessageType: mt}
	copy(p.SenderID[:], data[off:off+types.PeerIdSize])
	off += types.PeerIdSize

	presence := data[off]
	off++
	switch presence {
	case 0:
		// broadcast, no recipient
	case 1:
		if len(data) < off+types.PeerIdSize {
			return nil, fmt.Errorf("packet: truncated recipient id: %w", bcerr.ErrMalformedHeader)
		}
		var rid types.PeerId
		copy(rid[:], data[off:off+types.PeerIdSize])
		p.RecipientID = &rid
		off += types.PeerIdSize
	default:
		return nil, fmt.Errorf("packet: invalid recipient presence byte %d: %w", presence, bcerr.ErrMalformedHeader)
	}

	if len(data) < off+8+4 {
		return nil, fmt.Errorf("packet: truncated header: %w", bcerr.ErrMalformedHeader)
	}
	p.Timestamp = types.Timestamp(binary.BigEndian.Uint64(data[off:]))
	off += 8

	length := binary.BigEndian.Uint32(data[off:])
	off += 4

	if uint64(len(data)-off) != uint64(length) {
		return nil, fmt.Errorf("packet: declared length %d does not match remaining %d bytes: %w", length, len(data)-off, bcerr.ErrMalformedHeader)
	}

	p.Payload = make([]byte, length)
	copy(p.Payload, data[off:])
	return p, nil
}
