// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/types"
)

// EncodeBitchatMessage serializes a BitchatMessage for use as a Message
// packet's payload: id(16) || createdAt(8, big-endian ms) ||
// senderLen(1) || sender || content (remaining bytes, UTF-8).
func EncodeBitchatMessage(m types.BitchatMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	sender := []byte(m.Sender)
	content := []byte(m.Content)

	buf := make([]byte, 16+8+1+len(sender)+len(content))
	off := 0
	copy(buf[off:], m.ID[:])
	off += 16
	binary.BigEndian.PutUint64(buf[off:], uint64(m.CreatedAt))
	off += 8
	buf[off] = uint8(len(sender))
	off++
	copy(buf[off:], sender)
	off += len(sender)
	copy(buf[off:], content)
	return buf, nil
}

// DecodeBitchatMessage parses a Message packet's payload.
func DecodeBitchatMessage(data []byte) (types.BitchatMessage, error) {
	if len(data) < 16+8+1 {
		return types.BitchatMessage{}, fmt.Errorf("packet: message payload too small: %w", bcerr.ErrPayloadTooSmall)
	}
	var m types.BitchatMessage
	off := 0
	id, err := uuid.FromBytes(data[off : off+16])
	if err != nil {
		return types.BitchatMessage{}, fmt.Errorf("packet: malformed message id: %w", bcerr.ErrMalformedHeader)
	}
	m.ID = id
	off += 16
	m.CreatedAt = types.Timestamp(binary.BigEndian.Uint64(data[off:]))
	off += 8

	senderLen := int(data[off])
	off++
	if len(data) < off+senderLen {
		return types.BitchatMessage{}, fmt.Errorf("packet: truncated sender field: %w", bcerr.ErrMalformedHeader)
	}
	m.Sender = string(data[off : off+senderLen])
	off += senderLen
	m.Content = string(data[off:])
	return m, nil
}

// AckPayload is the shared wire shape of DeliveryAck and ReadReceipt
// payloads: a 16-byte message UUID followed by an optional length-prefixed
// UTF-8 nickname of at most types.MaxNicknameBytes bytes.
type AckPayload struct {
	MessageID uuid.UUID
	Nickname  string // empty means absent
}

// Encode serializes an AckPayload.
func (a AckPayload) Encode() ([]byte, error) {
	nickname := []byte(a.Nickname)
	if len(nickname) > types.MaxNicknameBytes {
		return nil, fmt.Errorf("packet: nickname exceeds %d bytes: %w", types.MaxNicknameBytes, bcerr.ErrPayloadTooLarge)
	}

	if len(nickname) == 0 {
		buf := make([]byte, 16+1)
		copy(buf, a.MessageID[:])
		buf[16] = 0
		return buf, nil
	}

	buf := make([]byte, 16+1+1+len(nickname))
	copy(buf, a.MessageID[:])
	buf[16] = 1
	buf[17] = uint8(len(nickname))
	copy(buf[18:], nickname)
	return buf, nil
}

// DecodeAckPayload parses an AckPayload.
func DecodeAckPayload(data []byte) (AckPayload, error) {
	if len(data) < 17 {
		return AckPayload{}, fmt.Errorf("packet: ack payload too small: %w", bcerr.ErrPayloadTooSmall)
	}
	id, err := uuid.FromBytes(data[0:16])
	if err != nil {
		return AckPayload{}, fmt.Errorf("packet: malformed ack message id: %w", bcerr.ErrMalformedHeader)
	}
	a := AckPayload{MessageID: id}
	if data[16] == 0 {
		return a, nil
	}
	if len(data) < 18 {
		return AckPayload{}, fmt.Errorf("packet: truncated nickname length: %w", bcerr.ErrMalformedHeader)
	}
	nickLen := int(data[17])
	if nickLen > types.MaxNicknameBytes || len(data) < 18+nickLen {
		return AckPayload{}, fmt.Errorf("packet: truncated or oversized nickname: %w", bcerr.ErrMalformedHeader)
	}
	a.Nickname = string(data[18 : 18+nickLen])
	return a, nil
}
