// Copyright (C) 2025 bitchat-mesh
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package types holds the stable identifiers, timestamps and enums shared
// across every other package in this module.
package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PeerIdSize is the length in bytes of a PeerId.
const PeerIdSize = 8

// FingerprintSize is the length in bytes of a Fingerprint.
const FingerprintSize = sha256.Size

// PeerId is an opaque identifier derived from the first PeerIdSize bytes of
// a peer's long-term static public key fingerprint.
type PeerId [PeerIdSize]byte

// PeerIdFromFingerprint derives a PeerId from a Fingerprint.
func PeerIdFromFingerprint(fp Fingerprint) PeerId {
	var id PeerId
	copy(id[:], fp[:PeerIdSize])
	return id
}

// PeerIdFromPublicKey derives a PeerId from a static public key's bytes,
// by hashing it and taking the first PeerIdSize bytes of the fingerprint.
func PeerIdFromPublicKey(pub []byte) PeerId {
	return PeerIdFromFingerprint(NewFingerprint(pub))
}

// Compare implements total byte-lexicographic ordering.
func (p PeerId) Compare(other PeerId) int {
	return bytes.Compare(p[:], other[:])
}

// String renders the PeerId as lowercase hex.
func (p PeerId) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the zero-value PeerId.
func (p PeerId) IsZero() bool {
	return p == PeerId{}
}

// Fingerprint is the SHA-256 digest of a static public key.
type Fingerprint [FingerprintSize]byte

// NewFingerprint computes the Fingerprint of a serialized public key.
func NewFingerprint(pub []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(pub))
}

// String renders the Fingerprint as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Timestamp is monotonically advancing milliseconds since the Unix epoch,
// always obtained from a TimeSource rather than read directly.
type Timestamp int64

// Sub returns the duration t - other expressed in milliseconds.
func (t Timestamp) Sub(other Timestamp) int64 {
	return int64(t) - int64(other)
}

// MessageType enumerates the closed set of BitchatPacket payload kinds.
type MessageType uint8

const (
	MessageTypeMessage MessageType = iota + 1
	MessageTypeDeliveryAck
	MessageTypeReadReceipt
	MessageTypeHandshakeInit
	MessageTypeHandshakeResponse
	MessageTypeHandshakeFinalize
	MessageTypeAnnounce
	MessageTypeRequestSync
	MessageTypeFragmentStart
	MessageTypeFragmentContinue
	MessageTypeFragmentEnd
)

var messageTypeNames = map[MessageType]string{
	MessageTypeMessage:           "Message",
	MessageTypeDeliveryAck:       "DeliveryAck",
	MessageTypeReadReceipt:       "ReadReceipt",
	MessageTypeHandshakeInit:     "HandshakeInit",
	MessageTypeHandshakeResponse: "HandshakeResponse",
	MessageTypeHandshakeFinalize: "HandshakeFinalize",
	MessageTypeAnnounce:          "Announce",
	MessageTypeRequestSync:       "RequestSync",
	MessageTypeFragmentStart:     "FragmentStart",
	MessageTypeFragmentContinue:  "FragmentContinue",
	MessageTypeFragmentEnd:       "FragmentEnd",
}

// String renders the MessageType's name, or a numeric placeholder for an
// unrecognized discriminant.
func (m MessageType) String() string {
	if name, ok := messageTypeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(m))
}

// Valid reports whether m is one of the closed set of known discriminants.
func (m MessageType) Valid() bool {
	_, ok := messageTypeNames[m]
	return ok
}

// IsFragment reports whether m is one of the fragment-carrying kinds.
func (m MessageType) IsFragment() bool {
	switch m {
	case MessageTypeFragmentStart, MessageTypeFragmentContinue, MessageTypeFragmentEnd:
		return true
	default:
		return false
	}
}

// MaxNicknameBytes bounds the sender-nickname field carried by
// acknowledgment payloads.
const MaxNicknameBytes = 64

// MaxSenderBytes bounds BitchatMessage.Sender.
const MaxSenderBytes = 64
