// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package bcerr is the taxonomy of errors this module's components return,
// mirrored one concrete Go value (a sentinel or a typed error) per leaf
// of the error taxonomy: callers
// match on them with errors.Is/errors.As rather than string comparison.
package bcerr

import (
	"errors"
	"fmt"

	"github.com/bitchat-mesh/core/types"
)

// Sentinel errors with no associated data. Components wrap these with
// fmt.Errorf("...: %w", ...) to attach context as they cross a boundary.
var (
	// Cryptographic
	ErrSignatureVerificationFailed = errors.New("bcerr: signature verification failed")
	ErrEncryptionFailed             = errors.New("bcerr: encryption failed")
	ErrDecryptionFailed             = errors.New("bcerr: decryption failed")
	ErrKeyDerivationFailed          = errors.New("bcerr: key derivation failed")
	ErrInvalidKeyFormat             = errors.New("bcerr: invalid key format")
	ErrRandomGenerationFailed       = errors.New("bcerr: random generation failed")

	// Packet
	ErrPayloadTooSmall      = errors.New("bcerr: payload too small")
	ErrPayloadTooLarge      = errors.New("bcerr: payload too large")
	ErrUnknownMessageType   = errors.New("bcerr: unknown message type")
	ErrMalformedHeader      = errors.New("bcerr: malformed header")
	ErrChecksumFailed       = errors.New("bcerr: checksum failed")
	ErrFragmentSequenceErr  = errors.New("bcerr: fragment sequence error")
	ErrDuplicateFragment    = errors.New("bcerr: duplicate fragment")
	ErrInvalidRecipientId   = errors.New("bcerr: invalid recipient id")
	ErrInvalidSenderId      = errors.New("bcerr: invalid sender id")
	ErrInvalidPacket        = errors.New("bcerr: invalid packet")

	// Transport
	ErrSendBufferFull    = errors.New("bcerr: send buffer full")
	ErrReceiveFailed     = errors.New("bcerr: receive failed")
	ErrTimeout           = errors.New("bcerr: timeout")
	ErrProtocolMismatch  = errors.New("bcerr: protocol mismatch")
	ErrInvalidConfig     = errors.New("bcerr: invalid configuration")
	ErrShutdown          = errors.New("bcerr: shut down")
	ErrAuthenticationFailed = errors.New("bcerr: authentication failed")

	// Session
	ErrSessionNotFound      = errors.New("bcerr: session not found")
	ErrSessionNotEstablished = errors.New("bcerr: session not established")
	ErrSessionTimeout       = errors.New("bcerr: session timeout")
	ErrInvalidState         = errors.New("bcerr: invalid session state")
	ErrKeyRotationFailed    = errors.New("bcerr: key rotation failed")
	ErrSessionAlreadyExists = errors.New("bcerr: session already exists")
	ErrMaxSessionsReached   = errors.New("bcerr: maximum sessions reached")

	// Fragmentation
	ErrFragmentTooLarge   = errors.New("bcerr: fragment too large")
	ErrMessageTooLarge    = errors.New("bcerr: message too large")
	ErrFragmentSizeTooSmall = errors.New("bcerr: fragment size too small")
	ErrMissingFragments   = errors.New("bcerr: missing fragments")
	ErrFragmentTimeout    = errors.New("bcerr: fragment timeout")
	ErrBufferOverflow     = errors.New("bcerr: reassembly buffer overflow")
	ErrInvalidHeader      = errors.New("bcerr: invalid fragment header")
	ErrNotSupported       = errors.New("bcerr: operation not supported")
	ErrFragmentMismatch   = errors.New("bcerr: fragment mismatch")

	// Deduplication
	ErrDuplicatePacket = errors.New("bcerr: duplicate packet")

	// Cross-cutting
	ErrSerialization   = errors.New("bcerr: serialization failed")
	ErrDeserialization = errors.New("bcerr: deserialization failed")
	ErrChannel         = errors.New("bcerr: channel error")
	ErrConfiguration   = errors.New("bcerr: configuration error")
	ErrRateLimited      = errors.New("bcerr: rate limited")
)

// ConnectionFailedError is TransportError::ConnectionFailed{peer_id, reason}.
type ConnectionFailedError struct {
	Peer   types.PeerId
	Reason string
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("bcerr: connection to peer %s failed: %s", e.Peer, e.Reason)
}

// TransportUnavailableError is TransportError::TransportUnavailable.
type TransportUnavailableError struct {
	TransportType string
}

func (e *TransportUnavailableError) Error() string {
	return fmt.Sprintf("bcerr: transport %q unavailable", e.TransportType)
}

// PeerNotFoundError is TransportError::PeerNotFound / routing failure.
type PeerNotFoundError struct {
	Peer types.PeerId
}

func (e *PeerNotFoundError) Error() string {
	return fmt.Sprintf("bcerr: peer %s not found by any transport", e.Peer)
}

// Unwrap allows errors.Is(err, bcerr.ErrPeerNotFound) style checks
// against the sentinel, while still carrying the offending peer.
func (e *PeerNotFoundError) Unwrap() error { return errPeerNotFoundSentinel }

var errPeerNotFoundSentinel = errors.New("bcerr: peer not found")

// ErrPeerNotFound is the sentinel matched via errors.Is against any
// *PeerNotFoundError.
var ErrPeerNotFound = errPeerNotFoundSentinel

// HandshakeFailedError is SessionError::HandshakeFailed{peer_id, reason}.
type HandshakeFailedError struct {
	Peer   types.PeerId
	Reason string
}

func (e *HandshakeFailedError) Error() string {
	return fmt.Sprintf("bcerr: handshake with peer %s failed: %s", e.Peer, e.Reason)
}

func (e *HandshakeFailedError) Unwrap() error { return errHandshakeFailedSentinel }

var errHandshakeFailedSentinel = errors.New("bcerr: handshake failed")

// ErrHandshakeFailed is the sentinel matched via errors.Is against any
// *HandshakeFailedError.
var ErrHandshakeFailed = errHandshakeFailedSentinel

// UnknownMessageTypeError names the offending discriminant.
type UnknownMessageTypeError struct {
	Discriminant uint8
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("bcerr: unknown message type discriminant %d", e.Discriminant)
}

func (e *UnknownMessageTypeError) Unwrap() error { return ErrUnknownMessageType }
