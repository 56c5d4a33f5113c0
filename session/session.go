// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package session implements the per-peer Session state machine: a
// Handshaking session drives a Noise-XX exchange to Established, after
// which it is the sole owner of the transport ciphers used to encrypt
// and decrypt application payloads for that peer.
package session

import (
	"fmt"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/crypto"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/types"
)

// State is one of the three positions in the Session state machine.
type State int

const (
	Handshaking State = iota
	Established
	Failed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "Handshaking"
	case Established:
		return "Established"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Session is the per-peer encrypted channel state. Exactly one of
// handshake (while Handshaking) or cipher (while Established) is ever
// non-nil, and a Session in Failed holds neither — matching the
// invariant that handshakeState is present iff Handshaking and
// transportState is present iff Established.
type Session struct {
	peerID          types.PeerId
	peerFingerprint *types.Fingerprint
	state           State

	handshake *crypto.Handshake
	cipher    *crypto.TransportCipher

	createdAt    types.Timestamp
	lastActivity types.Timestamp
}

// newOutbound creates a Session in Handshaking as the initiator.
func newOutbound(peerID types.PeerId, local *crypto.StaticKeyPair, now types.Timestamp) (*Session, error) {
	hs, err := crypto.NewHandshake(crypto.Initiator, local)
	if err != nil {
		return nil, fmt.Errorf("session: new outbound handshake: %w", err)
	}
	return &Session{
		peerID:       peerID,
		state:        Handshaking,
		handshake:    hs,
		createdAt:    now,
		lastActivity: now,
	}, nil
}

// newInbound creates a Session in Handshaking as the responder.
func newInbound(peerID types.PeerId, local *crypto.StaticKeyPair, now types.Timestamp) (*Session, error) {
	hs, err := crypto.NewHandshake(crypto.Responder, local)
	if err != nil {
		return nil, fmt.Errorf("session: new inbound handshake: %w", err)
	}
	return &Session{
		peerID:       peerID,
		state:        Handshaking,
		handshake:    hs,
		createdAt:    now,
		lastActivity: now,
	}, nil
}

// PeerID returns the peer this session is with.
func (s *Session) PeerID() types.PeerId { return s.peerID }

// State returns the current position in the state machine.
func (s *Session) State() State { return s.state }

// IsEstablished reports whether encrypt/decrypt are currently usable.
func (s *Session) IsEstablished() bool { return s.state == Established }

// IsFailed reports whether this session is terminally failed; a new
// Session must be created via the Manager to re-establish with the peer.
func (s *Session) IsFailed() bool { return s.state == Failed }

// PeerFingerprint returns the remote static key's fingerprint, set when
// the handshake completes.
func (s *Session) PeerFingerprint() (types.Fingerprint, bool) {
	if s.peerFingerprint == nil {
		return types.Fingerprint{}, false
	}
	return *s.peerFingerprint, true
}

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() types.Timestamp { return s.createdAt }

// LastActivity returns the last time this session advanced the
// handshake or encrypted/decrypted a payload.
func (s *Session) LastActivity() types.Timestamp { return s.lastActivity }

// CreateHandshakeMessage produces this session's next outbound handshake
// leg. It fails if the session is not Handshaking.
func (s *Session) CreateHandshakeMessage(payload []byte, now types.Timestamp) ([]byte, error) {
	if s.state != Handshaking {
		return nil, fmt.Errorf("session: create handshake message in state %s: %w", s.state, bcerr.ErrInvalidState)
	}
	out, tc, err := s.handshake.WriteMessage(payload)
	if err != nil {
		s.fail("handshake")
		return nil, &bcerr.HandshakeFailedError{Peer: s.peerID, Reason: err.Error()}
	}
	s.completeIfReady(tc)
	s.lastActivity = now
	return out, nil
}

// ProcessHandshakeMessage advances the handshake with a message received
// from the peer. It returns any payload the peer attached, or nil if
// none. On completion the fingerprint is recorded and the session
// transitions to Established.
func (s *Session) ProcessHandshakeMessage(msg []byte, now types.Timestamp) ([]byte, error) {
	if s.state != Handshaking {
		return nil, fmt.Errorf("session: process handshake message in state %s: %w", s.state, bcerr.ErrInvalidState)
	}
	payload, tc, err := s.handshake.ReadMessage(msg)
	if err != nil {
		s.fail("handshake")
		return nil, &bcerr.HandshakeFailedError{Peer: s.peerID, Reason: err.Error()}
	}
	s.completeIfReady(tc)
	s.lastActivity = now
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

func (s *Session) completeIfReady(tc *crypto.TransportCipher) {
	if tc == nil {
		return
	}
	fp := s.handshake.PeerFingerprint()
	s.peerFingerprint = &fp
	s.cipher = tc
	s.handshake = nil
	s.state = Established
}

// Encrypt authenticates and encrypts plaintext for the peer. Only valid
// once Established.
func (s *Session) Encrypt(plaintext []byte, now types.Timestamp) ([]byte, error) {
	if s.state != Established {
		return nil, fmt.Errorf("session: encrypt in state %s: %w", s.state, bcerr.ErrSessionNotEstablished)
	}
	ct, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
		return nil, fmt.Errorf("session: encrypt: %w", bcerr.ErrEncryptionFailed)
	}
	s.lastActivity = now
	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(ct)))
	return ct, nil
}

// Decrypt authenticates and decrypts ciphertext from the peer. A
// decryption failure is non-recoverable and transitions this session to
// Failed: per-peer causal order is enforced by the cipher's own nonce
// counter, so a gap or out-of-order ciphertext fails here too.
func (s *Session) Decrypt(ciphertext []byte, now types.Timestamp) ([]byte, error) {
	if s.state != Established {
		return nil, fmt.Errorf("session: decrypt in state %s: %w", s.state, bcerr.ErrSessionNotEstablished)
	}
	pt, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		s.fail("decryption")
		return nil, fmt.Errorf("session: decrypt with peer %s: %w", s.peerID, bcerr.ErrDecryptionFailed)
	}
	s.lastActivity = now
	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(ciphertext)))
	return pt, nil
}

// fail transitions the session to Failed and scrubs all key material. A
// session in Failed never transitions back.
func (s *Session) fail(reason string) {
	if s.state == Failed {
		return
	}
	s.state = Failed
	s.cipher.Close()
	s.cipher = nil
	s.handshake = nil
	metrics.SessionsFailed.WithLabelValues(reason).Inc()
}

// timeSinceActivity returns now - lastActivity in milliseconds.
func (s *Session) timeSinceActivity(now types.Timestamp) int64 {
	return now.Sub(s.lastActivity)
}
