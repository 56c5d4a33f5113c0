// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"fmt"

	"github.com/flynn/noise"

	"github.com/bitchat-mesh/core/types"
)

// cipherSuite is the fixed Noise cipher suite this module speaks:
// X25519 for DH, ChaCha20-Poly1305 for the handshake AEAD, SHA-256 for
// the hash function — the same triple the pack's Noise-XX implementations
// (e.g. the TunGo noise transport) standardize on.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Role distinguishes the handshake initiator from the responder. Either
// side of a Session may take either role; the role only decides which of
// the two completed cipher states is used to encrypt versus decrypt.
type Role int

const (
	Initiator Role = iota
	Responder
)

// Handshake drives one mutually-authenticated Noise-XX exchange:
// "-> e", "<- e, ee, s, es", "-> s, se". Three legs suffice to
// authenticate both static keys and derive a pair of transport ciphers.
type Handshake struct {
	role Role
	hs   *noise.HandshakeState
	done bool
}

// NewHandshake creates a Handshake for the given role, bound to the
// local peer's static identity keypair.
func NewHandshake(role Role, static *StaticKeyPair) (*Handshake, error) {
	dhKey := noise.DHKey{
		Private: static.PrivateKeyBytes(),
		Public:  static.PublicKeyBytes(),
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		StaticKeypair: dhKey,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: new handshake state: %w", err)
	}
	return &Handshake{role: role, hs: hs}, nil
}

// Done reports whether both transport ciphers have been derived.
func (h *Handshake) Done() bool {
	return h.done
}

// WriteMessage produces this role's next outbound handshake leg, carrying
// an optional application payload (only meaningful on the final leg; the
// pack's Noise-XX usages attach payload data to message 3). On the leg
// that completes the handshake it returns a ready *TransportCipher;
// out must still be sent to the peer in that case too.
func (h *Handshake) WriteMessage(payload []byte) (out []byte, tc *TransportCipher, err error) {
	if h.done {
		return nil, nil, fmt.Errorf("crypto: handshake already complete")
	}
	out, cs1, cs2, err := h.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: write handshake message: %w", err)
	}
	if cs1 != nil && cs2 != nil {
		h.done = true
		h.zeroEphemeral()
		tc = newTransportCipher(h.role, cs1, cs2)
	}
	return out, tc, nil
}

// ReadMessage consumes the peer's next handshake leg and returns any
// payload it carried. On the leg that completes the handshake it returns
// a ready *TransportCipher.
func (h *Handshake) ReadMessage(msg []byte) (payload []byte, tc *TransportCipher, err error) {
	if h.done {
		return nil, nil, fmt.Errorf("crypto: handshake already complete")
	}
	payload, cs1, cs2, err := h.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: read handshake message: %w", err)
	}
	if cs1 != nil && cs2 != nil {
		h.done = true
		h.zeroEphemeral()
		tc = newTransportCipher(h.role, cs1, cs2)
	}
	return payload, tc, nil
}

// zeroEphemeral scrubs this handshake's ephemeral private key once it can
// no longer be needed for a DH operation, mirroring the pack's Noise-XX
// implementations' deferred ZeroBytes(localEph.Private) pattern.
func (h *Handshake) zeroEphemeral() {
	eph := h.hs.LocalEphemeral()
	ZeroBytes(eph.Private)
}

// PeerStatic returns the remote party's static public key, available only
// after the leg that reveals it (message 2 for the initiator, message 3
// for the responder). Its Fingerprint becomes the session's
// peerFingerprint.
func (h *Handshake) PeerStatic() []byte {
	return h.hs.PeerStatic()
}

// PeerFingerprint is a convenience wrapper computing the Fingerprint of
// PeerStatic().
func (h *Handshake) PeerFingerprint() types.Fingerprint {
	return types.NewFingerprint(h.PeerStatic())
}

// ChannelBinding returns a value unique to this handshake's transcript,
// used to derive a stable session identifier both sides agree on without
// further negotiation.
func (h *Handshake) ChannelBinding() []byte {
	return h.hs.ChannelBinding()
}
