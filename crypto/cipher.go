// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"fmt"

	"github.com/flynn/noise"

	"github.com/bitchat-mesh/core/bcerr"
)

// TransportCipher holds the pair of per-direction ChaCha20-Poly1305
// cipher states a completed Noise-XX handshake produces. Each direction
// keeps its own internal 64-bit nonce counter, so encrypt/decrypt calls
// must happen in the same order messages were sent — any gap or
// reordering surfaces as a decryption authentication failure, per the
// per-peer causal ordering guarantee this module relies on.
type TransportCipher struct {
	send *noise.CipherState
	recv *noise.CipherState
}

// newTransportCipher assigns the handshake's two cipher states to send
// and receive roles. Noise returns (cs1, cs2) = (initiator->responder
// cipher, responder->initiator cipher) regardless of which side asked
// for them; the local role decides which one is "send".
func newTransportCipher(role Role, cs1, cs2 *noise.CipherState) *TransportCipher {
	if role == Initiator {
		return &TransportCipher{send: cs1, recv: cs2}
	}
	return &TransportCipher{send: cs2, recv: cs1}
}

// Encrypt authenticates and encrypts plaintext under the send direction's
// key and current nonce counter.
func (tc *TransportCipher) Encrypt(plaintext []byte) ([]byte, error) {
	if tc == nil || tc.send == nil {
		return nil, fmt.Errorf("crypto: encrypt on closed cipher: %w", bcerr.ErrSessionNotEstablished)
	}
	return tc.send.Encrypt(nil, nil, plaintext), nil
}

// Decrypt authenticates and decrypts ciphertext under the receive
// direction's key and current nonce counter. A failure here is
// non-recoverable: the caller must transition its session to Failed.
func (tc *TransportCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if tc == nil || tc.recv == nil {
		return nil, fmt.Errorf("crypto: decrypt on closed cipher: %w", bcerr.ErrSessionNotEstablished)
	}
	pt, err := tc.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", bcerr.ErrDecryptionFailed)
	}
	return pt, nil
}

// Close drops this cipher's references to its key material. Like
// StaticKeyPair.Zero, this cannot reach into flynn/noise's unexported
// cipher-state storage, so it is best-effort: it ensures this module
// holds no further copy once a session is torn down.
func (tc *TransportCipher) Close() {
	if tc == nil {
		return
	}
	tc.send = nil
	tc.recv = nil
}
