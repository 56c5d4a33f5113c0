// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"github.com/bitchat-mesh/core/types"
)

// StaticKeyPair is a peer's long-term X25519 identity keypair. Its public
// key bytes are the root of the peer's Fingerprint and PeerId, the way the
// teacher's key types derive an ID from a hash of the public key.
type StaticKeyPair struct {
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey
}

// GenerateStaticKeyPair produces a fresh X25519 identity keypair using a
// cryptographically secure RNG.
func GenerateStaticKeyPair() (*StaticKeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate static keypair: %w", err)
	}
	return &StaticKeyPair{private: priv, public: priv.PublicKey()}, nil
}

// StaticKeyPairFromPrivate reconstructs a StaticKeyPair from a previously
// generated 32-byte X25519 private scalar, e.g. one loaded from an
// identity file by a host application.
func StaticKeyPairFromPrivate(raw []byte) (*StaticKeyPair, error) {
	priv, err := ecdh.X25519().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse static private key: %w", err)
	}
	return &StaticKeyPair{private: priv, public: priv.PublicKey()}, nil
}

// PublicKeyBytes returns the raw 32-byte X25519 public key.
func (k *StaticKeyPair) PublicKeyBytes() []byte {
	return k.public.Bytes()
}

// PrivateKeyBytes returns the raw 32-byte X25519 private scalar.
func (k *StaticKeyPair) PrivateKeyBytes() []byte {
	return k.private.Bytes()
}

// Fingerprint is the SHA-256 digest of the public key.
func (k *StaticKeyPair) Fingerprint() types.Fingerprint {
	return types.NewFingerprint(k.PublicKeyBytes())
}

// PeerId derives this keypair's PeerId from its Fingerprint.
func (k *StaticKeyPair) PeerId() types.PeerId {
	return types.PeerIdFromFingerprint(k.Fingerprint())
}

// Zero best-effort scrubs a copy of the private scalar. crypto/ecdh does
// not expose the key's internal storage, so this cannot guarantee the
// original backing array is overwritten; it drops this keypair's only
// other reference to the copy returned by Bytes() so it isn't retained.
func (k *StaticKeyPair) Zero() {
	ZeroBytes(k.private.Bytes())
	k.private = nil
	k.public = nil
}

// ZeroBytes overwrites b with zeros in place. Used throughout this package
// to scrub ephemeral and session key material once it is no longer needed,
// the way the pack's Noise-XX implementations scrub handshake ephemerals.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
