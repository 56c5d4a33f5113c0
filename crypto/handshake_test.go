// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitchat-mesh/core/crypto"
)

// runXX drives the three Noise-XX legs between a fresh initiator and
// responder and returns their completed transport ciphers.
func runXX(t *testing.T) (*crypto.TransportCipher, *crypto.TransportCipher, *crypto.StaticKeyPair, *crypto.StaticKeyPair) {
	t.Helper()

	aliceStatic, err := crypto.GenerateStaticKeyPair()
	require.NoError(t, err)
	bobStatic, err := crypto.GenerateStaticKeyPair()
	require.NoError(t, err)

	alice, err := crypto.NewHandshake(crypto.Initiator, aliceStatic)
	require.NoError(t, err)
	bob, err := crypto.NewHandshake(crypto.Responder, bobStatic)
	require.NoError(t, err)

	// -> e
	msg1, tc, err := alice.WriteMessage(nil)
	require.NoError(t, err)
	require.Nil(t, tc)

	_, tc, err = bob.ReadMessage(msg1)
	require.NoError(t, err)
	require.Nil(t, tc)

	// <- e, ee, s, es
	msg2, tc, err := bob.WriteMessage(nil)
	require.NoError(t, err)
	require.Nil(t, tc)

	_, tc, err = alice.ReadMessage(msg2)
	require.NoError(t, err)
	require.Nil(t, tc)
	require.Equal(t, bobStatic.PublicKeyBytes(), alice.PeerStatic())

	// -> s, se
	msg3, aliceCipher, err := alice.WriteMessage(nil)
	require.NoError(t, err)
	require.NotNil(t, aliceCipher)

	_, bobCipher, err := bob.ReadMessage(msg3)
	require.NoError(t, err)
	require.NotNil(t, bobCipher)
	require.Equal(t, aliceStatic.PublicKeyBytes(), bob.PeerStatic())

	return aliceCipher, bobCipher, aliceStatic, bobStatic
}

func TestHandshakeXXCompletesAndBindsStaticKeys(t *testing.T) {
	aliceCipher, bobCipher, _, _ := runXX(t)
	require.NotNil(t, aliceCipher)
	require.NotNil(t, bobCipher)
}

func TestTransportCipherRoundTrip(t *testing.T) {
	aliceCipher, bobCipher, _, _ := runXX(t)

	ct, err := aliceCipher.Encrypt([]byte("Hello, Bob!"))
	require.NoError(t, err)

	pt, err := bobCipher.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "Hello, Bob!", string(pt))
}

func TestTransportCipherBidirectional(t *testing.T) {
	aliceCipher, bobCipher, _, _ := runXX(t)

	ct, err := bobCipher.Encrypt([]byte("Hi Alice"))
	require.NoError(t, err)

	pt, err := aliceCipher.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "Hi Alice", string(pt))
}

func TestTransportCipherDecryptFailureIsNonRecoverable(t *testing.T) {
	aliceCipher, bobCipher, _, _ := runXX(t)

	ct, err := aliceCipher.Encrypt([]byte("message one"))
	require.NoError(t, err)
	ct[0] ^= 0xFF // corrupt ciphertext

	_, err = bobCipher.Decrypt(ct)
	require.Error(t, err)

	// The failed decrypt did not advance the receive nonce counter, so it
	// is now one behind the sender's: even an untampered subsequent
	// ciphertext will fail to decrypt under the same CipherState.
	ct2, err := aliceCipher.Encrypt([]byte("message two"))
	require.NoError(t, err)
	_, err = bobCipher.Decrypt(ct2)
	require.Error(t, err)
}

func TestStaticKeyPairFingerprintAndPeerId(t *testing.T) {
	kp, err := crypto.GenerateStaticKeyPair()
	require.NoError(t, err)

	fp := kp.Fingerprint()
	id := kp.PeerId()
	require.Equal(t, fp[:8], id[:])
}

func TestDeriveAuxiliaryKeyIsDeterministicPerPurpose(t *testing.T) {
	binding := []byte("some channel binding transcript material")

	k1, err := crypto.DeriveAuxiliaryKey(binding, "receipt-signing")
	require.NoError(t, err)
	k2, err := crypto.DeriveAuxiliaryKey(binding, "receipt-signing")
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := crypto.DeriveAuxiliaryKey(binding, "other-purpose")
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}
