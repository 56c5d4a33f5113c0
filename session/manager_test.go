// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/crypto"
	"github.com/bitchat-mesh/core/types"
)

func newTestManager(t *testing.T, ts types.TimeSource) (*Manager, *crypto.StaticKeyPair) {
	t.Helper()
	kp, err := crypto.GenerateStaticKeyPair()
	require.NoError(t, err)
	m := NewManager(Config{
		Local:           kp,
		TimeSource:      ts,
		CleanupInterval: time.Hour, // tests drive CleanupExpired explicitly
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, kp
}

// handshakeThrough drives a full Noise-XX exchange between two Managers
// acting for peers a and b, mirroring crypto/handshake_test.go's runXX
// but through the Session/Manager layer.
func handshakeThrough(t *testing.T, a, b *Manager, peerOfA, peerOfB types.PeerId) {
	t.Helper()

	_, err := a.GetOrCreateOutbound(peerOfA)
	require.NoError(t, err)

	// -> e
	msg1, err := a.CreateHandshakeMessage(peerOfA, nil)
	require.NoError(t, err)

	_, err = b.CreateInbound(peerOfB)
	require.NoError(t, err)
	_, err = b.ProcessHandshakeMessage(peerOfB, msg1)
	require.NoError(t, err)

	// <- e, ee, s, es
	msg2, err := b.CreateHandshakeMessage(peerOfB, nil)
	require.NoError(t, err)
	_, err = a.ProcessHandshakeMessage(peerOfA, msg2)
	require.NoError(t, err)

	// -> s, se
	msg3, err := a.CreateHandshakeMessage(peerOfA, nil)
	require.NoError(t, err)
	_, err = b.ProcessHandshakeMessage(peerOfB, msg3)
	require.NoError(t, err)

	sa, ok := a.GetSession(peerOfA)
	require.True(t, ok)
	sb, ok := b.GetSession(peerOfB)
	require.True(t, ok)
	assert.True(t, sa.IsEstablished())
	assert.True(t, sb.IsEstablished())
}

func TestManagerHandshakeCompletesAndEncryptsRoundTrip(t *testing.T) {
	ts := types.NewVirtualTimeSource(1000)
	a, _ := newTestManager(t, ts)
	b, _ := newTestManager(t, ts)

	var peerA, peerB types.PeerId
	peerA[0] = 0xAA
	peerB[0] = 0xBB

	handshakeThrough(t, a, b, peerB, peerA)

	ct, err := a.Encrypt(peerB, []byte("hello from a"))
	require.NoError(t, err)
	pt, err := b.Decrypt(peerA, ct)
	require.NoError(t, err)
	assert.Equal(t, "hello from a", string(pt))

	ct2, err := b.Encrypt(peerA, []byte("hello from b"))
	require.NoError(t, err)
	pt2, err := a.Decrypt(peerB, ct2)
	require.NoError(t, err)
	assert.Equal(t, "hello from b", string(pt2))
}

func TestGetOrCreateOutboundIsNoOpIfPresent(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	m, _ := newTestManager(t, ts)
	var peer types.PeerId
	peer[0] = 0x01

	s1, err := m.GetOrCreateOutbound(peer)
	require.NoError(t, err)
	s2, err := m.GetOrCreateOutbound(peer)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestCreateInboundAlwaysOverwrites(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	m, _ := newTestManager(t, ts)
	var peer types.PeerId
	peer[0] = 0x02

	s1, err := m.CreateInbound(peer)
	require.NoError(t, err)
	s2, err := m.CreateInbound(peer)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	got, ok := m.GetSession(peer)
	require.True(t, ok)
	assert.Same(t, s2, got)
}

func TestOperationsOnUnknownPeerReturnPeerNotFound(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	m, _ := newTestManager(t, ts)
	var peer types.PeerId
	peer[0] = 0x03

	_, err := m.CreateHandshakeMessage(peer, nil)
	var pnf *bcerr.PeerNotFoundError
	require.ErrorAs(t, err, &pnf)

	_, err = m.ProcessHandshakeMessage(peer, []byte{1, 2, 3})
	require.ErrorAs(t, err, &pnf)

	_, err = m.Encrypt(peer, []byte("x"))
	require.ErrorAs(t, err, &pnf)

	_, err = m.Decrypt(peer, []byte("x"))
	require.ErrorAs(t, err, &pnf)
}

func TestCleanupExpiredHandshaking(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	m, _ := newTestManager(t, ts)
	var peer types.PeerId
	peer[0] = 0x04

	_, err := m.GetOrCreateOutbound(peer)
	require.NoError(t, err)

	ts.Advance(29 * time.Second)
	removed := m.CleanupExpired()
	assert.Empty(t, removed)

	ts.Advance(2 * time.Second) // now 31s since creation, past 30s handshake timeout
	removed = m.CleanupExpired()
	assert.Equal(t, []types.PeerId{peer}, removed)
	_, ok := m.GetSession(peer)
	assert.False(t, ok)
}

func TestCleanupExpiredEstablishedIdle(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	a, _ := newTestManager(t, ts)
	b, _ := newTestManager(t, ts)
	var peerA, peerB types.PeerId
	peerA[0] = 0x05
	peerB[0] = 0x06

	handshakeThrough(t, a, b, peerB, peerA)

	ts.Advance(59 * time.Second)
	removed := a.CleanupExpired()
	assert.Empty(t, removed)

	ts.Advance(2 * time.Second) // 61s idle, past the 60s Established timeout
	removed = a.CleanupExpired()
	assert.Equal(t, []types.PeerId{peerB}, removed)
}

func TestCleanupExpiredFailedGrace(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	a, _ := newTestManager(t, ts)
	b, _ := newTestManager(t, ts)
	var peerA, peerB types.PeerId
	peerA[0] = 0x07
	peerB[0] = 0x08

	handshakeThrough(t, a, b, peerB, peerA)

	// Corrupt a ciphertext so b's decrypt fails and its session fails.
	ct, err := a.Encrypt(peerB, []byte("payload"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF
	_, err = b.Decrypt(peerA, ct)
	require.Error(t, err)

	s, ok := b.GetSession(peerA)
	require.True(t, ok)
	assert.True(t, s.IsFailed())

	ts.Advance(2 * time.Second) // past the 1s failed grace period
	removed := b.CleanupExpired()
	assert.Equal(t, []types.PeerId{peerA}, removed)
}

func TestDecryptFailureFailsSessionAndRejectsFurtherUse(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	a, _ := newTestManager(t, ts)
	b, _ := newTestManager(t, ts)
	var peerA, peerB types.PeerId
	peerA[0] = 0x09
	peerB[0] = 0x0A

	handshakeThrough(t, a, b, peerB, peerA)

	ct, err := a.Encrypt(peerB, []byte("payload"))
	require.NoError(t, err)
	ct[0] ^= 0xFF
	_, err = b.Decrypt(peerA, ct)
	require.Error(t, err)

	// Subsequent encrypt/decrypt on the now-Failed session are rejected.
	_, err = b.Encrypt(peerA, []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bcerr.ErrSessionNotEstablished))

	_, err = b.Decrypt(peerA, []byte("y"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bcerr.ErrSessionNotEstablished))

	// A fresh GetOrCreateOutbound yields an unrelated new Handshaking
	// session rather than resurrecting the failed one.
	b.RemoveSession(peerA)
	fresh, err := b.GetOrCreateOutbound(peerA)
	require.NoError(t, err)
	assert.Equal(t, Handshaking, fresh.State())
}

func TestSessionCounts(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	a, _ := newTestManager(t, ts)
	b, _ := newTestManager(t, ts)
	var peerA, peerB, peerC types.PeerId
	peerA[0] = 0x0B
	peerB[0] = 0x0C
	peerC[0] = 0x0D

	handshakeThrough(t, a, b, peerB, peerA)
	_, err := a.GetOrCreateOutbound(peerC)
	require.NoError(t, err)

	handshaking, established, failed := a.SessionCounts()
	assert.Equal(t, 1, handshaking)
	assert.Equal(t, 1, established)
	assert.Equal(t, 0, failed)
}
