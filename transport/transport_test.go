// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/types"
)

func samplePacket(sender types.PeerId) *packet.BitchatPacket {
	return &packet.BitchatPacket{
		MessageType: types.MessageTypeAnnounce,
		SenderID:    sender,
		Timestamp:   1,
		Payload:     []byte("hi"),
	}
}

func TestLocalTransportSendAndReceive(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	b := NewLocal(types.PeerId{2}, net, 8)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	require.NoError(t, a.SendTo(ctx, types.PeerId{2}, samplePacket(types.PeerId{1})))

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	in, err := b.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, types.PeerId{1}, in.From)
}

func TestLocalTransportSendToUnknownPeerFails(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Stop()

	err := a.SendTo(ctx, types.PeerId{99}, samplePacket(types.PeerId{1}))
	assert.Error(t, err)
}

func TestLocalTransportDiscoveredPeers(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	b := NewLocal(types.PeerId{2}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	peers := a.DiscoveredPeers()
	require.Len(t, peers, 1)
	assert.Equal(t, types.PeerId{2}, peers[0])
}

func TestManagerFirstAvailableRouting(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	b := NewLocal(types.PeerId{2}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.Register(a)

	require.NoError(t, mgr.SendTo(ctx, types.PeerId{2}, samplePacket(types.PeerId{1})))
}

func TestManagerRouteToUnreachablePeerFails(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.Register(a)

	err := mgr.SendTo(ctx, types.PeerId{200}, samplePacket(types.PeerId{1}))
	assert.Error(t, err)
}

func TestManagerPreferenceOrderFallsBack(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8) // type Local
	b := NewLocal(types.PeerId{2}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: PreferenceOrder, Preference: []Type{ShortRange, Local}}, ts, nil)
	mgr.Register(a)

	require.NoError(t, mgr.SendTo(ctx, types.PeerId{2}, samplePacket(types.PeerId{1})))
}

func TestManagerBroadcastAll(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	b := NewLocal(types.PeerId{2}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.Register(a)

	errs := mgr.BroadcastAll(ctx, samplePacket(types.PeerId{1}))
	assert.Empty(t, errs)

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := b.Receive(recvCtx)
	assert.NoError(t, err)
}

func TestManagerHealthDegradesOnFailures(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.Register(a)
	mgr.SetScoreFloor(0.9)

	var switched []bool
	mgr.OnSwitchRecommended(func(typ Type, degraded bool) { switched = append(switched, degraded) })

	// Every send targets a peer not on the network, so every attempt fails.
	for i := 0; i < 3; i++ {
		_ = a.SendTo(ctx, types.PeerId{250}, samplePacket(types.PeerId{1}))
		mgr.recordOutcome(Local, false, time.Millisecond)
	}
	assert.True(t, mgr.IsDegraded(Local))
	require.NotEmpty(t, switched)
	assert.True(t, switched[0])
}

func TestManagerRetryQueueBounded(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.retryQueue = make(chan queuedPacket, 1)

	require.NoError(t, mgr.EnqueueRetry(types.PeerId{1}, samplePacket(types.PeerId{9})))
	err := mgr.EnqueueRetry(types.PeerId{1}, samplePacket(types.PeerId{9}))
	assert.Error(t, err)
}

func TestManagerDrainRetries(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	b := NewLocal(types.PeerId{2}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.Register(a)

	require.NoError(t, mgr.EnqueueRetry(types.PeerId{2}, samplePacket(types.PeerId{1})))
	sent := mgr.DrainRetries(ctx)
	assert.Equal(t, 1, sent)
}

func TestManagerAllDiscoveredPeersMerged(t *testing.T) {
	net := NewLocalNetwork()
	a := NewLocal(types.PeerId{1}, net, 8)
	b := NewLocal(types.PeerId{2}, net, 8)
	c := NewLocal(types.PeerId{3}, net, 8)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	require.NoError(t, c.Start(ctx))
	defer a.Stop()
	defer b.Stop()
	defer c.Stop()

	ts := types.NewVirtualTimeSource(0)
	mgr := NewManager(Policy{Kind: FirstAvailable}, ts, nil)
	mgr.Register(a)

	peers := mgr.AllDiscoveredPeers()
	assert.ElementsMatch(t, []types.PeerId{{2}, {3}}, peers)
}
