// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/types"
)

// LocalNetwork is the shared medium a set of LocalTransports deliver
// packets over, standing in for an actual radio or relay link in
// single-process tests and demos.
type LocalNetwork struct {
	mu    sync.Mutex
	peers map[types.PeerId]*Local
}

// NewLocalNetwork creates an empty LocalNetwork.
func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{peers: make(map[types.PeerId]*Local)}
}

func (n *LocalNetwork) register(id types.PeerId, t *Local) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[id] = t
}

func (n *LocalNetwork) unregister(id types.PeerId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

func (n *LocalNetwork) deliver(from types.PeerId, to types.PeerId, pkt *packet.BitchatPacket) error {
	n.mu.Lock()
	target, ok := n.peers[to]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: local delivery: %w", &bcerr.PeerNotFoundError{Peer: to})
	}
	select {
	case target.inbox <- Inbound{From: from, Packet: pkt}:
		return nil
	default:
		return fmt.Errorf("transport: local inbox full: %w", bcerr.ErrSendBufferFull)
	}
}

func (n *LocalNetwork) broadcast(from types.PeerId, pkt *packet.BitchatPacket) {
	n.mu.Lock()
	targets := make([]*Local, 0, len(n.peers))
	for id, t := range n.peers {
		if id == from {
			continue
		}
		targets = append(targets, t)
	}
	n.mu.Unlock()
	for _, t := range targets {
		select {
		case t.inbox <- Inbound{From: from, Packet: pkt}:
		default:
		}
	}
}

func (n *LocalNetwork) discoveredPeers(self types.PeerId) []types.PeerId {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]types.PeerId, 0, len(n.peers))
	for id := range n.peers {
		if id != self {
			peers = append(peers, id)
		}
	}
	return peers
}

// Local is an in-memory Transport over a LocalNetwork, used for
// single-process demos and tests where no real radio or relay is
// available.
type Local struct {
	id      types.PeerId
	network *LocalNetwork
	inbox   chan Inbound
	active  bool
	mu      sync.Mutex
}

// NewLocal creates a Local transport identified by id, registered on
// network once Start is called.
func NewLocal(id types.PeerId, network *LocalNetwork, inboxSize int) *Local {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	return &Local{id: id, network: network, inbox: make(chan Inbound, inboxSize)}
}

// Start registers this transport on its network.
func (l *Local) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.network.register(l.id, l)
	l.active = true
	return nil
}

// Stop unregisters this transport from its network.
func (l *Local) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.network.unregister(l.id)
	l.active = false
	return nil
}

// IsActive reports whether Start has run and Stop has not.
func (l *Local) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// SendTo delivers pkt to peer via the shared network.
func (l *Local) SendTo(ctx context.Context, peer types.PeerId, pkt *packet.BitchatPacket) error {
	if !l.IsActive() {
		return fmt.Errorf("transport: local send: %w", &bcerr.TransportUnavailableError{TransportType: "local"})
	}
	return l.network.deliver(l.id, peer, pkt)
}

// Broadcast delivers pkt to every other peer on the network.
func (l *Local) Broadcast(ctx context.Context, pkt *packet.BitchatPacket) error {
	if !l.IsActive() {
		return fmt.Errorf("transport: local broadcast: %w", &bcerr.TransportUnavailableError{TransportType: "local"})
	}
	l.network.broadcast(l.id, pkt)
	return nil
}

// Receive blocks until a packet arrives or ctx is cancelled.
func (l *Local) Receive(ctx context.Context) (Inbound, error) {
	select {
	case in := <-l.inbox:
		return in, nil
	case <-ctx.Done():
		return Inbound{}, fmt.Errorf("transport: local receive: %w", bcerr.ErrTimeout)
	}
}

// DiscoveredPeers reports every other peer currently registered on the
// network.
func (l *Local) DiscoveredPeers() []types.PeerId {
	return l.network.discoveredPeers(l.id)
}

// Capabilities reports the Local transport's fixed metadata: very high
// reliability, very low latency, no internet dependency, discovery and
// broadcast both supported, since it is a same-process loopback.
func (l *Local) Capabilities() Capabilities {
	return Capabilities{
		Type:              Local,
		MaxPacketSize:     1 << 20,
		SupportsDiscovery: true,
		SupportsBroadcast: true,
		RequiresInternet:  false,
		LatencyClass:      LatencyVeryLow,
		ReliabilityClass:  ReliabilityVeryHigh,
	}
}
