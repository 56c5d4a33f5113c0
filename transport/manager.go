// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/types"
)

// DefaultHealthWindow is how many recent send outcomes each
// transport's health tracker retains.
const DefaultHealthWindow = 20

// DefaultScoreFloor is the success-rate threshold below which a
// transport is marked degraded.
const DefaultScoreFloor = 0.5

// DefaultRetryQueueSize bounds the Manager's pending-retry queue.
const DefaultRetryQueueSize = 256

// DefaultHealthCheckInterval governs how often the background health
// monitor refreshes the discovered-peer gauges.
const DefaultHealthCheckInterval = 5 * time.Second

// healthSample is one recorded send outcome, kept in a fixed-size ring
// buffer per transport.
type healthSample struct {
	success bool
	latency time.Duration
}

// health tracks a moving window of send outcomes for one transport as
// a fixed-size ring buffer.
type health struct {
	mu       sync.Mutex
	samples  []healthSample
	next     int
	filled   int
	window   int
	degraded bool
}

func newHealth(window int) *health {
	return &health{samples: make([]healthSample, window), window: window}
}

func (h *health) record(success bool, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = healthSample{success: success, latency: latency}
	h.next = (h.next + 1) % h.window
	if h.filled < h.window {
		h.filled++
	}
}

func (h *health) successRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.filled == 0 {
		return 1
	}
	var ok int
	for i := 0; i < h.filled; i++ {
		if h.samples[i].success {
			ok++
		}
	}
	return float64(ok) / float64(h.filled)
}

// SwitchRecommendedFunc is invoked when a transport's health crosses
// the degraded threshold in either direction.
type SwitchRecommendedFunc func(t Type, degraded bool)

// Manager holds an ordered collection of Transports and a routing
// Policy, and tracks each transport's recent send health to mark it
// degraded when its success rate falls below a floor.
type Manager struct {
	mu         sync.RWMutex
	transports map[Type]Transport
	order      []Type
	policy     Policy
	healthOf   map[Type]*health
	scoreFloor float64
	onSwitch   SwitchRecommendedFunc

	retryQueue chan queuedPacket

	now types.TimeSource
	log logger.Logger

	stopMonitor chan struct{}
	monitorDone chan struct{}
}

type queuedPacket struct {
	peer types.PeerId
	pkt  *packet.BitchatPacket
}

// NewManager creates a Manager with the given Policy.
func NewManager(policy Policy, now types.TimeSource, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		transports: make(map[Type]Transport),
		policy:     policy,
		healthOf:   make(map[Type]*health),
		scoreFloor: DefaultScoreFloor,
		retryQueue: make(chan queuedPacket, DefaultRetryQueueSize),
		now:        now,
		log:        log,
	}
}

// SetScoreFloor overrides DefaultScoreFloor.
func (m *Manager) SetScoreFloor(floor float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoreFloor = floor
}

// OnSwitchRecommended registers fn to be called whenever a transport's
// degraded status changes.
func (m *Manager) OnSwitchRecommended(fn SwitchRecommendedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwitch = fn
}

// Register adds t to the Manager under its declared Type, appending to
// the routing order used to break ties between transports of equal
// preference.
func (m *Manager) Register(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	typ := t.Capabilities().Type
	if _, exists := m.transports[typ]; !exists {
		m.order = append(m.order, typ)
	}
	m.transports[typ] = t
	m.healthOf[typ] = newHealth(DefaultHealthWindow)
}

// routeFor picks a transport for peer under the Manager's Policy.
// Callers must hold m.mu for reading.
func (m *Manager) routeFor(peer types.PeerId) (Transport, error) {
	reachable := func(t Transport) bool {
		if !t.IsActive() {
			return false
		}
		for _, p := range t.DiscoveredPeers() {
			if p == peer {
				return true
			}
		}
		return false
	}

	switch m.policy.Kind {
	case PreferenceOrder:
		for _, typ := range m.policy.Preference {
			if t, ok := m.transports[typ]; ok && reachable(t) {
				return t, nil
			}
		}
		fallthrough
	case FirstAvailable, CustomPolicy:
		for _, typ := range m.order {
			if t := m.transports[typ]; reachable(t) {
				return t, nil
			}
		}
	case LowestLatency:
		var best Transport
		bestClass := LatencyClass(1<<31 - 1)
		for _, typ := range m.order {
			t := m.transports[typ]
			if !reachable(t) {
				continue
			}
			if c := t.Capabilities().LatencyClass; c < bestClass {
				best, bestClass = t, c
			}
		}
		if best != nil {
			return best, nil
		}
	case HighestReliability:
		var best Transport
		bestClass := ReliabilityClass(-1)
		for _, typ := range m.order {
			t := m.transports[typ]
			if !reachable(t) {
				continue
			}
			if c := t.Capabilities().ReliabilityClass; c > bestClass {
				best, bestClass = t, c
			}
		}
		if best != nil {
			return best, nil
		}
	}
	return nil, &bcerr.PeerNotFoundError{Peer: peer}
}

// SendTo routes pkt to peer via the policy-selected transport and
// records the outcome against that transport's health tracker.
func (m *Manager) SendTo(ctx context.Context, peer types.PeerId, pkt *packet.BitchatPacket) error {
	m.mu.RLock()
	t, err := m.routeFor(peer)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("transport: route to %s: %w", peer, err)
	}

	typ := t.Capabilities().Type
	start := time.Now()
	sendErr := t.SendTo(ctx, peer, pkt)
	latency := time.Since(start)

	m.recordOutcome(typ, sendErr == nil, latency)
	if sendErr != nil {
		return fmt.Errorf("transport: send to %s via %s: %w", peer, typ, sendErr)
	}
	return nil
}

// BroadcastAll sends pkt over every active, broadcast-capable
// registered transport, returning the errors of those that failed.
func (m *Manager) BroadcastAll(ctx context.Context, pkt *packet.BitchatPacket) []error {
	m.mu.RLock()
	transports := make([]Transport, 0, len(m.transports))
	for _, typ := range m.order {
		transports = append(transports, m.transports[typ])
	}
	m.mu.RUnlock()

	var errs []error
	for _, t := range transports {
		if !t.IsActive() || !t.Capabilities().SupportsBroadcast {
			continue
		}
		typ := t.Capabilities().Type
		start := time.Now()
		err := t.Broadcast(ctx, pkt)
		m.recordOutcome(typ, err == nil, time.Since(start))
		if err != nil {
			errs = append(errs, fmt.Errorf("transport: broadcast via %s: %w", typ, err))
		}
	}
	return errs
}

// AllDiscoveredPeers merges DiscoveredPeers across every registered,
// active transport, deduplicated.
func (m *Manager) AllDiscoveredPeers() []types.PeerId {
	m.mu.RLock()
	transports := make([]Transport, 0, len(m.transports))
	for _, t := range m.transports {
		transports = append(transports, t)
	}
	m.mu.RUnlock()

	seen := make(map[types.PeerId]struct{})
	var merged []types.PeerId
	for _, t := range transports {
		if !t.IsActive() {
			continue
		}
		for _, p := range t.DiscoveredPeers() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

func (m *Manager) recordOutcome(typ Type, success bool, latency time.Duration) {
	m.mu.RLock()
	h := m.healthOf[typ]
	m.mu.RUnlock()
	if h == nil {
		return
	}
	h.record(success, latency)

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.TransportSends.WithLabelValues(typ.String(), outcome).Inc()
	metrics.TransportLatency.WithLabelValues(typ.String()).Observe(latency.Seconds())

	m.mu.Lock()
	floor := m.scoreFloor
	onSwitch := m.onSwitch
	m.mu.Unlock()

	rate := h.successRate()
	h.mu.Lock()
	wasDegraded := h.degraded
	nowDegraded := rate < floor
	h.degraded = nowDegraded
	h.mu.Unlock()

	if nowDegraded != wasDegraded {
		degradedValue := float64(0)
		if nowDegraded {
			degradedValue = 1
		}
		metrics.TransportDegraded.WithLabelValues(typ.String()).Set(degradedValue)
		m.log.Debug("transport health changed",
			logger.String("transport", typ.String()),
			logger.Bool("degraded", nowDegraded))
		if onSwitch != nil {
			onSwitch(typ, nowDegraded)
		}
	}
}

// IsDegraded reports whether typ's recent success rate is below the
// configured floor.
func (m *Manager) IsDegraded(typ Type) bool {
	m.mu.RLock()
	h := m.healthOf[typ]
	m.mu.RUnlock()
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degraded
}

// EnqueueRetry holds a packet that could not be routed immediately
// until DrainRetries is called; nothing drains the queue
// automatically. It returns SendBufferFull if the bounded retry queue
// is full.
func (m *Manager) EnqueueRetry(peer types.PeerId, pkt *packet.BitchatPacket) error {
	select {
	case m.retryQueue <- queuedPacket{peer: peer, pkt: pkt}:
		return nil
	default:
		return fmt.Errorf("transport: retry queue: %w", bcerr.ErrSendBufferFull)
	}
}

// DrainRetries attempts to send every currently queued retry packet,
// returning how many sent successfully. Packets that fail again are
// dropped, not re-queued, so DrainRetries makes bounded progress.
func (m *Manager) DrainRetries(ctx context.Context) int {
	sent := 0
	for {
		select {
		case qp := <-m.retryQueue:
			if err := m.SendTo(ctx, qp.peer, qp.pkt); err == nil {
				sent++
			}
		default:
			return sent
		}
	}
}

// StartHealthMonitor launches a background goroutine that periodically
// publishes each registered transport's discovered-peer count to
// metrics, mirroring session.Manager's cleanup-ticker lifecycle. It
// does not recompute degraded status, which changes only when a send
// outcome is recorded. StopHealthMonitor must be called to release it.
func (m *Manager) StartHealthMonitor(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	m.mu.Lock()
	if m.stopMonitor != nil {
		m.mu.Unlock()
		return
	}
	m.stopMonitor = make(chan struct{})
	m.monitorDone = make(chan struct{})
	stop := m.stopMonitor
	done := m.monitorDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.RLock()
				order := make([]Type, len(m.order))
				copy(order, m.order)
				snapshot := make(map[Type]Transport, len(m.transports))
				for typ, tr := range m.transports {
					snapshot[typ] = tr
				}
				m.mu.RUnlock()
				for _, typ := range order {
					if tr, ok := snapshot[typ]; ok {
						metrics.TransportPeersDiscovered.WithLabelValues(typ.String()).Set(float64(len(tr.DiscoveredPeers())))
					}
				}
			}
		}
	}()
}

// StopHealthMonitor stops a goroutine started by StartHealthMonitor,
// if running.
func (m *Manager) StopHealthMonitor() {
	m.mu.Lock()
	stop := m.stopMonitor
	done := m.monitorDone
	m.stopMonitor = nil
	m.monitorDone = nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
