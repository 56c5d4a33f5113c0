// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/crypto"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/types"
)

// Timeouts configures the per-state expiry the Manager's cleanup
// goroutine enforces.
type Timeouts struct {
	Handshake time.Duration
	Idle      time.Duration
	Failed    time.Duration
}

// DefaultTimeouts returns the design defaults: handshake 30s, idle 60s,
// failed grace 1s.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Handshake: 30 * time.Second,
		Idle:      60 * time.Second,
		Failed:    1 * time.Second,
	}
}

// Manager owns the PeerId -> Session table for a local identity. The
// table is guarded by mu and may be used from several goroutines;
// other components reach sessions only through Manager's request
// methods, never the map directly.
type Manager struct {
	mu       sync.RWMutex
	sessions map[types.PeerId]*Session

	local      *crypto.StaticKeyPair
	timeouts   Timeouts
	timeSource types.TimeSource
	log        logger.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// Config bundles the constructor arguments for NewManager.
type Config struct {
	Local           *crypto.StaticKeyPair
	Timeouts        Timeouts
	TimeSource      types.TimeSource
	Logger          logger.Logger
	CleanupInterval time.Duration
}

// NewManager creates a Manager and starts its background cleanup
// goroutine.
func NewManager(cfg Config) *Manager {
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	if cfg.TimeSource == nil {
		cfg.TimeSource = types.SystemTimeSource{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Second
	}

	m := &Manager{
		sessions:        make(map[types.PeerId]*Session),
		local:           cfg.Local,
		timeouts:        cfg.Timeouts,
		timeSource:      cfg.TimeSource,
		log:             cfg.Logger,
		cleanupInterval: cfg.CleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	go m.runCleanup()
	return m
}

// GetOrCreateOutbound returns the existing session for peerID, or
// creates a new Handshaking initiator session if none exists.
func (m *Manager) GetOrCreateOutbound(peerID types.PeerId) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[peerID]; ok {
		return s, nil
	}
	s, err := newOutbound(peerID, m.local, m.timeSource.Now())
	if err != nil {
		return nil, err
	}
	m.sessions[peerID] = s
	metrics.SessionsCreated.WithLabelValues("outbound").Inc()
	metrics.HandshakesInitiated.WithLabelValues("initiator").Inc()
	m.log.Debug("session created (outbound)", logger.String("peer", peerID.String()))
	return s, nil
}

// CreateInbound always inserts a fresh Handshaking responder session for
// peerID, overwriting any existing one — the first handshake message
// from a peer starts a new session regardless of prior state.
func (m *Manager) CreateInbound(peerID types.PeerId) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := newInbound(peerID, m.local, m.timeSource.Now())
	if err != nil {
		return nil, err
	}
	m.sessions[peerID] = s
	metrics.SessionsCreated.WithLabelValues("inbound").Inc()
	metrics.HandshakesInitiated.WithLabelValues("responder").Inc()
	m.log.Debug("session created (inbound)", logger.String("peer", peerID.String()))
	return s, nil
}

// GetSession returns the session for peerID, if any.
func (m *Manager) GetSession(peerID types.PeerId) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[peerID]
	return s, ok
}

// RemoveSession drops the session for peerID.
func (m *Manager) RemoveSession(peerID types.PeerId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, peerID)
}

// CreateHandshakeMessage advances the named session's handshake,
// producing its next outbound leg.
func (m *Manager) CreateHandshakeMessage(peerID types.PeerId, payload []byte) ([]byte, error) {
	s, ok := m.GetSession(peerID)
	if !ok {
		return nil, &bcerr.PeerNotFoundError{Peer: peerID}
	}
	out, err := s.CreateHandshakeMessage(payload, m.timeSource.Now())
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return out, err
	}
	if s.IsEstablished() {
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
		metrics.SessionsEstablished.Inc()
		m.log.Info("session established", logger.String("peer", peerID.String()))
	}
	return out, err
}

// ProcessHandshakeMessage advances the named session's handshake with a
// message from the peer.
func (m *Manager) ProcessHandshakeMessage(peerID types.PeerId, msg []byte) ([]byte, error) {
	s, ok := m.GetSession(peerID)
	if !ok {
		return nil, &bcerr.PeerNotFoundError{Peer: peerID}
	}
	out, err := s.ProcessHandshakeMessage(msg, m.timeSource.Now())
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return out, err
	}
	if s.IsEstablished() {
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
		metrics.SessionsEstablished.Inc()
		m.log.Info("session established", logger.String("peer", peerID.String()))
	}
	return out, err
}

// Encrypt encrypts plaintext for the named, Established session.
func (m *Manager) Encrypt(peerID types.PeerId, plaintext []byte) ([]byte, error) {
	s, ok := m.GetSession(peerID)
	if !ok {
		return nil, &bcerr.PeerNotFoundError{Peer: peerID}
	}
	start := time.Now()
	ct, err := s.Encrypt(plaintext, m.timeSource.Now())
	metrics.SessionDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())
	return ct, err
}

// Decrypt decrypts ciphertext from the named, Established session.
func (m *Manager) Decrypt(peerID types.PeerId, ciphertext []byte) ([]byte, error) {
	s, ok := m.GetSession(peerID)
	if !ok {
		return nil, &bcerr.PeerNotFoundError{Peer: peerID}
	}
	start := time.Now()
	pt, err := s.Decrypt(ciphertext, m.timeSource.Now())
	metrics.SessionDuration.WithLabelValues("decrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		m.log.Warn("session decryption failed", logger.String("peer", peerID.String()), logger.Error(err))
	}
	return pt, err
}

// SessionCounts reports how many sessions are in each state.
func (m *Manager) SessionCounts() (handshaking, established, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		switch s.State() {
		case Handshaking:
			handshaking++
		case Established:
			established++
		case Failed:
			failed++
		}
	}
	return
}

// CleanupExpired removes sessions whose per-state timeout has elapsed,
// returning the peers that were removed.
func (m *Manager) CleanupExpired() []types.PeerId {
	now := m.timeSource.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []types.PeerId
	var handshaking, established, failed int
	for peer, s := range m.sessions {
		var limit time.Duration
		switch s.State() {
		case Handshaking:
			limit = m.timeouts.Handshake
		case Established:
			limit = m.timeouts.Idle
		case Failed:
			limit = m.timeouts.Failed
		}
		if time.Duration(s.timeSinceActivity(now))*time.Millisecond >= limit {
			delete(m.sessions, peer)
			removed = append(removed, peer)
			metrics.SessionsExpired.WithLabelValues(strings.ToLower(s.State().String())).Inc()
			continue
		}
		switch s.State() {
		case Handshaking:
			handshaking++
		case Established:
			established++
		case Failed:
			failed++
		}
	}
	metrics.SessionsActive.WithLabelValues("handshaking").Set(float64(handshaking))
	metrics.SessionsActive.WithLabelValues("established").Set(float64(established))
	metrics.SessionsActive.WithLabelValues("failed").Set(float64(failed))
	if len(removed) > 0 {
		m.log.Debug("sessions expired", logger.Int("count", len(removed)))
	}
	return removed
}

func (m *Manager) runCleanup() {
	defer close(m.cleanupDone)
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

// Close stops the background cleanup goroutine and waits for it to exit.
func (m *Manager) Close() error {
	select {
	case <-m.stopCleanup:
		return fmt.Errorf("session: manager already closed")
	default:
		close(m.stopCleanup)
	}
	<-m.cleanupDone
	return nil
}
