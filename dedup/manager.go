// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/types"
)

// RotationFillRatio is the fill ratio at which the active filter is
// retired even before its TTL elapses, to keep the false-positive rate
// bounded under sustained traffic.
const RotationFillRatio = 0.7

// Config tunes a Manager's Bloom filter sizing and rotation policy.
type Config struct {
	BitSize       uint
	HashFunctions int
	TTL           time.Duration
}

// DefaultConfig returns the design-default dedup Config.
func DefaultConfig() Config {
	return Config{
		BitSize:       DefaultBitSize,
		HashFunctions: DefaultHashFunctions,
		TTL:           DefaultFilterTTL,
	}
}

// Stats summarizes a Manager's observed traffic since construction.
type Stats struct {
	TotalChecked     uint64
	Duplicates       uint64
	Rotations        uint64
	CurrentFillRatio float64
}

// DuplicateRate returns Duplicates / TotalChecked, or 0 if nothing has
// been checked yet.
func (s Stats) DuplicateRate() float64 {
	if s.TotalChecked == 0 {
		return 0
	}
	return float64(s.Duplicates) / float64(s.TotalChecked)
}

// Manager recognizes previously-seen packets using a rotating pair of
// Bloom filters: the active filter absorbs new ids, and the prior
// filter is still consulted on lookup so a packet retransmitted just
// after rotation is still recognized as a duplicate. When the active
// filter saturates past RotationFillRatio or exceeds its TTL, it is
// demoted to prior and a fresh empty filter takes its place.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	now    types.TimeSource
	log    logger.Logger
	active *BloomFilter
	prior  *BloomFilter

	totalChecked uint64
	duplicates   uint64
	rotations    uint64
}

// NewManager creates a Manager with the given Config and time source.
func NewManager(cfg Config, now types.TimeSource, log logger.Logger) *Manager {
	if cfg.BitSize == 0 {
		cfg.BitSize = DefaultBitSize
	}
	if cfg.HashFunctions == 0 {
		cfg.HashFunctions = DefaultHashFunctions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultFilterTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		cfg:    cfg,
		now:    now,
		log:    log,
		active: NewBloomFilter(cfg.BitSize, cfg.HashFunctions, now.Now()),
	}
}

// CheckAndAdd reports whether id has already been seen and, if not,
// records it. It rotates the active filter first if warranted, so a
// caller only ever needs this one call per received packet.
func (m *Manager) CheckAndAdd(id PacketId) (isDuplicate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rotateIfNeeded()

	m.totalChecked++
	if m.active.Contains(id) || (m.prior != nil && m.prior.Contains(id)) {
		m.duplicates++
		metrics.PacketsDeduplicated.WithLabelValues("duplicate").Inc()
		return true
	}

	m.active.Add(id)
	metrics.PacketsDeduplicated.WithLabelValues("unique").Inc()
	metrics.FilterFillRatio.Set(m.active.FillRatio())
	return false
}

// rotateIfNeeded must be called with mu held.
func (m *Manager) rotateIfNeeded() {
	now := m.now.Now()
	fillRatio := m.active.FillRatio()

	switch {
	case fillRatio > RotationFillRatio:
		m.rotate(now, "fill_ratio")
	case m.active.IsExpired(now, m.cfg.TTL):
		m.rotate(now, "ttl")
	}
}

func (m *Manager) rotate(now types.Timestamp, trigger string) {
	m.prior = m.active
	m.active = NewBloomFilter(m.cfg.BitSize, m.cfg.HashFunctions, now)
	m.rotations++
	metrics.FilterRotations.WithLabelValues(trigger).Inc()
	metrics.FilterFillRatio.Set(0)
	m.log.Debug("bloom filter rotated", logger.String("trigger", trigger))
}

// Check is CheckAndAdd expressed as an error for callers that want to
// short-circuit processing with a single %w-wrapped check.
func (m *Manager) Check(id PacketId) error {
	if m.CheckAndAdd(id) {
		return fmt.Errorf("dedup: packet %s already seen: %w", id, bcerr.ErrDuplicatePacket)
	}
	return nil
}

// Stats returns a snapshot of the Manager's lifetime counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalChecked:     m.totalChecked,
		Duplicates:       m.duplicates,
		Rotations:        m.rotations,
		CurrentFillRatio: m.active.FillRatio(),
	}
}
