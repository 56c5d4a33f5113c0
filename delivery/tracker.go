// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package delivery tracks outbound messages through retry and
// confirmation, with exponential backoff between attempts.
package delivery

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/types"
)

// Status is the lifecycle state of a tracked message.
type Status int

const (
	StatusPending Status = iota
	StatusSent
	StatusConfirmed
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Config tunes retry timing and confirmation deadlines.
type Config struct {
	MaxRetries         int
	InitialRetryDelay  time.Duration
	MaxRetryDelay      time.Duration
	BackoffMultiplier  float64
	ConfirmationTimeout time.Duration
}

// DefaultConfig mirrors the design-default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          5,
		InitialRetryDelay:   500 * time.Millisecond,
		MaxRetryDelay:       30 * time.Second,
		BackoffMultiplier:   2.0,
		ConfirmationTimeout: 60 * time.Second,
	}
}

// attempt records one send of a tracked message.
type attempt struct {
	at types.Timestamp
}

// TrackedMessage is one outbound message under delivery tracking.
type TrackedMessage struct {
	ID          uuid.UUID
	Recipient   types.PeerId
	Status      Status
	Attempts    []attempt
	FirstSentAt types.Timestamp
	ConfirmedAt types.Timestamp
	cfg         Config
}

// AttemptCount reports how many times this message has been sent.
func (m *TrackedMessage) AttemptCount() int {
	return len(m.Attempts)
}

// CanRetry reports whether another attempt is still within budget.
func (m *TrackedMessage) CanRetry() bool {
	return m.Status == StatusSent && m.AttemptCount() < m.cfg.MaxRetries
}

// NextRetryDelay computes the backoff delay before the next attempt,
// capped at MaxRetryDelay: initialDelay * multiplier^(attemptCount-1),
// so the wait after the first send is InitialRetryDelay itself.
func (m *TrackedMessage) NextRetryDelay() time.Duration {
	delay := float64(m.cfg.InitialRetryDelay)
	for i := 0; i < m.AttemptCount()-1; i++ {
		delay *= m.cfg.BackoffMultiplier
		if delay >= float64(m.cfg.MaxRetryDelay) {
			return m.cfg.MaxRetryDelay
		}
	}
	return time.Duration(delay)
}

// IsReadyForRetry reports whether enough time has elapsed since the
// last attempt to retry now.
func (m *TrackedMessage) IsReadyForRetry(now types.Timestamp) bool {
	if !m.CanRetry() {
		return false
	}
	last := m.Attempts[len(m.Attempts)-1].at
	elapsed := time.Duration(now.Sub(last)) * time.Millisecond
	return elapsed >= m.NextRetryDelay()
}

// IsTimedOut reports whether this message has exceeded its
// confirmation deadline since its first send.
func (m *TrackedMessage) IsTimedOut(now types.Timestamp) bool {
	if m.Status != StatusSent || m.FirstSentAt == 0 {
		return false
	}
	elapsed := time.Duration(now.Sub(m.FirstSentAt)) * time.Millisecond
	return elapsed >= m.cfg.ConfirmationTimeout
}

// Tracker tracks in-flight messages awaiting delivery confirmation,
// offering retry and timeout scans a caller drives on its own schedule.
type Tracker struct {
	mu   sync.Mutex
	cfg  Config
	now  types.TimeSource
	log  logger.Logger
	msgs map[uuid.UUID]*TrackedMessage

	confirmed int
	expired   int
}

// NewTracker creates a Tracker with the given Config and time source.
func NewTracker(cfg Config, now types.TimeSource, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		cfg:  cfg,
		now:  now,
		log:  log,
		msgs: make(map[uuid.UUID]*TrackedMessage),
	}
}

// TrackMessage registers a new outbound message as Pending.
func (t *Tracker) TrackMessage(id uuid.UUID, recipient types.PeerId) *TrackedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := &TrackedMessage{ID: id, Recipient: recipient, Status: StatusPending, cfg: t.cfg}
	t.msgs[id] = m
	return m
}

// MarkSent records a send attempt against id, moving it to Sent.
func (t *Tracker) MarkSent(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.msgs[id]
	if !ok {
		return fmt.Errorf("delivery: mark sent: %w", bcerr.ErrSessionNotFound)
	}
	now := t.now.Now()
	if m.FirstSentAt == 0 {
		m.FirstSentAt = now
	}
	m.Attempts = append(m.Attempts, attempt{at: now})
	m.Status = StatusSent
	metrics.DeliveryAttempts.Inc()
	if len(m.Attempts) > 1 {
		metrics.DeliveryRetries.Inc()
	}
	return nil
}

// ConfirmDelivery marks id Confirmed upon receiving its delivery ack.
func (t *Tracker) ConfirmDelivery(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.msgs[id]
	if !ok {
		return fmt.Errorf("delivery: confirm: %w", bcerr.ErrSessionNotFound)
	}
	now := t.now.Now()
	m.Status = StatusConfirmed
	m.ConfirmedAt = now
	t.confirmed++
	metrics.DeliveryConfirmed.Inc()
	if m.FirstSentAt != 0 {
		elapsed := time.Duration(now.Sub(m.FirstSentAt)) * time.Millisecond
		metrics.DeliveryConfirmationDuration.Observe(elapsed.Seconds())
	}
	delete(t.msgs, id)
	return nil
}

// MarkFailed marks id Failed, ending retries.
func (t *Tracker) MarkFailed(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.msgs[id]
	if !ok {
		return fmt.Errorf("delivery: mark failed: %w", bcerr.ErrSessionNotFound)
	}
	m.Status = StatusFailed
	delete(t.msgs, id)
	return nil
}

// CancelTracking removes id from tracking without counting it as
// confirmed or expired, for when a caller no longer cares about it.
func (t *Tracker) CancelTracking(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.msgs[id]; ok {
		m.Status = StatusCancelled
		delete(t.msgs, id)
	}
}

// GetTracked returns the TrackedMessage for id, if still tracked.
func (t *Tracker) GetTracked(id uuid.UUID) (*TrackedMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.msgs[id]
	return m, ok
}

// GetReadyForRetry returns every tracked message whose backoff window
// has elapsed.
func (t *Tracker) GetReadyForRetry() []*TrackedMessage {
	now := t.now.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var ready []*TrackedMessage
	for _, m := range t.msgs {
		if m.IsReadyForRetry(now) {
			ready = append(ready, m)
		}
	}
	return ready
}

// GetTimedOut returns every tracked message past its confirmation
// deadline, regardless of remaining retry budget.
func (t *Tracker) GetTimedOut() []*TrackedMessage {
	now := t.now.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var timedOut []*TrackedMessage
	for _, m := range t.msgs {
		if m.IsTimedOut(now) {
			timedOut = append(timedOut, m)
		}
	}
	return timedOut
}

// Cleanup evicts every message that is timed out or has exhausted its
// retry budget, marking each Failed and counting it expired. It
// returns the number of messages evicted.
func (t *Tracker) Cleanup() (expired int) {
	now := t.now.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, m := range t.msgs {
		if m.IsTimedOut(now) || (m.Status == StatusSent && !m.CanRetry() && !m.IsReadyForRetry(now)) {
			m.Status = StatusFailed
			delete(t.msgs, id)
			expired++
		}
	}
	t.expired += expired
	if expired > 0 {
		metrics.DeliveryExpired.Add(float64(expired))
		t.log.Debug("delivery tracking expired", logger.Int("count", expired))
	}
	return expired
}

// Stats summarizes the Tracker's lifetime outcomes.
type Stats struct {
	InFlight  int
	Confirmed int
	Expired   int
}

// SuccessRate returns Confirmed / (Confirmed + Expired), or 0 if
// neither has happened yet.
func (s Stats) SuccessRate() float64 {
	total := s.Confirmed + s.Expired
	if total == 0 {
		return 0
	}
	return float64(s.Confirmed) / float64(total)
}

// Stats returns a snapshot of the Tracker's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		InFlight:  len(t.msgs),
		Confirmed: t.confirmed,
		Expired:   t.expired,
	}
}
