// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package fragmentation

import (
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/types"
)

// DefaultEntryTTL is the design default per-entry reassembly timeout.
const DefaultEntryTTL = 5 * time.Minute

// entryKey identifies one in-flight reassembly by (sender, fragmentId).
type entryKey struct {
	sender     types.PeerId
	fragmentID uint64
}

// entry is the bounded-memory reassembly state for one logical message.
type entry struct {
	total        uint16
	originalType uint8
	crc          uint32
	hasCRC       bool
	received     map[uint16][]byte
	firstSeenAt  types.Timestamp
}

// Reassembler reconstructs fragmented messages from Fragments arriving in
// any order, bounding memory per in-flight message to its declared Total
// and evicting stale entries after an entry-level TTL.
type Reassembler struct {
	mu      sync.Mutex
	entries map[entryKey]*entry
	ttl     time.Duration
	now     types.TimeSource
	log     logger.Logger
}

// NewReassembler creates a Reassembler with the given entry TTL and time
// source.
func NewReassembler(ttl time.Duration, now types.TimeSource, log logger.Logger) *Reassembler {
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reassembler{
		entries: make(map[entryKey]*entry),
		ttl:     ttl,
		now:     now,
		log:     log,
	}
}

// AddFragment feeds one received Fragment into the reassembler. When the
// fragment completes its message, the reassembled payload and its
// originalType are returned with ok=true. A single-fragment message
// (Total == 1) short-circuits: it is returned immediately without ever
// touching the reassembly table.
func (r *Reassembler) AddFragment(sender types.PeerId, frag Fragment) (payload []byte, originalType uint8, ok bool, err error) {
	if err := frag.Header.Validate(); err != nil {
		return nil, 0, false, fmt.Errorf("fragmentation: %w", err)
	}

	if frag.Header.Total == 1 {
		metrics.FragmentsReassembled.Inc()
		if frag.HasCRC && crc32.ChecksumIEEE(frag.Data) != frag.CRC {
			metrics.FragmentsDropped.WithLabelValues("checksum").Inc()
			return nil, 0, false, fmt.Errorf("fragmentation: checksum mismatch on single-fragment message: %w", bcerr.ErrChecksumFailed)
		}
		return frag.Data, frag.Header.OriginalType, true, nil
	}

	key := entryKey{sender: sender, fragmentID: frag.Header.FragmentID}
	now := r.now.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[key]
	if !exists {
		e = &entry{
			total:        frag.Header.Total,
			originalType: frag.Header.OriginalType,
			crc:          frag.CRC,
			hasCRC:       frag.HasCRC,
			received:     make(map[uint16][]byte),
			firstSeenAt:  now,
		}
		r.entries[key] = e
	} else {
		if e.total != frag.Header.Total || e.originalType != frag.Header.OriginalType {
			metrics.FragmentsDropped.WithLabelValues("mismatch").Inc()
			return nil, 0, false, fmt.Errorf("fragmentation: fragment header mismatch for %v: %w", key, bcerr.ErrFragmentMismatch)
		}
	}

	if _, dup := e.received[frag.Header.Index]; dup {
		metrics.FragmentsDropped.WithLabelValues("duplicate").Inc()
		return nil, 0, false, fmt.Errorf("fragmentation: duplicate fragment index %d for %v: %w", frag.Header.Index, key, bcerr.ErrDuplicateFragment)
	}
	e.received[frag.Header.Index] = frag.Data

	if len(e.received) != int(e.total) {
		return nil, 0, false, nil
	}

	delete(r.entries, key)

	start := time.Now()
	total := 0
	for _, d := range e.received {
		total += len(d)
	}
	out := make([]byte, 0, total)
	for i := uint16(0); i < e.total; i++ {
		out = append(out, e.received[i]...)
	}
	metrics.ReassemblyDuration.Observe(time.Since(start).Seconds())

	if e.hasCRC && crc32.ChecksumIEEE(out) != e.crc {
		metrics.FragmentsDropped.WithLabelValues("checksum").Inc()
		return nil, 0, false, fmt.Errorf("fragmentation: checksum mismatch reassembling %v: %w", key, bcerr.ErrChecksumFailed)
	}

	metrics.FragmentsReassembled.Inc()
	return out, e.originalType, true, nil
}

// CleanupExpired evicts reassembly entries whose TTL has elapsed,
// returning how many were dropped. Must be invoked periodically by a
// caller; nothing expires it automatically.
func (r *Reassembler) CleanupExpired() int {
	now := r.now.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped int
	for key, e := range r.entries {
		if time.Duration(now.Sub(e.firstSeenAt))*time.Millisecond >= r.ttl {
			delete(r.entries, key)
			dropped++
		}
	}
	if dropped > 0 {
		metrics.FragmentsDropped.WithLabelValues("timeout").Add(float64(dropped))
		r.log.Debug("reassembly entries expired", logger.Int("count", dropped))
	}
	return dropped
}

// PendingCount reports how many reassembly entries are currently in
// flight, for diagnostics and tests.
func (r *Reassembler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
