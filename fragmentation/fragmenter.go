// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package fragmentation splits oversized message payloads into
// transport-sized fragments and reassembles them on the receiving side,
// tolerating any arrival order and bounding reassembly memory.
package fragmentation

import (
	"fmt"
	"hash/crc32"
	"sync/atomic"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/packet"
)

// Mode selects between the plain fragmentation path and the legacy
// CRC-32 path kept for compatibility with receivers that verify a
// whole-payload checksum.
type Mode int

const (
	// ModePlain carries no redundant checksum; the outer packet codec
	// and transport are trusted to deliver each fragment intact.
	ModePlain Mode = iota
	// ModeCRC32 additionally verifies a reflected CRC-32 (polynomial
	// 0xEDB88320, i.e. hash/crc32.IEEE) of the full original payload
	// before yielding a reassembled message, for legacy-compatible
	// receivers.
	ModeCRC32
)

// Fragment is one slice of a larger logical message, paired with its
// header.
type Fragment struct {
	Header packet.FragmentHeader
	Data   []byte
	// CRC is the checksum of the complete original payload, present
	// only in ModeCRC32; every fragment of the same message repeats it
	// so any fragment (not just the first) carries enough information
	// to verify the reassembled result.
	CRC    uint32
	HasCRC bool
}

// Fragmenter splits payloads into Fragments, assigning each message a
// fragment id from a monotonic counter that wraps at the uint64 range.
// The wrap window is vastly larger than any reassembly TTL times
// plausible throughput, so (sender, fragmentId) collisions within a TTL
// window do not occur in practice.
type Fragmenter struct {
	mode   Mode
	nextID atomic.Uint64
}

// NewFragmenter creates a Fragmenter using the given Mode.
func NewFragmenter(mode Mode) *Fragmenter {
	return &Fragmenter{mode: mode}
}

// Fragment splits payload into fragments of at most maxFragmentSize
// bytes on the wire, each carrying a 13-byte FragmentHeader. It fails
// with FragmentSizeTooSmall if maxFragmentSize leaves no room for any
// fragment payload, and MessageTooLarge if the resulting fragment count
// would exceed packet.MaxFragmentsPerMessage.
func (f *Fragmenter) Fragment(payload []byte, originalType uint8, maxFragmentSize int) ([]Fragment, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("fragmentation: empty payload: %w", bcerr.ErrInvalidPacket)
	}

	overhead := packet.FragmentHeaderSize
	if f.mode == ModeCRC32 {
		overhead += crc32Size
	}
	if maxFragmentSize <= overhead {
		return nil, fmt.Errorf("fragmentation: max fragment size %d <= header overhead %d: %w", maxFragmentSize, overhead, bcerr.ErrFragmentSizeTooSmall)
	}

	chunk := maxFragmentSize - overhead
	total := (len(payload) + chunk - 1) / chunk
	if total > packet.MaxFragmentsPerMessage {
		return nil, fmt.Errorf("fragmentation: message needs %d fragments, exceeds %d: %w", total, packet.MaxFragmentsPerMessage, bcerr.ErrMessageTooLarge)
	}

	var crc uint32
	hasCRC := f.mode == ModeCRC32
	if hasCRC {
		crc = crc32.ChecksumIEEE(payload)
	}

	id := f.nextID.Add(1)
	fragments := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(payload) {
			end = len(payload)
		}
		data := make([]byte, end-start)
		copy(data, payload[start:end])

		fragments = append(fragments, Fragment{
			Header: packet.FragmentHeader{
				FragmentID:   id,
				Index:        uint16(i),
				Total:        uint16(total),
				OriginalType: originalType,
			},
			Data:   data,
			CRC:    crc,
			HasCRC: hasCRC,
		})
	}
	metrics.FragmentsSent.Add(float64(total))
	return fragments, nil
}
