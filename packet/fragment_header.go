// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/bitchat-mesh/core/bcerr"
)

// FragmentHeaderSize is the fixed size of an encoded FragmentHeader,
// independent of the outer envelope codec.
const FragmentHeaderSize = 13

// MaxFragmentsPerMessage bounds how many fragments a single logical
// message may be split into.
const MaxFragmentsPerMessage = 256

// FragmentHeader precedes the data slice of every fragment-carrying
// packet payload.
type FragmentHeader struct {
	FragmentID   uint64
	Index        uint16
	Total        uint16
	OriginalType uint8
}

// Validate checks the header-level invariants: 0 < Total <= 256 and
// Index < Total.
func (h FragmentHeader) Validate() error {
	if h.Total == 0 || int(h.Total) > MaxFragmentsPerMessage {
		return fmt.Errorf("packet: fragment total %d out of range: %w", h.Total, bcerr.ErrInvalidHeader)
	}
	if h.Index >= h.Total {
		return fmt.Errorf("packet: fragment index %d >= total %d: %w", h.Index, h.Total, bcerr.ErrInvalidHeader)
	}
	return nil
}

// IsLastFragment reports whether this header is the final fragment of its
// message.
func (h FragmentHeader) IsLastFragment() bool {
	return h.Index+1 == h.Total
}

// Encode writes the canonical 13-byte representation of h.
func (h FragmentHeader) Encode() []byte {
	buf := make([]byte, FragmentHeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], h.FragmentID)
	binary.BigEndian.PutUint16(buf[8:10], h.Index)
	binary.BigEndian.PutUint16(buf[10:12], h.Total)
	buf[12] = h.OriginalType
	return buf
}

// DecodeFragmentHeader parses the fixed 13-byte FragmentHeader prefix of
// data and returns it along with the remaining fragment bytes.
func DecodeFragmentHeader(data []byte) (FragmentHeader, []byte, error) {
	if len(data) < FragmentHeaderSize {
		return FragmentHeader{}, nil, fmt.Errorf("packet: fragment payload shorter than header (%d bytes): %w", len(data), bcerr.ErrInvalidHeader)
	}
	h := FragmentHeader{
		FragmentID:   binary.BigEndian.Uint64(data[0:8]),
		Index:        binary.BigEndian.Uint16(data[8:10]),
		Total:        binary.BigEndian.Uint16(data[10:12]),
		OriginalType: data[12],
	}
	if err := h.Validate(); err != nil {
		return FragmentHeader{}, nil, err
	}
	return h, data[FragmentHeaderSize:], nil
}
