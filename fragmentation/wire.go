// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package fragmentation

import (
	"encoding/binary"
	"fmt"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/packet"
)

// crc32Size is the wire size in bytes of an optional trailing CRC-32.
const crc32Size = 4

// EncodePayload serializes f as a fragment-carrying packet payload:
// the 13-byte FragmentHeader, followed by a 4-byte big-endian CRC-32 if
// f.HasCRC, followed by the fragment's data.
func (f Fragment) EncodePayload() []byte {
	extra := 0
	if f.HasCRC {
		extra = crc32Size
	}
	buf := make([]byte, packet.FragmentHeaderSize+extra+len(f.Data))
	copy(buf, f.Header.Encode())
	off := packet.FragmentHeaderSize
	if f.HasCRC {
		binary.BigEndian.PutUint32(buf[off:], f.CRC)
		off += crc32Size
	}
	copy(buf[off:], f.Data)
	return buf
}

// DecodeFragment parses a fragment-carrying packet payload previously
// produced by EncodePayload, in the given Mode.
func DecodeFragment(mode Mode, data []byte) (Fragment, error) {
	header, rest, err := packet.DecodeFragmentHeader(data)
	if err != nil {
		return Fragment{}, fmt.Errorf("fragmentation: %w", err)
	}

	f := Fragment{Header: header}
	if mode == ModeCRC32 {
		if len(rest) < crc32Size {
			return Fragment{}, fmt.Errorf("fragmentation: truncated crc in fragment payload: %w", bcerr.ErrPayloadTooSmall)
		}
		f.CRC = binary.BigEndian.Uint32(rest[:crc32Size])
		f.HasCRC = true
		rest = rest[crc32Size:]
	}
	f.Data = rest
	return f, nil
}
