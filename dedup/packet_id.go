// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package dedup

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/bitchat-mesh/core/types"
)

// PacketId is a content-addressed 32-byte identifier used to recognize
// a packet seen before, independent of which peer relayed it.
type PacketId [sha256.Size]byte

// NewPacketId derives a PacketId from the originating sender, the
// message timestamp, and the payload content: SHA-256(sender ||
// timestamp_be || SHA-256(payload)). Two packets with identical content
// from the same sender at the same timestamp collide by design, since
// they are in fact the same logical packet possibly arriving over
// multiple paths.
func NewPacketId(sender types.PeerId, timestamp types.Timestamp, payload []byte) PacketId {
	contentHash := sha256.Sum256(payload)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))

	h := sha256.New()
	h.Write(sender[:])
	h.Write(tsBuf[:])
	h.Write(contentHash[:])

	var id PacketId
	copy(id[:], h.Sum(nil))
	return id
}

// String renders the PacketId as hex for logging.
func (id PacketId) String() string {
	return hex.EncodeToString(id[:])
}
