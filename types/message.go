// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package types

import (
	"errors"

	"github.com/google/uuid"
)

// ErrSenderTooLong is returned by BitchatMessage.Validate when the sender
// field exceeds MaxSenderBytes.
var ErrSenderTooLong = errors.New("types: sender exceeds 64 bytes")

// BitchatMessage is the user-facing chat payload carried inside a Message
// packet.
type BitchatMessage struct {
	ID        uuid.UUID
	Sender    string
	Content   string
	CreatedAt Timestamp
}

// Validate checks the field-level invariants a BitchatMessage must
// satisfy before it is serialized.
func (m BitchatMessage) Validate() error {
	if len(m.Sender) > MaxSenderBytes {
		return ErrSenderTooLong
	}
	return nil
}
