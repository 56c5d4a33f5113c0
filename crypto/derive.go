// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/bitchat-mesh/core/bcerr"
)

// DeriveAuxiliaryKey derives a 32-byte purpose-specific key from a
// session's channel-binding transcript via HKDF-SHA256 (no salt) with a
// distinct info string per purpose, the same construction used to split
// one session seed into separate encryption and signing keys. It is for
// key material outside the Noise transport ciphers; nothing else in this
// module calls it.
func DeriveAuxiliaryKey(channelBinding []byte, purpose string) ([]byte, error) {
	reader := hkdf.New(sha256.New, channelBinding, nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("crypto: derive %q key: %w", purpose, bcerr.ErrKeyDerivationFailed)
	}
	return key, nil
}
