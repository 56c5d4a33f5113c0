// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package fragmentation

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/types"
)

func TestFragmentEmptyPayloadFails(t *testing.T) {
	f := NewFragmenter(ModePlain)
	_, err := f.Fragment(nil, 1, 512)
	assert.ErrorIs(t, err, bcerr.ErrInvalidPacket)
}

func TestFragmentSizeTooSmall(t *testing.T) {
	f := NewFragmenter(ModePlain)
	_, err := f.Fragment([]byte("data"), 1, 13)
	assert.ErrorIs(t, err, bcerr.ErrFragmentSizeTooSmall)
}

func TestFragmentMessageTooLarge(t *testing.T) {
	f := NewFragmenter(ModePlain)
	huge := make([]byte, 257*10)
	_, err := f.Fragment(huge, 1, 23) // chunk size 10, needs 257 fragments
	assert.ErrorIs(t, err, bcerr.ErrMessageTooLarge)
}

func TestFragmentReassembleRoundTripAnyOrder(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 2048)
	f := NewFragmenter(ModePlain)
	frags, err := f.Fragment(payload, 7, 512)
	require.NoError(t, err)
	require.Len(t, frags, 5) // ceil(2048/(512-13)) = 5

	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(DefaultEntryTTL, ts, nil)

	rand.Shuffle(len(frags), func(i, j int) { frags[i], frags[j] = frags[j], frags[i] })

	sender := types.PeerId{1, 2, 3, 4, 5, 6, 7, 8}
	var got []byte
	var gotType uint8
	for i, frag := range frags {
		payloadOut, originalType, ok, err := r.AddFragment(sender, frag)
		require.NoError(t, err)
		if i < len(frags)-1 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		got = payloadOut
		gotType = originalType
	}
	assert.Equal(t, payload, got)
	assert.Equal(t, uint8(7), gotType)
	assert.Equal(t, 0, r.PendingCount())
}

func TestReassembleSingleFragmentShortCircuits(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(DefaultEntryTTL, ts, nil)
	f := NewFragmenter(ModePlain)

	frags, err := f.Fragment([]byte("hello"), 3, 512)
	require.NoError(t, err)
	require.Len(t, frags, 1)

	out, originalType, ok, err := r.AddFragment(types.PeerId{}, frags[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), out)
	assert.Equal(t, uint8(3), originalType)
	assert.Equal(t, 0, r.PendingCount())
}

func TestReassembleDuplicateFragmentRejected(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(DefaultEntryTTL, ts, nil)
	f := NewFragmenter(ModePlain)

	frags, err := f.Fragment(bytes.Repeat([]byte{1}, 100), 1, 40)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	sender := types.PeerId{9}
	_, _, ok, err := r.AddFragment(sender, frags[0])
	require.NoError(t, err)
	require.False(t, ok)

	_, _, _, err = r.AddFragment(sender, frags[0])
	assert.ErrorIs(t, err, bcerr.ErrDuplicateFragment)
}

func TestReassembleHeaderMismatchRejected(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(DefaultEntryTTL, ts, nil)
	f := NewFragmenter(ModePlain)

	frags, err := f.Fragment(bytes.Repeat([]byte{1}, 100), 1, 40)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	sender := types.PeerId{9}
	_, _, _, err = r.AddFragment(sender, frags[0])
	require.NoError(t, err)

	bad := frags[1]
	bad.Header.Total = frags[0].Header.Total + 1
	bad.Header.FragmentID = frags[0].Header.FragmentID
	_, _, _, err = r.AddFragment(sender, bad)
	assert.ErrorIs(t, err, bcerr.ErrFragmentMismatch)
}

func TestReassembleCRC32Mode(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(DefaultEntryTTL, ts, nil)
	f := NewFragmenter(ModeCRC32)

	payload := bytes.Repeat([]byte{0x7}, 300)
	frags, err := f.Fragment(payload, 1, 64)
	require.NoError(t, err)

	sender := types.PeerId{2}
	var got []byte
	for _, frag := range frags {
		out, _, ok, err := r.AddFragment(sender, frag)
		require.NoError(t, err)
		if ok {
			got = out
		}
	}
	assert.Equal(t, payload, got)
}

func TestReassembleCRC32MismatchFails(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(DefaultEntryTTL, ts, nil)
	f := NewFragmenter(ModeCRC32)

	payload := bytes.Repeat([]byte{0x7}, 300)
	frags, err := f.Fragment(payload, 1, 64)
	require.NoError(t, err)

	// Corrupt the last fragment's data so reassembly fails checksum.
	frags[len(frags)-1].Data[0] ^= 0xFF

	sender := types.PeerId{2}
	var lastErr error
	for _, frag := range frags {
		_, _, _, err := r.AddFragment(sender, frag)
		if err != nil {
			lastErr = err
		}
	}
	assert.ErrorIs(t, lastErr, bcerr.ErrChecksumFailed)
}

func TestReassemblerCleanupExpired(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	r := NewReassembler(10*time.Millisecond, ts, nil)
	f := NewFragmenter(ModePlain)

	frags, err := f.Fragment(bytes.Repeat([]byte{1}, 100), 1, 40)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	_, _, _, err = r.AddFragment(types.PeerId{5}, frags[0])
	require.NoError(t, err)
	require.Equal(t, 1, r.PendingCount())

	ts.Advance(20 * time.Millisecond)
	dropped := r.CleanupExpired()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, r.PendingCount())
}

func TestEncodeDecodePayloadPlain(t *testing.T) {
	f := NewFragmenter(ModePlain)
	frags, err := f.Fragment([]byte("hello fragment"), 2, 40)
	require.NoError(t, err)

	wire := frags[0].EncodePayload()
	got, err := DecodeFragment(ModePlain, wire)
	require.NoError(t, err)
	assert.Equal(t, frags[0].Header, got.Header)
	assert.Equal(t, frags[0].Data, got.Data)
	assert.False(t, got.HasCRC)
}

func TestEncodeDecodePayloadCRC32(t *testing.T) {
	f := NewFragmenter(ModeCRC32)
	frags, err := f.Fragment(bytes.Repeat([]byte{9}, 100), 2, 40)
	require.NoError(t, err)

	wire := frags[0].EncodePayload()
	got, err := DecodeFragment(ModeCRC32, wire)
	require.NoError(t, err)
	assert.Equal(t, frags[0].Header, got.Header)
	assert.Equal(t, frags[0].CRC, got.CRC)
	assert.True(t, got.HasCRC)
	assert.Equal(t, frags[0].Data, got.Data)
}
