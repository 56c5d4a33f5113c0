// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitchat-mesh/core/types"
)

func TestPacketIdDeterministic(t *testing.T) {
	sender := types.PeerId{1, 2, 3}
	id1 := NewPacketId(sender, types.Timestamp(1000), []byte("hello"))
	id2 := NewPacketId(sender, types.Timestamp(1000), []byte("hello"))
	assert.Equal(t, id1, id2)

	id3 := NewPacketId(sender, types.Timestamp(1001), []byte("hello"))
	assert.NotEqual(t, id1, id3)
}

func TestBloomFilterAddContains(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	f := NewBloomFilter(1024, 3, ts.Now())
	id := NewPacketId(types.PeerId{1}, 1, []byte("a"))
	assert.False(t, f.Contains(id))
	f.Add(id)
	assert.True(t, f.Contains(id))
}

func TestBloomFilterFillRatioIncreases(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	f := NewBloomFilter(1024, 3, ts.Now())
	require.Equal(t, float64(0), f.FillRatio())
	for i := 0; i < 50; i++ {
		f.Add(NewPacketId(types.PeerId{byte(i)}, types.Timestamp(i), []byte("x")))
	}
	assert.Greater(t, f.FillRatio(), 0.0)
}

func TestBloomFilterExpiry(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	f := NewBloomFilter(1024, 3, ts.Now())
	assert.False(t, f.IsExpired(ts.Now(), 5*time.Minute))
	ts.Advance(6 * time.Minute)
	assert.True(t, f.IsExpired(ts.Now(), 5*time.Minute))
}

func TestManagerDetectsDuplicate(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	m := NewManager(DefaultConfig(), ts, nil)
	id := NewPacketId(types.PeerId{1}, 1, []byte("payload"))

	assert.False(t, m.CheckAndAdd(id))
	assert.True(t, m.CheckAndAdd(id))

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.TotalChecked)
	assert.Equal(t, uint64(1), stats.Duplicates)
}

func TestManagerCheckReturnsSentinel(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	m := NewManager(DefaultConfig(), ts, nil)
	id := NewPacketId(types.PeerId{1}, 1, []byte("payload"))

	require.NoError(t, m.Check(id))
	err := m.Check(id)
	assert.Error(t, err)
}

func TestManagerRotatesOnTTL(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	cfg := Config{BitSize: 1024, HashFunctions: 3, TTL: 10 * time.Millisecond}
	m := NewManager(cfg, ts, nil)

	id1 := NewPacketId(types.PeerId{1}, 1, []byte("a"))
	m.CheckAndAdd(id1)

	ts.Advance(20 * time.Millisecond)

	id2 := NewPacketId(types.PeerId{2}, 2, []byte("b"))
	m.CheckAndAdd(id2)

	assert.Equal(t, uint64(1), m.Stats().Rotations)
	// id1 is still recognized via the prior filter immediately after rotation.
	assert.True(t, m.CheckAndAdd(id1))
}

func TestManagerRotatesOnFillRatio(t *testing.T) {
	ts := types.NewVirtualTimeSource(0)
	cfg := Config{BitSize: 64, HashFunctions: 3, TTL: time.Hour}
	m := NewManager(cfg, ts, nil)

	for i := 0; i < 40; i++ {
		m.CheckAndAdd(NewPacketId(types.PeerId{byte(i), byte(i >> 8)}, types.Timestamp(i), []byte{byte(i)}))
	}
	assert.Greater(t, m.Stats().Rotations, uint64(0))
}

func TestDuplicateRate(t *testing.T) {
	s := Stats{TotalChecked: 10, Duplicates: 3}
	assert.InDelta(t, 0.3, s.DuplicateRate(), 0.0001)

	var empty Stats
	assert.Equal(t, float64(0), empty.DuplicateRate())
}
