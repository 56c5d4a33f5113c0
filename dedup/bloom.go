// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package dedup implements loop suppression for the flooding mesh
// transport: a rotating pair of Bloom filters over 32-byte PacketIds.
package dedup

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/bitchat-mesh/core/types"
)

// DefaultBitSize is the design default bit-array size (64 Ki bits).
const DefaultBitSize = 64 * 1024

// DefaultHashFunctions is the design default number of hash functions.
const DefaultHashFunctions = 3

// DefaultFilterTTL is the design default filter age before rotation.
const DefaultFilterTTL = 5 * time.Minute

// BloomFilter is a fixed-size bit array with k independent hash
// functions over a PacketId, backed by github.com/bits-and-blooms/bitset
// the way the pack's bloom-filter lineage (holiman/bloomfilter and its
// bits-and-blooms/bitset dependency) represents its bit array.
type BloomFilter struct {
	bits      *bitset.BitSet
	size      uint
	k         int
	createdAt types.Timestamp
}

// NewBloomFilter creates a BloomFilter with the given bit size and hash
// function count.
func NewBloomFilter(size uint, k int, now types.Timestamp) *BloomFilter {
	return &BloomFilter{
		bits:      bitset.New(size),
		size:      size,
		k:         k,
		createdAt: now,
	}
}

// OptimalBitSize computes the bit array size minimizing false positives
// for expectedElements insertions at the target false-positive rate,
// using the standard Bloom filter sizing formula.
func OptimalBitSize(expectedElements int, falsePositiveRate float64) uint {
	n := float64(expectedElements)
	p := falsePositiveRate
	m := -(n * math.Log(p)) / (math.Ln2 * math.Ln2)
	if m < 1 {
		return 1
	}
	return uint(math.Ceil(m))
}

// OptimalHashFunctions computes the hash function count minimizing false
// positives for the given bit size and expected element count.
func OptimalHashFunctions(bitSize uint, expectedElements int) int {
	if expectedElements == 0 {
		return DefaultHashFunctions
	}
	m := float64(bitSize)
	n := float64(expectedElements)
	k := int(math.Round((m / n) * math.Ln2))
	if k < 1 {
		return 1
	}
	return k
}

// hashIndex computes hash i of id as the first 8 bytes of
// SHA-256(i || id), reduced modulo the bit size.
func (b *BloomFilter) hashIndex(i int, id PacketId) uint {
	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], uint32(i))
	h := sha256.New()
	h.Write(seed[:])
	h.Write(id[:])
	sum := h.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8])
	return uint(v % uint64(b.size))
}

// Add sets the k bits corresponding to id.
func (b *BloomFilter) Add(id PacketId) {
	for i := 0; i < b.k; i++ {
		b.bits.Set(b.hashIndex(i, id))
	}
}

// Contains reports whether all k bits corresponding to id are set. A
// true result may be a false positive; false is always correct.
func (b *BloomFilter) Contains(id PacketId) bool {
	for i := 0; i < b.k; i++ {
		if !b.bits.Test(b.hashIndex(i, id)) {
			return false
		}
	}
	return true
}

// FillRatio returns the fraction of bits currently set.
func (b *BloomFilter) FillRatio() float64 {
	if b.size == 0 {
		return 0
	}
	return float64(b.bits.Count()) / float64(b.size)
}

// IsExpired reports whether this filter's age exceeds ttl as of now.
func (b *BloomFilter) IsExpired(now types.Timestamp, ttl time.Duration) bool {
	return time.Duration(now.Sub(b.createdAt))*time.Millisecond > ttl
}

// EstimatedFalsePositiveRate estimates the current false-positive
// probability given elementsAdded insertions, via the standard Bloom
// filter formula (1 - e^(-kn/m))^k.
func (b *BloomFilter) EstimatedFalsePositiveRate(elementsAdded int) float64 {
	if b.size == 0 {
		return 1
	}
	k := float64(b.k)
	n := float64(elementsAdded)
	m := float64(b.size)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
