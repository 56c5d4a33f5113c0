// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package delivery

import (
	"sync"

	"github.com/google/uuid"
)

// ReceiptManager deduplicates outbound delivery acks and read receipts
// so a message is acknowledged or marked read toward its sender at
// most once, and offers privacy switches to suppress either kind
// entirely.
type ReceiptManager struct {
	mu sync.Mutex

	sentDeliveryAcks map[uuid.UUID]struct{}
	sentReadReceipts map[uuid.UUID]struct{}

	deliveryAcksEnabled  bool
	readReceiptsEnabled  bool
}

// NewReceiptManager creates a ReceiptManager with both receipt kinds
// enabled.
func NewReceiptManager() *ReceiptManager {
	return &ReceiptManager{
		sentDeliveryAcks:    make(map[uuid.UUID]struct{}),
		sentReadReceipts:    make(map[uuid.UUID]struct{}),
		deliveryAcksEnabled: true,
		readReceiptsEnabled: true,
	}
}

// ShouldSendDeliveryAck reports whether a delivery ack for messageID
// has not yet been sent and delivery acks are currently enabled.
func (r *ReceiptManager) ShouldSendDeliveryAck(messageID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deliveryAcksEnabled {
		return false
	}
	_, sent := r.sentDeliveryAcks[messageID]
	return !sent
}

// ShouldSendReadReceipt reports whether a read receipt for messageID
// has not yet been sent and read receipts are currently enabled.
func (r *ReceiptManager) ShouldSendReadReceipt(messageID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.readReceiptsEnabled {
		return false
	}
	_, sent := r.sentReadReceipts[messageID]
	return !sent
}

// MarkDeliveryAckSent records that a delivery ack for messageID has
// been sent.
func (r *ReceiptManager) MarkDeliveryAckSent(messageID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentDeliveryAcks[messageID] = struct{}{}
}

// MarkReadReceiptSent records that a read receipt for messageID has
// been sent.
func (r *ReceiptManager) MarkReadReceiptSent(messageID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentReadReceipts[messageID] = struct{}{}
}

// SetDeliveryAcksEnabled toggles whether ShouldSendDeliveryAck can ever
// return true, for a user-level privacy preference.
func (r *ReceiptManager) SetDeliveryAcksEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveryAcksEnabled = enabled
}

// SetReadReceiptsEnabled toggles whether ShouldSendReadReceipt can ever
// return true, for a user-level privacy preference.
func (r *ReceiptManager) SetReadReceiptsEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readReceiptsEnabled = enabled
}

// CleanupOldReceipts bounds memory by evicting tracked entries once
// either set exceeds maxEntries. Eviction order is unspecified, since
// Go map iteration order already is; callers needing age-based
// eviction should size maxEntries generously relative to traffic.
func (r *ReceiptManager) CleanupOldReceipts(maxEntries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evictExcess(r.sentDeliveryAcks, maxEntries)
	evictExcess(r.sentReadReceipts, maxEntries)
}

func evictExcess(set map[uuid.UUID]struct{}, maxEntries int) {
	excess := len(set) - maxEntries
	if excess <= 0 {
		return
	}
	for id := range set {
		if excess == 0 {
			break
		}
		delete(set, id)
		excess--
	}
}

// ReceiptStats summarizes a ReceiptManager's tracked state.
type ReceiptStats struct {
	DeliveryAcksSent    int
	ReadReceiptsSent    int
	DeliveryAcksEnabled bool
	ReadReceiptsEnabled bool
}

// Stats returns a snapshot of the ReceiptManager's counters.
func (r *ReceiptManager) Stats() ReceiptStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReceiptStats{
		DeliveryAcksSent:    len(r.sentDeliveryAcks),
		ReadReceiptsSent:    len(r.sentReadReceipts),
		DeliveryAcksEnabled: r.deliveryAcksEnabled,
		ReadReceiptsEnabled: r.readReceiptsEnabled,
	}
}
