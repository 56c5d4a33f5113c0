// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/fragmentation"
	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/types"
)

func newTestDispatcher(t *testing.T, mode fragmentation.Mode) (*Dispatcher, *[]AppEvent) {
	t.Helper()
	var events []AppEvent
	sink := SinkFunc(func(e AppEvent) { events = append(events, e) })
	ts := types.NewVirtualTimeSource(0)
	r := fragmentation.NewReassembler(fragmentation.DefaultEntryTTL, ts, nil)
	return NewDispatcher(sink, r, mode, nil), &events
}

func TestDispatchMessage(t *testing.T) {
	d, events := newTestDispatcher(t, fragmentation.ModePlain)

	msg := types.BitchatMessage{ID: uuid.New(), Sender: "alice", Content: "hi", CreatedAt: 1}
	payload, err := packet.EncodeBitchatMessage(msg)
	require.NoError(t, err)

	pkt := &packet.BitchatPacket{MessageType: types.MessageTypeMessage, SenderID: types.PeerId{1}, Payload: payload}
	require.NoError(t, d.Dispatch(pkt))

	require.Len(t, *events, 1)
	assert.Equal(t, EventMessageReceived, (*events)[0].Kind)
	assert.Equal(t, msg.Content, (*events)[0].Message.Content)
}

func TestDispatchDeliveryAck(t *testing.T) {
	d, events := newTestDispatcher(t, fragmentation.ModePlain)

	ack := packet.AckPayload{MessageID: uuid.New()}
	payload, err := ack.Encode()
	require.NoError(t, err)

	pkt := &packet.BitchatPacket{MessageType: types.MessageTypeDeliveryAck, SenderID: types.PeerId{2}, Payload: payload}
	require.NoError(t, d.Dispatch(pkt))

	require.Len(t, *events, 1)
	assert.Equal(t, EventDeliveryConfirmed, (*events)[0].Kind)
	assert.Equal(t, ack.MessageID, (*events)[0].ConfirmedID)
}

func TestDispatchAnnounce(t *testing.T) {
	d, events := newTestDispatcher(t, fragmentation.ModePlain)
	pkt := &packet.BitchatPacket{MessageType: types.MessageTypeAnnounce, SenderID: types.PeerId{3}, Payload: []byte("bob")}
	require.NoError(t, d.Dispatch(pkt))
	require.Len(t, *events, 1)
	assert.Equal(t, "bob", (*events)[0].AnnouncedNickname)
}

func TestDispatchUnknownTypeErrors(t *testing.T) {
	d, _ := newTestDispatcher(t, fragmentation.ModePlain)
	pkt := &packet.BitchatPacket{MessageType: types.MessageType(200), SenderID: types.PeerId{1}}
	err := d.Dispatch(pkt)
	require.Error(t, err)
	var target *bcerr.UnknownMessageTypeError
	assert.ErrorAs(t, err, &target)
}

func TestDispatchFragmentedMessageReassemblesThenDispatches(t *testing.T) {
	d, events := newTestDispatcher(t, fragmentation.ModePlain)

	msg := types.BitchatMessage{ID: uuid.New(), Sender: "carol", Content: "a long chat message body", CreatedAt: 5}
	inner, err := packet.EncodeBitchatMessage(msg)
	require.NoError(t, err)

	f := fragmentation.NewFragmenter(fragmentation.ModePlain)
	frags, err := f.Fragment(inner, uint8(types.MessageTypeMessage), 20)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	sender := types.PeerId{4}
	for i, frag := range frags {
		mt := types.MessageTypeFragmentContinue
		if i == 0 {
			mt = types.MessageTypeFragmentStart
		}
		if i == len(frags)-1 {
			mt = types.MessageTypeFragmentEnd
		}
		pkt := &packet.BitchatPacket{MessageType: mt, SenderID: sender, Payload: frag.EncodePayload()}
		require.NoError(t, d.Dispatch(pkt))
	}

	require.Len(t, *events, 1)
	assert.Equal(t, EventMessageReceived, (*events)[0].Kind)
	assert.Equal(t, msg.Content, (*events)[0].Message.Content)
}

func TestDispatchHandshakeLegsProduceNoEvents(t *testing.T) {
	d, events := newTestDispatcher(t, fragmentation.ModePlain)
	pkt := &packet.BitchatPacket{MessageType: types.MessageTypeHandshakeInit, SenderID: types.PeerId{1}, Payload: []byte("noise-bytes")}
	require.NoError(t, d.Dispatch(pkt))
	assert.Empty(t, *events)
}
