// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelID(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := NewChannelID(17)
		assert.Equal(t, "channel-17", id)
		number, err := ParseChannelID(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(17), number)
	})

	t.Run("missing prefix", func(t *testing.T) {
		_, err := ParseChannelID("chan-1")
		assert.ErrorIs(t, err, errInvalidChannelID)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := ParseChannelID("channel-x")
		assert.ErrorIs(t, err, errInvalidChannelID)
	})
}

func TestChannel_Mirror(t *testing.T) {
	ch := Channel{
		Local:        Endpoint{ChainID: "osmosis-1", PortID: "transfer", ChannelID: "channel-0"},
		Remote:       Endpoint{ChainID: "juno-1", PortID: "transfer", ChannelID: "channel-3"},
		Order:        Ordered,
		Version:      "ics20-1",
		ConnectionID: "connection-0",
		State:        Open,
	}
	mirror := ch.Mirror("connection-7")
	assert.Equal(t, ch.Local, mirror.Remote)
	assert.Equal(t, ch.Remote, mirror.Local)
	assert.Equal(t, "connection-7", mirror.ConnectionID)
	assert.Equal(t, ch.Order, mirror.Order)
	assert.Equal(t, ch.Version, mirror.Version)
	assert.Equal(t, ch.State, mirror.State)
}

func TestPacket_TimedOut(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	type testcase struct {
		name   string
		pkt    *Packet
		height uint64
		expect bool
	}

	tests := []testcase{
		{
			name:   "no timeout",
			pkt:    &Packet{},
			height: 1000,
			expect: false,
		},
		{
			name:   "timestamp in the future",
			pkt:    &Packet{TimeoutTimestamp: now.Add(time.Second)},
			expect: false,
		},
		{
			name:   "timestamp equal to now",
			pkt:    &Packet{TimeoutTimestamp: now},
			expect: true,
		},
		{
			name:   "timestamp in the past",
			pkt:    &Packet{TimeoutTimestamp: now.Add(-time.Second)},
			expect: true,
		},
		{
			name:   "height not reached",
			pkt:    &Packet{TimeoutHeight: 10},
			height: 9,
			expect: false,
		},
		{
			name:   "height reached",
			pkt:    &Packet{TimeoutHeight: 10},
			height: 10,
			expect: true,
		},
		{
			name:   "height reached but timestamp in the future",
			pkt:    &Packet{TimeoutHeight: 10, TimeoutTimestamp: now.Add(time.Hour)},
			height: 11,
			expect: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.pkt.TimedOut(now, tt.height))
		})
	}
}

func TestPacket_WithData(t *testing.T) {
	data := []byte("ping")
	pkt := &Packet{Sequence: 4, Data: data}
	copied := pkt.WithData([]byte("pong"))
	assert.Equal(t, []byte("ping"), pkt.Data)
	assert.Equal(t, []byte("pong"), copied.Data)
	assert.Equal(t, uint64(4), copied.Sequence)
}

func TestNewErrorAck(t *testing.T) {
	ack := NewErrorAck(errors.New("insufficient funds"))
	assert.False(t, ack.Success)
	assert.Equal(t, []byte("insufficient funds"), ack.Data)

	ack = NewErrorAck(nil)
	assert.False(t, ack.Success)
	assert.Empty(t, ack.Data)
}

func TestResolution_String(t *testing.T) {
	pkt := &Packet{
		Sequence:    1,
		Source:      Endpoint{ChainID: "a", PortID: "p", ChannelID: "channel-0"},
		Destination: Endpoint{ChainID: "b", PortID: "q", ChannelID: "channel-1"},
		Data:        []byte("ping"),
	}
	assert.Equal(t, "ACK a/p/channel-0 -> b/q/channel-1 seq=1 length=4",
		(&Resolution{Packet: pkt, Ack: NewSuccessAck(nil)}).String())
	assert.Equal(t, "NACK a/p/channel-0 -> b/q/channel-1 seq=1 length=4",
		(&Resolution{Packet: pkt}).String())
	assert.Equal(t, "TIMEOUT a/p/channel-0 -> b/q/channel-1 seq=1 length=4",
		(&Resolution{Packet: pkt, TimedOut: true}).String())
}
