// SPDX-License-Identifier: GPL-3.0-or-later

package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"github.com/rbmk-project/ibcx/ibcsim/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openChannel stores an open channel end on c towards the given remote.
func openChannel(t *testing.T, c *Chain, portID packet.PortID, remote packet.Endpoint) packet.Channel {
	ch := packet.Channel{
		Local: packet.Endpoint{
			ChainID:   c.ChainID(),
			PortID:    portID,
			ChannelID: c.AllocateChannelID(),
		},
		Remote:       remote,
		Order:        packet.Unordered,
		Version:      "v1",
		ConnectionID: "connection-0",
		State:        packet.Open,
	}
	require.NoError(t, c.AddChannel(ch))
	return ch
}

var remoteEnd = packet.Endpoint{ChainID: "juno-1", PortID: "wasm.juno", ChannelID: "channel-9"}

func TestNew(t *testing.T) {
	t.Run("missing chain id", func(t *testing.T) {
		c, err := New(&Config{})
		assert.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("defaults", func(t *testing.T) {
		c := MustNew(&Config{ChainID: "osmosis-1"})
		assert.Equal(t, "osmosis-1", c.ChainID())
		assert.Equal(t, DefaultGenesisTime, c.Now())
		assert.Equal(t, uint64(1), c.Height())
	})

	t.Run("MustNew panics on error", func(t *testing.T) {
		assert.Panics(t, func() { MustNew(&Config{}) })
	})
}

func TestChain_clock(t *testing.T) {
	t.Run("NextBlock advances height and time", func(t *testing.T) {
		genesis := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
		c := MustNew(&Config{ChainID: "a", GenesisTime: genesis, BlockTime: 6 * time.Second})
		c.NextBlock()
		c.NextBlock()
		assert.Equal(t, uint64(3), c.Height())
		assert.Equal(t, genesis.Add(12*time.Second), c.Now())
	})

	t.Run("AdvanceTime", func(t *testing.T) {
		c := MustNew(&Config{ChainID: "a"})
		c.AdvanceTime(time.Hour)
		assert.Equal(t, DefaultGenesisTime.Add(time.Hour), c.Now())
	})

	t.Run("external mock clock", func(t *testing.T) {
		mock := clock.NewMock()
		c := MustNew(&Config{ChainID: "a", Clock: mock})
		mock.Add(time.Minute)
		assert.Equal(t, mock.Now(), c.Now())
		assert.Same(t, mock, c.Clock())
	})
}

func TestChain_BindPort(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	app := &port.Handler{Address: "transfer"}
	require.NoError(t, c.BindPort(app))

	t.Run("duplicate port", func(t *testing.T) {
		err := c.BindPort(&port.Handler{Address: "transfer"})
		assert.ErrorIs(t, err, ErrPortBound)
	})

	t.Run("middleware shares the child identity", func(t *testing.T) {
		err := c.BindPort(&port.Middleware{Child: &port.Handler{Address: "transfer"}})
		assert.ErrorIs(t, err, ErrPortBound)
	})

	t.Run("empty port", func(t *testing.T) {
		err := c.BindPort(&port.Handler{})
		assert.ErrorIs(t, err, ErrUnknownPort)
	})

	t.Run("lookup", func(t *testing.T) {
		got, err := c.Application("transfer")
		require.NoError(t, err)
		assert.Same(t, app, got)
		_, err = c.Application("nonexistent")
		assert.ErrorIs(t, err, ErrUnknownPort)
	})
}

// closingApp is an application owning resources.
type closingApp struct {
	port.Handler
	closed *[]packet.PortID
	err    error
}

func (a *closingApp) Close() error {
	*a.closed = append(*a.closed, a.Address)
	return a.err
}

func TestChain_Close(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	var closed []packet.PortID
	expected := errors.New("database is locked")
	require.NoError(t, c.BindPort(&closingApp{Handler: port.Handler{Address: "transfer"}, closed: &closed, err: expected}))
	require.NoError(t, c.BindPort(&port.Handler{Address: "wasm.a1plain"}))
	require.NoError(t, c.BindPort(&closingApp{Handler: port.Handler{Address: "wasm.a1counter"}, closed: &closed}))

	err := c.Close()
	assert.ErrorIs(t, err, expected)
	assert.Equal(t, []packet.PortID{"wasm.a1counter", "transfer"}, closed)

	_, err = c.Application("transfer")
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.Len(t, closed, 2)
}

func TestChain_channels(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	first := openChannel(t, c, "p", remoteEnd)
	second := openChannel(t, c, "p", remoteEnd)
	assert.Equal(t, "channel-0", first.Local.ChannelID)
	assert.Equal(t, "channel-1", second.Local.ChannelID)

	t.Run("lookup", func(t *testing.T) {
		got, err := c.Channel("channel-1")
		require.NoError(t, err)
		assert.Equal(t, second, got)
		_, err = c.Channel("channel-5")
		assert.ErrorIs(t, err, ErrUnknownChannel)
	})

	t.Run("list", func(t *testing.T) {
		assert.Equal(t, []packet.Channel{first, second}, c.Channels())
	})

	t.Run("duplicate", func(t *testing.T) {
		assert.ErrorIs(t, c.AddChannel(first), ErrChannelExists)
	})

	t.Run("foreign channel", func(t *testing.T) {
		foreign := first.Mirror("connection-1")
		assert.ErrorIs(t, c.AddChannel(foreign), ErrChannelMismatch)
	})
}

func TestChain_SendPacket(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	ch := openChannel(t, c, "p", remoteEnd)

	t.Run("sequences are monotonic per channel", func(t *testing.T) {
		for want := uint64(1); want <= 3; want++ {
			pkt, err := c.SendPacket(&packet.SendRequest{ChannelID: ch.Local.ChannelID, Data: []byte("x")})
			require.NoError(t, err)
			assert.Equal(t, want, pkt.Sequence)
			assert.Equal(t, ch.Local, pkt.Source)
			assert.Equal(t, ch.Remote, pkt.Destination)
		}
		assert.Len(t, c.PendingPackets(), 3)
	})

	t.Run("payload is copied", func(t *testing.T) {
		data := []byte("ping")
		pkt, err := c.SendPacket(&packet.SendRequest{ChannelID: ch.Local.ChannelID, Data: data})
		require.NoError(t, err)
		data[0] = 'P'
		assert.Equal(t, []byte("ping"), pkt.Data)
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := c.SendPacket(&packet.SendRequest{ChannelID: "channel-42"})
		assert.ErrorIs(t, err, ErrUnknownChannel)
	})

	t.Run("channel not open", func(t *testing.T) {
		pending := packet.Channel{
			Local:  packet.Endpoint{ChainID: "a", PortID: "p", ChannelID: c.AllocateChannelID()},
			Remote: remoteEnd,
			State:  packet.Init,
		}
		require.NoError(t, c.AddChannel(pending))
		_, err := c.SendPacket(&packet.SendRequest{ChannelID: pending.Local.ChannelID})
		assert.ErrorIs(t, err, ErrChannelNotOpen)
	})
}

func TestChain_SendPacket_intercepted(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	var mode string
	expected := errors.New("memo too long")
	require.NoError(t, c.BindPort(&port.Handler{
		Address: "wasm.a1guard",
		SendPacketFunc: func(env port.Env, pkt *packet.Packet) (*packet.Packet, error) {
			switch mode {
			case "rewrite":
				return pkt.WithData([]byte("rewritten")), nil
			case "drop":
				return nil, nil
			case "fail":
				return nil, expected
			case "reroute":
				out := pkt.WithData(pkt.Data)
				out.Sequence = 99
				return out, nil
			default:
				return pkt, nil
			}
		},
	}))
	ch := openChannel(t, c, "wasm.a1guard", remoteEnd)
	send := func() (*packet.Packet, error) {
		return c.SendPacket(&packet.SendRequest{ChannelID: ch.Local.ChannelID, Data: []byte("ping")})
	}

	t.Run("rewrite", func(t *testing.T) {
		mode = "rewrite"
		pkt, err := send()
		require.NoError(t, err)
		assert.Equal(t, []byte("rewritten"), pkt.Data)
		pending := c.DrainOutgoing()
		require.Len(t, pending, 1)
		assert.Same(t, pkt, pending[0])
	})

	t.Run("rejections consume the sequence", func(t *testing.T) {
		mode = "drop"
		_, err := send()
		assert.ErrorIs(t, err, ErrSendRejected)

		mode = "fail"
		_, err = send()
		assert.ErrorIs(t, err, expected)
		var hookErr *HookError
		require.ErrorAs(t, err, &hookErr)
		assert.Equal(t, "OnSendPacket", hookErr.Hook)

		mode = "reroute"
		_, err = send()
		assert.ErrorIs(t, err, ErrChannelMismatch)
		assert.Empty(t, c.PendingPackets())

		mode = ""
		pkt, err := send()
		require.NoError(t, err)
		assert.Equal(t, uint64(5), pkt.Sequence)
	})
}

func TestChain_queues(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	p1 := &packet.Packet{Sequence: 1}
	p2 := &packet.Packet{Sequence: 2}
	c.EnqueueOutgoing(p1)
	c.EnqueueOutgoing(p2)

	assert.Equal(t, []*packet.Packet{p1, p2}, c.PendingPackets())
	assert.Equal(t, []*packet.Packet{p1, p2}, c.DrainOutgoing())
	assert.Empty(t, c.DrainOutgoing())
	assert.Empty(t, c.PendingPackets())

	r1 := &packet.Resolution{Packet: p1, TimedOut: true}
	r2 := &packet.Resolution{Packet: p2, Ack: packet.NewSuccessAck(nil)}
	c.EnqueueInbound(r1)
	c.EnqueueInbound(r2)
	assert.Equal(t, []*packet.Resolution{r1, r2}, c.PendingResolutions())
	assert.Equal(t, []*packet.Resolution{r1, r2}, c.DrainInbound())
	assert.Empty(t, c.DrainInbound())

	t.Run("take outgoing", func(t *testing.T) {
		on := func(channelID packet.ChannelID, sequence uint64) *packet.Packet {
			return &packet.Packet{Sequence: sequence, Source: packet.Endpoint{ChainID: "a", ChannelID: channelID}}
		}
		a1, b1, a2 := on("channel-0", 1), on("channel-1", 1), on("channel-0", 2)
		c.EnqueueOutgoing(a1)
		c.EnqueueOutgoing(b1)
		c.EnqueueOutgoing(a2)

		got, err := c.TakeOutgoing("channel-1", 1)
		require.NoError(t, err)
		assert.Same(t, b1, got)
		assert.Equal(t, []*packet.Packet{a1, a2}, c.PendingPackets())

		_, err = c.TakeOutgoing("channel-1", 1)
		assert.ErrorIs(t, err, ErrNoPendingPacket)
		c.DrainOutgoing()
	})
}

func TestChain_deliver(t *testing.T) {
	var received, acked, timedOut int
	expectedErr := errors.New("mocked hook error")
	failing := false
	app := &port.Handler{
		Address: "p",
		PacketReceiveFunc: func(env port.Env, pkt *packet.Packet) (packet.Acknowledgement, error) {
			received++
			if failing {
				return packet.Acknowledgement{Data: []byte("custom")}, expectedErr
			}
			return packet.NewSuccessAck([]byte("ok")), nil
		},
		PacketAckFunc: func(env port.Env, pkt *packet.Packet, ack packet.Acknowledgement) error {
			acked++
			return nil
		},
		PacketTimeoutFunc: func(env port.Env, pkt *packet.Packet) error {
			timedOut++
			return expectedErr
		},
	}
	c := MustNew(&Config{ChainID: "a"})
	require.NoError(t, c.BindPort(app))
	ch := openChannel(t, c, "p", remoteEnd)

	// incoming is a packet sent by the remote end to c.
	incoming := &packet.Packet{Sequence: 1, Source: remoteEnd, Destination: ch.Local}

	// outgoing is a packet sent by c to the remote end.
	outgoing := &packet.Packet{Sequence: 1, Source: ch.Local, Destination: remoteEnd}

	t.Run("receive", func(t *testing.T) {
		ack, err := c.ReceivePacket(incoming)
		require.NoError(t, err)
		assert.Equal(t, packet.NewSuccessAck([]byte("ok")), ack)
		assert.Equal(t, 1, received)
	})

	t.Run("receive with hook error", func(t *testing.T) {
		failing = true
		defer func() { failing = false }()
		ack, err := c.ReceivePacket(incoming)
		var hookErr *HookError
		require.ErrorAs(t, err, &hookErr)
		assert.Equal(t, "OnPacketReceive", hookErr.Hook)
		assert.ErrorIs(t, err, expectedErr)
		assert.Equal(t, []byte("custom"), ack.Data)
	})

	t.Run("receive on unknown channel", func(t *testing.T) {
		pkt := &packet.Packet{Source: remoteEnd, Destination: packet.Endpoint{ChainID: "a", ChannelID: "channel-7"}}
		_, err := c.ReceivePacket(pkt)
		assert.ErrorIs(t, err, ErrUnknownChannel)
		var hookErr *HookError
		assert.False(t, errors.As(err, &hookErr))
	})

	t.Run("receive from the wrong counterparty", func(t *testing.T) {
		pkt := &packet.Packet{
			Source:      packet.Endpoint{ChainID: "evil-1", PortID: "x", ChannelID: "channel-0"},
			Destination: ch.Local,
		}
		_, err := c.ReceivePacket(pkt)
		assert.ErrorIs(t, err, ErrChannelMismatch)
	})

	t.Run("ack", func(t *testing.T) {
		require.NoError(t, c.DeliverAck(outgoing, packet.NewSuccessAck(nil)))
		assert.Equal(t, 1, acked)
	})

	t.Run("timeout with hook error", func(t *testing.T) {
		err := c.DeliverTimeout(outgoing)
		assert.ErrorIs(t, err, expectedErr)
		assert.Equal(t, 1, timedOut)
	})

	t.Run("unbound port", func(t *testing.T) {
		orphan := openChannel(t, c, "orphan", remoteEnd)
		pkt := &packet.Packet{Source: orphan.Local, Destination: remoteEnd}
		assert.ErrorIs(t, c.DeliverAck(pkt, packet.NewSuccessAck(nil)), ErrUnknownPort)
	})
}

func TestChain_handshakeHooks(t *testing.T) {
	c := MustNew(&Config{ChainID: "a"})
	expectedErr := errors.New("bad version")
	require.NoError(t, c.BindPort(&port.Handler{
		Address: "p",
		ChannelOpenFunc: func(env port.Env, ch packet.Channel) (string, error) {
			assert.Equal(t, "a", env.ChainID())
			return "", expectedErr
		},
	}))
	ch := packet.Channel{Local: packet.Endpoint{ChainID: "a", PortID: "p"}}

	_, err := c.OpenChannelEnd(ch)
	assert.ErrorIs(t, err, expectedErr)
	assert.NoError(t, c.ConnectChannelEnd(ch))

	ch.Local.PortID = "missing"
	_, err = c.OpenChannelEnd(ch)
	assert.ErrorIs(t, err, ErrUnknownPort)
	assert.ErrorIs(t, c.ConnectChannelEnd(ch), ErrUnknownPort)
}
