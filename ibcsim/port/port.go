// SPDX-License-Identifier: GPL-3.0-or-later

// Package port contains the [Application] bound to a port and the
// [*Middleware] that decorates it.
package port

import (
	"time"

	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

// Env is the chain environment in which a hook executes.
//
// Hooks run synchronously: packets sent through [Env] are queued by
// the chain and relayed in the next relay round.
type Env interface {
	// ChainID returns the identifier of the chain.
	ChainID() packet.ChainID

	// Now returns the chain's current logical time.
	Now() time.Time

	// Height returns the chain's current block height.
	Height() uint64

	// SendPacket emits a new packet on a local channel.
	SendPacket(req *packet.SendRequest) (*packet.Packet, error)
}

// Application implements the protocol hooks for one port.
//
// There are two kinds of applications: direct handlers bound to an
// address (see [*Handler]) and named modules such as ICS-20 transfer,
// which are types implementing this interface directly. A [*Middleware]
// is also an [Application] whose port is the port of its child.
type Application interface {
	// PortID returns the port identifier.
	PortID() packet.PortID

	// OnChannelOpen is called on both ends during the handshake with
	// the proposed channel. It returns the accepted version or an
	// error to reject the handshake.
	OnChannelOpen(env Env, ch packet.Channel) (string, error)

	// OnChannelConnect finalizes the handshake on both ends.
	OnChannelConnect(env Env, ch packet.Channel) error

	// OnPacketReceive processes a packet on the destination chain. A
	// returned error becomes a failure acknowledgement; if the error
	// comes with non-empty ack data, the data is kept.
	OnPacketReceive(env Env, pkt *packet.Packet) (packet.Acknowledgement, error)

	// OnPacketAck delivers the acknowledgement to the source chain.
	OnPacketAck(env Env, pkt *packet.Packet, ack packet.Acknowledgement) error

	// OnPacketTimeout tells the source chain that the packet expired.
	OnPacketTimeout(env Env, pkt *packet.Packet) error
}

// Sender is an optional interface of an [Application] that intercepts
// the packets sent from its port before the chain queues them.
//
// OnSendPacket returns the packet to queue, which may be rewritten but
// must keep its endpoints and sequence. Returning a nil packet, or an
// error, rejects the send.
type Sender interface {
	OnSendPacket(env Env, pkt *packet.Packet) (*packet.Packet, error)
}

// Handler is a direct [Application] bound to an address.
//
// Every hook is an optional func field; when a field is nil, the
// hook accepts: it agrees on the proposed version, returns a successful
// empty acknowledgement, and otherwise does nothing.
type Handler struct {
	// Address is the port identifier.
	Address packet.PortID

	// ChannelOpenFunc is the optional OnChannelOpen hook.
	ChannelOpenFunc func(env Env, ch packet.Channel) (string, error)

	// ChannelConnectFunc is the optional OnChannelConnect hook.
	ChannelConnectFunc func(env Env, ch packet.Channel) error

	// PacketReceiveFunc is the optional OnPacketReceive hook.
	PacketReceiveFunc func(env Env, pkt *packet.Packet) (packet.Acknowledgement, error)

	// PacketAckFunc is the optional OnPacketAck hook.
	PacketAckFunc func(env Env, pkt *packet.Packet, ack packet.Acknowledgement) error

	// PacketTimeoutFunc is the optional OnPacketTimeout hook.
	PacketTimeoutFunc func(env Env, pkt *packet.Packet) error

	// SendPacketFunc is the optional OnSendPacket hook.
	SendPacketFunc func(env Env, pkt *packet.Packet) (*packet.Packet, error)
}

var (
	_ Application = &Handler{}
	_ Sender      = &Handler{}
)

// PortID implements [Application].
func (h *Handler) PortID() packet.PortID {
	return h.Address
}

// OnChannelOpen implements [Application].
func (h *Handler) OnChannelOpen(env Env, ch packet.Channel) (string, error) {
	if h.ChannelOpenFunc != nil {
		return h.ChannelOpenFunc(env, ch)
	}
	return ch.Version, nil
}

// OnChannelConnect implements [Application].
func (h *Handler) OnChannelConnect(env Env, ch packet.Channel) error {
	if h.ChannelConnectFunc != nil {
		return h.ChannelConnectFunc(env, ch)
	}
	return nil
}

// OnPacketReceive implements [Application].
func (h *Handler) OnPacketReceive(env Env, pkt *packet.Packet) (packet.Acknowledgement, error) {
	if h.PacketReceiveFunc != nil {
		return h.PacketReceiveFunc(env, pkt)
	}
	return packet.NewSuccessAck(nil), nil
}

// OnPacketAck implements [Application].
func (h *Handler) OnPacketAck(env Env, pkt *packet.Packet, ack packet.Acknowledgement) error {
	if h.PacketAckFunc != nil {
		return h.PacketAckFunc(env, pkt, ack)
	}
	return nil
}

// OnPacketTimeout implements [Application].
func (h *Handler) OnPacketTimeout(env Env, pkt *packet.Packet) error {
	if h.PacketTimeoutFunc != nil {
		return h.PacketTimeoutFunc(env, pkt)
	}
	return nil
}

// OnSendPacket implements [Sender].
func (h *Handler) OnSendPacket(env Env, pkt *packet.Packet) (*packet.Packet, error) {
	if h.SendPacketFunc != nil {
		return h.SendPacketFunc(env, pkt)
	}
	return pkt, nil
}
