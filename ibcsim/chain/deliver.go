//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Invoking application hooks
//

package chain

import (
	"fmt"

	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"github.com/rbmk-project/ibcx/ibcsim/port"
)

// HookError wraps an error returned by an application hook, as
// opposed to a failure to find the application in the first place.
type HookError struct {
	// Hook is the name of the hook (e.g., "OnPacketReceive").
	Hook string

	// PortID is the port of the application.
	PortID packet.PortID

	// Err is the error returned by the hook.
	Err error
}

// Error implements [error].
func (e *HookError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.PortID, e.Hook, e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// hookError returns nil when err is nil and a [*HookError] otherwise.
func hookError(hook string, portID packet.PortID, err error) error {
	if err == nil {
		return nil
	}
	return &HookError{Hook: hook, PortID: portID, Err: err}
}

// route finds the channel end and the bound application for a local
// channel, checking that the counterparty matches the given endpoint.
func (c *Chain) route(local packet.ChannelID, remote packet.Endpoint) (port.Application, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, found := c.channels[local]
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownChannel, c.id, local)
	}
	if ch.State != packet.Open {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotOpen, ch.Local)
	}
	if ch.Remote != remote {
		return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrChannelMismatch, ch.Local, ch.Remote, remote)
	}
	return c.applicationLocked(ch.Local.PortID)
}

// OpenChannelEnd invokes OnChannelOpen on the application bound to the
// local port of the proposed channel end.
func (c *Chain) OpenChannelEnd(ch packet.Channel) (string, error) {
	app, err := c.Application(ch.Local.PortID)
	if err != nil {
		return "", err
	}
	version, err := app.OnChannelOpen(c, ch)
	return version, hookError("OnChannelOpen", ch.Local.PortID, err)
}

// ConnectChannelEnd invokes OnChannelConnect on the application bound
// to the local port of the channel end.
func (c *Chain) ConnectChannelEnd(ch packet.Channel) error {
	app, err := c.Application(ch.Local.PortID)
	if err != nil {
		return err
	}
	return hookError("OnChannelConnect", ch.Local.PortID, app.OnChannelConnect(c, ch))
}

// ReceivePacket delivers a packet to the application bound to its
// destination port on this chain.
//
// Routing failures are returned as plain errors. When the hook fails,
// we return the acknowledgement it produced along with a [*HookError].
func (c *Chain) ReceivePacket(pkt *packet.Packet) (packet.Acknowledgement, error) {
	app, err := c.route(pkt.Destination.ChannelID, pkt.Source)
	if err != nil {
		return packet.Acknowledgement{}, err
	}
	ack, err := app.OnPacketReceive(c, pkt)
	return ack, hookError("OnPacketReceive", app.PortID(), err)
}

// DeliverAck delivers an acknowledgement to the application that sent
// the packet from this chain.
func (c *Chain) DeliverAck(pkt *packet.Packet, ack packet.Acknowledgement) error {
	app, err := c.route(pkt.Source.ChannelID, pkt.Destination)
	if err != nil {
		return err
	}
	return hookError("OnPacketAck", app.PortID(), app.OnPacketAck(c, pkt, ack))
}

// DeliverTimeout tells the application that sent the packet from
// this chain that the packet expired.
func (c *Chain) DeliverTimeout(pkt *packet.Packet) error {
	app, err := c.route(pkt.Source.ChannelID, pkt.Destination)
	if err != nil {
		return err
	}
	return hookError("OnPacketTimeout", app.PortID(), app.OnPacketTimeout(c, pkt))
}
