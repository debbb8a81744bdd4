//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Channel handshake
//

package ibcsim

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/ibcx/errclass"
	"github.com/rbmk-project/ibcx/ibcsim/chain"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

// errVersionMismatch indicates that the two ends agreed on different versions.
var errVersionMismatch = errors.New("version mismatch")

// errOrderMismatch indicates that the two ends proposed different orders.
var errOrderMismatch = errors.New("order mismatch")

// ChannelProposal describes one end of a channel to open.
type ChannelProposal struct {
	// ChainID is the chain owning this end.
	ChainID packet.ChainID

	// PortID is the port bound to this end.
	PortID packet.PortID

	// Order is the proposed order, which must match the other end.
	Order packet.Order

	// Version is the proposed version. The application may replace
	// it in OnChannelOpen and both ends must agree in the end.
	Version string

	// ConnectionID is the connection recorded by this end.
	ConnectionID string
}

// OpenChannel runs the channel handshake between two ends and
// returns the channel IDs assigned on each end.
//
// The handshake calls OnChannelOpen on a (state INIT) and b (state
// TRYOPEN), requires orders and versions to match, then calls
// OnChannelConnect on both with state OPEN. Only when every step
// succeeds do both chains store the channel, so a failure leaves no
// channel on either end. Once both chains are known and the orders
// match, the channel IDs are allocated and never reused, even when a
// later step fails. Errors wrap [ErrHandshake] and the cause.
func (e *Ecosystem) OpenChannel(a, b *ChannelProposal) (packet.ChannelID, packet.ChannelID, error) {
	t0 := time.Now()
	if e.logger != nil {
		e.logger.Info(
			"channelOpenStart",
			slog.String("chainA", a.ChainID),
			slog.String("portA", a.PortID),
			slog.String("chainB", b.ChainID),
			slog.String("portB", b.PortID),
			slog.String("order", a.Order.String()),
			slog.Time("t", t0),
		)
	}

	chA, chB, err := e.openChannel(a, b)
	if err != nil {
		e.metrics.handshakeFails.Inc()
		err = fmt.Errorf("%w: %w", ErrHandshake, err)
	} else {
		e.metrics.channelsOpened.Inc()
	}

	if e.logger != nil {
		e.logger.Info(
			"channelOpenDone",
			slog.String("chainA", a.ChainID),
			slog.String("channelA", chA.Local.ChannelID),
			slog.String("chainB", b.ChainID),
			slog.String("channelB", chB.Local.ChannelID),
			slog.String("version", chA.Version),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Time("t0", t0),
			slog.Time("t", time.Now()),
		)
	}

	if err != nil {
		return "", "", err
	}
	return chA.Local.ChannelID, chB.Local.ChannelID, nil
}

// MustOpenChannel is like [*Ecosystem.OpenChannel] but panics on error.
func (e *Ecosystem) MustOpenChannel(a, b *ChannelProposal) (packet.ChannelID, packet.ChannelID) {
	chA, chB, err := e.OpenChannel(a, b)
	runtimex.Try0(err)
	return chA, chB
}

// openChannel implements OpenChannel and returns the stored channel
// ends. On failure, the returned channels are zero.
func (e *Ecosystem) openChannel(a, b *ChannelProposal) (packet.Channel, packet.Channel, error) {
	var zero packet.Channel

	ca, err := e.Chain(a.ChainID)
	if err != nil {
		return zero, zero, err
	}
	cb, err := e.Chain(b.ChainID)
	if err != nil {
		return zero, zero, err
	}
	if a.Order != b.Order {
		return zero, zero, fmt.Errorf("%w: %s vs %s", errOrderMismatch, a.Order, b.Order)
	}

	chA := packet.Channel{
		Local: packet.Endpoint{
			ChainID:   a.ChainID,
			PortID:    a.PortID,
			ChannelID: ca.AllocateChannelID(),
		},
		Order:        a.Order,
		Version:      a.Version,
		ConnectionID: a.ConnectionID,
		State:        packet.Init,
	}
	chB := packet.Channel{
		Local: packet.Endpoint{
			ChainID:   b.ChainID,
			PortID:    b.PortID,
			ChannelID: cb.AllocateChannelID(),
		},
		Order:        b.Order,
		Version:      b.Version,
		ConnectionID: b.ConnectionID,
		State:        packet.TryOpen,
	}
	chA.Remote = chB.Local
	chB.Remote = chA.Local

	// 1. both applications accept the channel and choose a version
	if chA.Version, err = openEnd(ca, chA); err != nil {
		return zero, zero, err
	}
	if chB.Version, err = openEnd(cb, chB); err != nil {
		return zero, zero, err
	}
	if chA.Version != chB.Version {
		return zero, zero, fmt.Errorf("%w: %q vs %q", errVersionMismatch, chA.Version, chB.Version)
	}

	// 2. both applications finalize the channel
	chA.State, chB.State = packet.Open, packet.Open
	if err := ca.ConnectChannelEnd(chA); err != nil {
		return zero, zero, err
	}
	if err := cb.ConnectChannelEnd(chB); err != nil {
		return zero, zero, err
	}

	// 3. persist both ends
	runtimex.Try0(ca.AddChannel(chA))
	runtimex.Try0(cb.AddChannel(chB))
	return chA, chB, nil
}

// openEnd calls OnChannelOpen on one end, keeping the proposed
// version when the application returns an empty version.
func openEnd(c *chain.Chain, ch packet.Channel) (string, error) {
	version, err := c.OpenChannelEnd(ch)
	if err != nil {
		return "", err
	}
	if version == "" {
		version = ch.Version
	}
	return version, nil
}
