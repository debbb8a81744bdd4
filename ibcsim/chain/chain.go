//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulated chain
//

// Package chain models a simulated chain as seen by the relayer: its
// port bindings, its channel ends, its packet queues and its clock.
package chain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/ibcx/closepool"
	"github.com/rbmk-project/ibcx/errclass"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"github.com/rbmk-project/ibcx/ibcsim/port"
)

var (
	// ErrPortBound indicates that a port is already bound.
	ErrPortBound = errors.New("port already bound")

	// ErrUnknownPort indicates that no application is bound to a port.
	ErrUnknownPort = errors.New("unknown port")

	// ErrUnknownChannel indicates that a channel does not exist.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrChannelExists indicates that a channel was already stored.
	ErrChannelExists = errors.New("channel already exists")

	// ErrChannelNotOpen indicates that a channel did not complete the handshake.
	ErrChannelNotOpen = errors.New("channel not open")

	// ErrChannelMismatch indicates that a packet does not match the channel.
	ErrChannelMismatch = errors.New("packet does not match channel")

	// ErrSendRejected indicates that the application bound to the
	// sending port rejected an outgoing packet.
	ErrSendRejected = errors.New("packet send rejected")

	// ErrNoPendingPacket indicates that a packet is not in the outgoing queue.
	ErrNoPendingPacket = errors.New("no such pending packet")
)

// DefaultGenesisTime is the genesis time used when [Config] does not set one.
var DefaultGenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultBlockTime is the block time used when [Config] does not set one.
const DefaultBlockTime = 5 * time.Second

// Config configures a [*Chain].
type Config struct {
	// ChainID is the chain identifier. The config is
	// invalid if this field is empty.
	ChainID packet.ChainID

	// GenesisTime is the optional initial time of the default mock
	// clock. If zero, we use [DefaultGenesisTime].
	GenesisTime time.Time

	// BlockTime is the optional time elapsing between blocks. If
	// zero, we use [DefaultBlockTime].
	BlockTime time.Duration

	// Clock is the optional clock. If nil, we create a [*clock.Mock]
	// set to GenesisTime. Time only advances via [*Chain.NextBlock]
	// and [*Chain.AdvanceTime] when the clock is a [*clock.Mock].
	Clock clock.Clock

	// Logger is the optional structured logger. If nil,
	// we will not be emitting structured logs.
	Logger *slog.Logger
}

// validate returns an error if the configuration is not valid.
func (cfg *Config) validate() error {
	if cfg.ChainID == "" {
		return errors.New("chain id is required")
	}
	return nil
}

// Chain models a simulated chain.
//
// Hooks run synchronously on the caller's goroutine. The mutex only
// guards the chain's own state and is never held while a hook runs,
// so hooks may freely send packets.
type Chain struct {
	// apps maps ports to applications.
	apps map[packet.PortID]port.Application

	// blockTime is the time elapsing between blocks.
	blockTime time.Duration

	// channels contains the channel ends indexed by identifier.
	channels map[packet.ChannelID]*packet.Channel

	// clock is the chain clock.
	clock clock.Clock

	// closers contains the bound applications implementing [io.Closer].
	closers closepool.Pool

	// height is the current block height.
	height uint64

	// id is the chain identifier.
	id packet.ChainID

	// inbound contains resolutions awaiting delivery to this chain.
	inbound []*packet.Resolution

	// logger is the optional logger.
	logger *slog.Logger

	// mu protects all the mutable fields.
	mu sync.Mutex

	// nextChannel is the number of the next channel identifier.
	nextChannel uint64

	// nextSequence tracks the next sequence number per channel.
	nextSequence map[packet.ChannelID]uint64

	// outgoing contains packets awaiting relay.
	outgoing []*packet.Packet
}

var _ port.Env = &Chain{}

// New creates a new [*Chain] using the given [*Config].
func New(cfg *Config) (*Chain, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	genesis := cfg.GenesisTime
	if genesis.IsZero() {
		genesis = DefaultGenesisTime
	}
	blockTime := cfg.BlockTime
	if blockTime <= 0 {
		blockTime = DefaultBlockTime
	}
	clk := cfg.Clock
	if clk == nil {
		mock := clock.NewMock()
		mock.Set(genesis)
		clk = mock
	}
	c := &Chain{
		apps:         map[packet.PortID]port.Application{},
		blockTime:    blockTime,
		channels:     map[packet.ChannelID]*packet.Channel{},
		clock:        clk,
		closers:      closepool.Pool{},
		height:       1,
		id:           cfg.ChainID,
		inbound:      nil,
		logger:       cfg.Logger,
		mu:           sync.Mutex{},
		nextChannel:  0,
		nextSequence: map[packet.ChannelID]uint64{},
		outgoing:     nil,
	}
	return c, nil
}

// MustNew is like [New] but panics on error.
func MustNew(cfg *Config) *Chain {
	return runtimex.Try1(New(cfg))
}

// ChainID implements [port.Env].
func (c *Chain) ChainID() packet.ChainID {
	return c.id
}

// Now implements [port.Env].
func (c *Chain) Now() time.Time {
	return c.clock.Now()
}

// Height implements [port.Env].
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Clock returns the chain clock.
func (c *Chain) Clock() clock.Clock {
	return c.clock
}

// NextBlock advances the height by one and, when using a mock
// clock, advances the time by the configured block time.
func (c *Chain) NextBlock() {
	c.mu.Lock()
	c.height++
	c.mu.Unlock()
	c.AdvanceTime(c.blockTime)
}

// AdvanceTime advances the mock clock by the given duration. This
// method does nothing when the chain does not use a mock clock.
func (c *Chain) AdvanceTime(d time.Duration) {
	if mock, ok := c.clock.(*clock.Mock); ok {
		mock.Add(d)
	}
}

// BindPort binds an application to the port it reports.
func (c *Chain) BindPort(app port.Application) error {
	portID := app.PortID()
	if portID == "" {
		return fmt.Errorf("%w: empty port id", ErrUnknownPort)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.apps[portID]; found {
		return fmt.Errorf("%w: %s/%s", ErrPortBound, c.id, portID)
	}
	c.apps[portID] = app
	if closer, ok := app.(io.Closer); ok {
		c.closers.Add(closer)
	}
	if c.logger != nil {
		c.logger.Info(
			"portBind",
			slog.String("chainID", c.id),
			slog.String("portID", portID),
		)
	}
	return nil
}

// Close closes the bound applications implementing [io.Closer], in
// reverse binding order. The bindings themselves are not removed.
func (c *Chain) Close() error {
	err := c.closers.Close()
	if c.logger != nil {
		c.logger.Info(
			"chainClose",
			slog.String("chainID", c.id),
			slog.Any("err", err),
		)
	}
	return err
}

// Application returns the application bound to the given port.
func (c *Chain) Application(portID packet.PortID) (port.Application, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applicationLocked(portID)
}

// applicationLocked is like Application but requires holding mu.
func (c *Chain) applicationLocked(portID packet.PortID) (port.Application, error) {
	app, found := c.apps[portID]
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownPort, c.id, portID)
	}
	return app, nil
}

// AllocateChannelID returns a fresh channel identifier.
//
// Identifiers are never reused, even when the handshake using
// them fails, like real chains allocate them at INIT time.
func (c *Chain) AllocateChannelID() packet.ChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := packet.NewChannelID(c.nextChannel)
	c.nextChannel++
	return id
}

// AddChannel stores a channel end owned by this chain.
func (c *Chain) AddChannel(ch packet.Channel) error {
	if ch.Local.ChainID != c.id {
		return fmt.Errorf("%w: %s is not owned by %s", ErrChannelMismatch, ch.Local, c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.channels[ch.Local.ChannelID]; found {
		return fmt.Errorf("%w: %s", ErrChannelExists, ch.Local)
	}
	c.channels[ch.Local.ChannelID] = &ch
	c.nextSequence[ch.Local.ChannelID] = 1
	if c.logger != nil {
		c.logger.Info(
			"channelStore",
			slog.String("chainID", c.id),
			slog.String("channel", ch.String()),
		)
	}
	return nil
}

// Channel returns a copy of the given channel end.
func (c *Chain) Channel(id packet.ChannelID) (packet.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, found := c.channels[id]
	if !found {
		return packet.Channel{}, fmt.Errorf("%w: %s/%s", ErrUnknownChannel, c.id, id)
	}
	return *ch, nil
}

// Channels returns a copy of all channel ends sorted by identifier number.
func (c *Chain) Channels() []packet.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []packet.Channel
	for number := uint64(0); number < c.nextChannel; number++ {
		if ch, found := c.channels[packet.NewChannelID(number)]; found {
			out = append(out, *ch)
		}
	}
	return out
}

// SendPacket implements [port.Env].
//
// The packet is assigned the next sequence number of the channel. When
// the application bound to the channel port implements [port.Sender],
// it may rewrite or reject the packet, and a rejected packet still
// consumes its sequence number. Otherwise, the packet is appended to
// the outgoing queue.
func (c *Chain) SendPacket(req *packet.SendRequest) (*packet.Packet, error) {
	c.mu.Lock()
	ch, found := c.channels[req.ChannelID]
	if !found {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownChannel, c.id, req.ChannelID)
	}
	if ch.State != packet.Open {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrChannelNotOpen, ch.Local)
	}
	sequence := c.nextSequence[req.ChannelID]
	c.nextSequence[req.ChannelID] = sequence + 1
	pkt := &packet.Packet{
		Sequence:         sequence,
		Source:           ch.Local,
		Destination:      ch.Remote,
		Data:             append([]byte{}, req.Data...),
		TimeoutTimestamp: req.TimeoutTimestamp,
		TimeoutHeight:    req.TimeoutHeight,
	}
	app, _ := c.applicationLocked(ch.Local.PortID)
	c.mu.Unlock()

	pkt, err := c.interceptSend(app, pkt)
	if err != nil {
		if c.logger != nil {
			c.logger.Info(
				"packetSendRejected",
				slog.String("chainID", c.id),
				slog.String("channel", ch.Local.String()),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
		}
		return nil, err
	}
	c.EnqueueOutgoing(pkt)

	if c.logger != nil {
		c.logger.Info(
			"packetSend",
			slog.String("chainID", c.id),
			slog.String("packet", pkt.String()),
			slog.Time("timeoutTimestamp", pkt.TimeoutTimestamp),
			slog.Uint64("timeoutHeight", pkt.TimeoutHeight),
		)
	}
	return pkt, nil
}

// interceptSend lets app rewrite or reject an outgoing packet.
func (c *Chain) interceptSend(app port.Application, pkt *packet.Packet) (*packet.Packet, error) {
	sender, ok := app.(port.Sender)
	if !ok {
		return pkt, nil
	}
	out, err := sender.OnSendPacket(c, pkt)
	if err != nil {
		return nil, hookError("OnSendPacket", app.PortID(), err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrSendRejected, pkt)
	}
	if out.Source != pkt.Source || out.Destination != pkt.Destination || out.Sequence != pkt.Sequence {
		return nil, fmt.Errorf("%w: %s rewritten as %s", ErrChannelMismatch, pkt, out)
	}
	return out, nil
}
