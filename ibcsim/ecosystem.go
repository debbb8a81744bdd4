//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Ecosystem of chains
//

package ibcsim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/ibcx/closepool"
	"github.com/rbmk-project/ibcx/errclass"
	"github.com/rbmk-project/ibcx/ibcsim/chain"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

// Ecosystem owns a set of chains and relays packets between them.
//
// The zero value is invalid; use [New] or [NewFromConfig]. Registering
// chains and opening channels are goroutine safe. Relaying is
// serialized: no two relay passes run concurrently, and hooks
// MUST NOT call back into the relay methods.
type Ecosystem struct {
	// chains contains the chains in registration order.
	chains []*chain.Chain

	// closers unregisters the metrics and closes the chains.
	closers *closepool.Pool

	// index maps chain IDs to chains.
	index map[packet.ChainID]*chain.Chain

	// logger is the optional logger.
	logger *slog.Logger

	// maxRounds is the round limit of RelayAllPackets.
	maxRounds int

	// metrics contains the relay counters.
	metrics *metrics

	// mu protects chains and index.
	mu sync.Mutex

	// relayMu serializes relay passes.
	relayMu sync.Mutex
}

// New creates a new [*Ecosystem] without chains.
//
// Use [NewFromConfig] to also create the chains in [Config.Chains].
func New(cfg *Config) (*Ecosystem, error) {
	closers := &closepool.Pool{}
	m, err := newMetrics(cfg.Registerer, closers)
	if err != nil {
		closers.Close()
		return nil, err
	}
	eco := &Ecosystem{
		chains:    []*chain.Chain{},
		closers:   closers,
		index:     map[packet.ChainID]*chain.Chain{},
		logger:    cfg.Logger,
		maxRounds: cfg.maxRounds(),
		metrics:   m,
		mu:        sync.Mutex{},
		relayMu:   sync.Mutex{},
	}
	return eco, nil
}

// MustNew is like [New] but panics on error.
func MustNew(cfg *Config) *Ecosystem {
	return runtimex.Try1(New(cfg))
}

// RegisterChain adds a chain to the ecosystem. Chains are visited
// in registration order when relaying.
func (e *Ecosystem) RegisterChain(c *chain.Chain) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, found := e.index[c.ChainID()]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateChain, c.ChainID())
	}
	e.index[c.ChainID()] = c
	e.chains = append(e.chains, c)
	e.closers.Add(c)
	if e.logger != nil {
		e.logger.Info("chainRegister", slog.String("chainID", c.ChainID()))
	}
	return nil
}

// Close closes the chains in reverse registration order and then
// unregisters the metrics, so the [prometheus.Registerer] may be
// reused. The ecosystem should not be used afterwards.
func (e *Ecosystem) Close() error {
	err := e.closers.Close()
	if e.logger != nil {
		e.logger.Info(
			"ecosystemClose",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
	return err
}

// NewChain creates a chain using the given config and registers it.
//
// When the config does not specify a logger, the chain uses
// the ecosystem logger.
func (e *Ecosystem) NewChain(cfg *chain.Config) (*chain.Chain, error) {
	ccfg := *cfg
	if ccfg.Logger == nil {
		ccfg.Logger = e.logger
	}
	c, err := chain.New(&ccfg)
	if err != nil {
		return nil, err
	}
	if err := e.RegisterChain(c); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNewChain is like [*Ecosystem.NewChain] but panics on error.
func (e *Ecosystem) MustNewChain(cfg *chain.Config) *chain.Chain {
	return runtimex.Try1(e.NewChain(cfg))
}

// Chain returns the chain with the given ID.
func (e *Ecosystem) Chain(id packet.ChainID) (*chain.Chain, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, found := e.index[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, id)
	}
	return c, nil
}

// MustChain is like [*Ecosystem.Chain] but panics on error.
func (e *Ecosystem) MustChain(id packet.ChainID) *chain.Chain {
	return runtimex.Try1(e.Chain(id))
}

// Chains returns the chains in registration order.
func (e *Ecosystem) Chains() []*chain.Chain {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*chain.Chain{}, e.chains...)
}

// PendingPackets returns, for each chain with a non-empty outgoing
// queue, a snapshot of the queue. The queues are not drained.
func (e *Ecosystem) PendingPackets() map[packet.ChainID][]*packet.Packet {
	out := map[packet.ChainID][]*packet.Packet{}
	for _, c := range e.Chains() {
		if pending := c.PendingPackets(); len(pending) > 0 {
			out[c.ChainID()] = pending
		}
	}
	return out
}

// hasPending returns true if any chain has queued packets or resolutions.
func (e *Ecosystem) hasPending() bool {
	for _, c := range e.Chains() {
		if len(c.PendingPackets()) > 0 || len(c.PendingResolutions()) > 0 {
			return true
		}
	}
	return false
}
