// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package ibcsim provides a deterministic, in-process simulation of
IBC-style packet relaying that developers can use to write tests for
applications reacting to cross-chain messages.

# Usage and Features

The [New] function creates an [*Ecosystem]. Use [*Ecosystem.NewChain]
to create and register simulated chains, then bind an [Application] to
a port of each chain using [*Chain.BindPort]. The [*Handler] type builds
an [Application] from optional functions, while [*Middleware] decorates
an existing [Application] and [Stack] composes several middlewares.

The [*Ecosystem.OpenChannel] method runs the channel handshake between
two ports. Application hooks send packets through the [Env] they receive;
you can also send from test code using [*Chain.SendPacket]. Packets stay
queued until you call [*Ecosystem.RelayAllPackets], which delivers packets,
acknowledgements, and timeouts in rounds until nothing is pending, and
returns a [*RelayReport] summarizing what happened.

Each chain has a logical clock and a block height. The default clock is
a mock clock starting at the chain genesis time, which only moves when
you call [*Chain.NextBlock] or [*Chain.AdvanceTime]. A packet times out
when the destination clock or height reaches the packet timeout at the
moment the relayer attempts delivery.

Execution is synchronous. Every hook runs to completion on the goroutine
calling the relay methods, so test outcomes are fully deterministic.

Call [*Ecosystem.Close] when done. It closes the bound applications
implementing [io.Closer] and unregisters the Prometheus counters
exported through [Config.Registerer].

# Ordering

Chains are visited in registration order, and the packets drained from
a chain are relayed in the order they were sent. Packets of ORDERED
channels drained in the same round are relayed by increasing sequence
number. Nothing else is enforced for ORDERED channels.

# Errors

Failures of individual packets do not stop relaying. They are recorded
as [*RelayError] in the report, with one of [ErrRouting], [ErrHandler],
[ErrAckDelivery], or [ErrTimeoutDelivery] as their kind. A receive hook
returning an error causes a failure acknowledgement for the sender.

Only [*Ecosystem.OpenChannel], whose errors wrap [ErrHandshake], and
[*Ecosystem.RelayAllPackets], failing with [ErrLoopLimitExceeded], abort
the operation.

Subpackages contain extensions. The [ics20] package implements a
fungible token transfer application, and the [ibchooks] package
implements a middleware invoking contracts based on the memo of
token transfers.

[ics20]: https://pkg.go.dev/github.com/rbmk-project/ibcx/ibcsim/ics20
[ibchooks]: https://pkg.go.dev/github.com/rbmk-project/ibcx/ibcsim/ibchooks
*/
package ibcsim
