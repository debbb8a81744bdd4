//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Relay errors
//

package ibcsim

import (
	"fmt"

	"github.com/rbmk-project/ibcx/errclass"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

var (
	// ErrHandshake indicates that opening a channel failed. It wraps
	// the underlying cause, which is either a rejection by one of the
	// two applications or an incompatible order or version.
	ErrHandshake = errclass.NewSentinel("EHANDSHAKE", "channel handshake failed")

	// ErrRouting indicates that a packet referenced an unknown chain,
	// channel, or port. The packet is dropped.
	ErrRouting = errclass.NewSentinel("EROUTING", "cannot route packet")

	// ErrHandler indicates that the receiving application returned an
	// error. The source receives a failure acknowledgement.
	ErrHandler = errclass.NewSentinel("EHANDLER", "packet handler failed")

	// ErrAckDelivery indicates that OnPacketAck returned an error.
	ErrAckDelivery = errclass.NewSentinel("EACKDELIVERY", "acknowledgement delivery failed")

	// ErrTimeoutDelivery indicates that OnPacketTimeout returned an error.
	ErrTimeoutDelivery = errclass.NewSentinel("ETIMEOUTDELIVERY", "timeout delivery failed")

	// ErrLoopLimitExceeded indicates that relaying did not reach a fixed
	// point within the configured number of rounds.
	ErrLoopLimitExceeded = errclass.NewSentinel("ELOOPLIMIT", "relay loop limit exceeded")

	// ErrDuplicateChain indicates that a chain ID is already registered.
	ErrDuplicateChain = errclass.NewSentinel("EDUPCHAIN", "chain already registered")

	// ErrUnknownChain indicates that a chain ID is not registered.
	ErrUnknownChain = errclass.NewSentinel("ENOCHAIN", "unknown chain")
)

// RelayError is a per-packet failure recorded in the [*RelayReport].
//
// Use [errors.Is] with the Kind sentinel (e.g., [ErrHandler]) or with the
// underlying error to inspect it.
type RelayError struct {
	// ChainID is the chain where the failure occurred.
	ChainID packet.ChainID

	// Packet is the packet being relayed.
	Packet *packet.Packet

	// Kind is one of [ErrRouting], [ErrHandler], [ErrAckDelivery],
	// and [ErrTimeoutDelivery].
	Kind error

	// Err is the underlying error.
	Err error
}

// Error implements [error].
func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %s", e.ChainID, e.Kind.Error(), e.Packet, e.Err.Error())
}

// Unwrap returns both the kind and the underlying error.
func (e *RelayError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
