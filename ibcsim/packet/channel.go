// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains [*Packet], [Channel] and the related definitions.
package packet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ChainID identifies a simulated chain.
type ChainID = string

// PortID identifies an endpoint on a chain. It is either the address
// of a direct handler or the name of a module (e.g., "transfer").
type PortID = string

// ChannelID identifies a channel end on a chain (e.g., "channel-0").
type ChannelID = string

// channelIDPrefix is the prefix of all the channel identifiers.
const channelIDPrefix = "channel-"

// errInvalidChannelID indicates that a channel identifier is malformed.
var errInvalidChannelID = errors.New("invalid channel id")

// NewChannelID returns the channel identifier with the given number.
func NewChannelID(number uint64) ChannelID {
	return channelIDPrefix + strconv.FormatUint(number, 10)
}

// ParseChannelID returns the number of a channel identifier.
func ParseChannelID(id ChannelID) (uint64, error) {
	digits, found := strings.CutPrefix(id, channelIDPrefix)
	if !found {
		return 0, fmt.Errorf("%w: %q", errInvalidChannelID, id)
	}
	number, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidChannelID, id)
	}
	return number, nil
}

// Order is the ordering mode of a channel.
type Order uint8

const (
	// Unordered channels deliver packets in any order.
	Unordered Order = iota

	// Ordered channels deliver packets in sequence order.
	Ordered
)

// String returns the string representation of the order.
func (o Order) String() string {
	switch o {
	case Unordered:
		return "ORDER_UNORDERED"

	case Ordered:
		return "ORDER_ORDERED"

	default:
		return "ORDER_UNKNOWN"
	}
}

// State is the handshake state of a channel end.
type State uint8

const (
	// Init is the state of the channel end that started the handshake.
	Init State = iota

	// TryOpen is the state of the counterparty channel end.
	TryOpen

	// Open means that both ends accepted the handshake.
	Open
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Init:
		return "STATE_INIT"

	case TryOpen:
		return "STATE_TRYOPEN"

	case Open:
		return "STATE_OPEN"

	default:
		return "STATE_UNKNOWN"
	}
}

// Endpoint is one end of a channel.
type Endpoint struct {
	// ChainID is the chain owning this end.
	ChainID ChainID

	// PortID is the port bound to this end.
	PortID PortID

	// ChannelID is the channel identifier on ChainID.
	ChannelID ChannelID
}

// String returns the string representation of the endpoint.
func (ep Endpoint) String() string {
	return fmt.Sprintf("%s/%s/%s", ep.ChainID, ep.PortID, ep.ChannelID)
}

// Channel is a channel end as seen by the chain owning it.
//
// After a successful handshake, the records stored by the two
// chains are mirror images with Local and Remote swapped.
type Channel struct {
	// Local is the end owned by this chain.
	Local Endpoint

	// Remote is the counterparty end.
	Remote Endpoint

	// Order is the ordering mode.
	Order Order

	// Version is the negotiated application version.
	Version string

	// ConnectionID is the connection used by the local end.
	ConnectionID string

	// State is the handshake state.
	State State
}

// Mirror returns the counterparty view of the channel, using the
// given connection identifier for the counterparty end.
func (ch Channel) Mirror(connectionID string) Channel {
	return Channel{
		Local:        ch.Remote,
		Remote:       ch.Local,
		Order:        ch.Order,
		Version:      ch.Version,
		ConnectionID: connectionID,
		State:        ch.State,
	}
}

// String returns the string representation of the channel.
func (ch Channel) String() string {
	return fmt.Sprintf(
		"%s <-> %s %s version=%q %s",
		ch.Local,
		ch.Remote,
		ch.Order,
		ch.Version,
		ch.State,
	)
}
