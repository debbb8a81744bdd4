//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Fungible token packets
//

package ics20

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

// ErrInvalidPacket indicates that the packet data is not valid.
var ErrInvalidPacket = errors.New("invalid fungible token packet")

// PacketData is the payload of a fungible token packet.
type PacketData struct {
	// Denom is the full denomination path (e.g., "transfer/channel-0/uatom").
	Denom string `json:"denom"`

	// Amount is the base-10 amount.
	Amount string `json:"amount"`

	// Sender is the sender address on the source chain.
	Sender string `json:"sender"`

	// Receiver is the receiver address on the destination chain.
	Receiver string `json:"receiver"`

	// Memo is optional, arbitrary data used by middlewares.
	Memo string `json:"memo,omitempty"`
}

// ParsePacketData parses and validates the payload of a packet.
func ParsePacketData(data []byte) (*PacketData, error) {
	var pd PacketData
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	if err := pd.validate(); err != nil {
		return nil, err
	}
	return &pd, nil
}

// validate returns an error if the packet data is not valid.
func (pd *PacketData) validate() error {
	switch {
	case pd.Denom == "":
		return fmt.Errorf("%w: empty denom", ErrInvalidPacket)
	case pd.Sender == "":
		return fmt.Errorf("%w: empty sender", ErrInvalidPacket)
	case pd.Receiver == "":
		return fmt.Errorf("%w: empty receiver", ErrInvalidPacket)
	}
	_, err := pd.ParseAmount()
	return err
}

// ParseAmount returns the amount, which must be positive.
func (pd *PacketData) ParseAmount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(pd.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidPacket, pd.Amount)
	}
	return amount, nil
}

// Marshal returns the JSON encoding of the packet data.
func (pd *PacketData) Marshal() []byte {
	data, err := json.Marshal(pd)
	if err != nil {
		panic(err) // cannot fail for a struct of strings
	}
	return data
}

// Ack is the JSON acknowledgement of a fungible token packet.
type Ack struct {
	// Result is set on success.
	Result []byte `json:"result,omitempty"`

	// Error is set on failure.
	Error string `json:"error,omitempty"`
}

// Success returns true if the acknowledgement is a success.
func (a *Ack) Success() bool {
	return a.Error == ""
}

// ParseAck parses the data of an acknowledgement.
func ParseAck(data []byte) (*Ack, error) {
	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("invalid fungible token ack: %w", err)
	}
	if len(ack.Result) <= 0 && ack.Error == "" {
		return nil, errors.New("invalid fungible token ack: neither result nor error")
	}
	return &ack, nil
}

// NewResultAck returns the successful acknowledgement.
func NewResultAck() packet.Acknowledgement {
	data, _ := json.Marshal(&Ack{Result: []byte{1}})
	return packet.NewSuccessAck(data)
}

// NewErrorAck returns a failure acknowledgement carrying the error.
func NewErrorAck(err error) packet.Acknowledgement {
	data, _ := json.Marshal(&Ack{Error: err.Error()})
	return packet.Acknowledgement{Success: false, Data: data}
}

// IBCDenom returns the "ibc/<HASH>" denomination of a voucher, where
// <HASH> is the upper-case hex SHA256 of the full denomination path.
func IBCDenom(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "ibc/" + strings.ToUpper(hex.EncodeToString(sum[:]))
}

// prefix returns the "port/channel/" denomination prefix of an endpoint.
func prefix(ep packet.Endpoint) string {
	return ep.PortID + "/" + ep.ChannelID + "/"
}

// localDenom returns the denomination used on-chain for a full path:
// native denominations have no slashes and are used as is.
func localDenom(path string) string {
	if !strings.Contains(path, "/") {
		return path
	}
	return IBCDenom(path)
}

// ReceivedDenom returns the full denomination path and the on-chain
// denomination that the destination of pkt uses for the tokens it
// receives, and whether the destination chain is the token source.
//
// When the denomination is prefixed with the source port and channel,
// the tokens are coming back home and the prefix is removed. Otherwise
// the destination port and channel are prepended to the path.
func ReceivedDenom(pkt *packet.Packet, pd *PacketData) (path, denom string, returning bool) {
	if unprefixed, found := strings.CutPrefix(pd.Denom, prefix(pkt.Source)); found {
		return unprefixed, localDenom(unprefixed), true
	}
	path = prefix(pkt.Destination) + pd.Denom
	return path, IBCDenom(path), false
}
