//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Fungible token transfer application
//

// Package ics20 implements the fungible token transfer application
// bound to the "transfer" port.
//
// Sending native tokens escrows them, and the destination mints vouchers
// whose denomination is "ibc/<HASH>" (see [IBCDenom]). Sending vouchers
// back through the channel they came from burns them, and the destination
// releases the escrowed tokens. When the destination fails or the packet
// times out, the sender is refunded.
package ics20

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"github.com/rbmk-project/ibcx/ibcsim/port"
)

// PortID is the port bound by the transfer application.
const PortID = "transfer"

// Version is the only supported channel version.
const Version = "ics20-1"

var (
	// ErrInvalidChannel indicates a channel with unsupported order or version.
	ErrInvalidChannel = errors.New("invalid transfer channel")

	// ErrUnknownDenom indicates a voucher without a known denomination path.
	ErrUnknownDenom = errors.New("unknown ibc denom")
)

// DefaultEscrowAddress is the escrow account used when [Config] does not set one.
const DefaultEscrowAddress = "transfer-escrow"

// Config configures a [*Transfer].
type Config struct {
	// Bank is the MANDATORY bank moving tokens.
	Bank Bank

	// EscrowAddress is the optional account holding escrowed
	// tokens. If empty, we use [DefaultEscrowAddress].
	EscrowAddress string

	// Logger is the optional structured logger. If nil,
	// we will not be emitting structured logs.
	Logger *slog.Logger
}

// Transfer is the fungible token transfer [port.Application].
type Transfer struct {
	bank   Bank
	escrow string
	logger *slog.Logger

	// mu protects traces.
	mu sync.Mutex

	// traces maps "ibc/<HASH>" denominations to their full paths.
	traces map[string]string
}

var _ port.Application = &Transfer{}

// New creates a new [*Transfer].
func New(cfg *Config) (*Transfer, error) {
	if cfg.Bank == nil {
		return nil, errors.New("ics20: bank is required")
	}
	escrow := cfg.EscrowAddress
	if escrow == "" {
		escrow = DefaultEscrowAddress
	}
	t := &Transfer{
		bank:   cfg.Bank,
		escrow: escrow,
		logger: cfg.Logger,
		mu:     sync.Mutex{},
		traces: map[string]string{},
	}
	return t, nil
}

// MustNew is like [New] but panics on error.
func MustNew(cfg *Config) *Transfer {
	return runtimex.Try1(New(cfg))
}

// EscrowAddress returns the escrow account.
func (t *Transfer) EscrowAddress() string {
	return t.escrow
}

// DenomPath returns the full path of an "ibc/<HASH>" denomination
// known to this chain.
func (t *Transfer) DenomPath(denom string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, found := t.traces[denom]
	return path, found
}

// fullPath returns the full path of an on-chain denomination.
func (t *Transfer) fullPath(denom string) (string, error) {
	if !strings.HasPrefix(denom, "ibc/") {
		return denom, nil
	}
	path, found := t.DenomPath(denom)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	return path, nil
}

// remember records the path of a voucher denomination.
func (t *Transfer) remember(path string) {
	if !strings.Contains(path, "/") {
		return
	}
	t.mu.Lock()
	t.traces[IBCDenom(path)] = path
	t.mu.Unlock()
}

// PortID implements [port.Application].
func (t *Transfer) PortID() packet.PortID {
	return PortID
}

// OnChannelOpen implements [port.Application].
//
// Only UNORDERED channels with an empty or [Version] version are accepted.
func (t *Transfer) OnChannelOpen(env port.Env, ch packet.Channel) (string, error) {
	if ch.Order != packet.Unordered {
		return "", fmt.Errorf("%w: order %s", ErrInvalidChannel, ch.Order)
	}
	if ch.Version != "" && ch.Version != Version {
		return "", fmt.Errorf("%w: version %q", ErrInvalidChannel, ch.Version)
	}
	return Version, nil
}

// OnChannelConnect implements [port.Application].
func (t *Transfer) OnChannelConnect(env port.Env, ch packet.Channel) error {
	return nil
}

// SendRequest is a request to transfer tokens.
type SendRequest struct {
	// ChannelID is the local channel to send through.
	ChannelID packet.ChannelID

	// Denom is the on-chain denomination of the tokens.
	Denom string

	// Amount is the amount to transfer.
	Amount *big.Int

	// Sender is the local account sending the tokens.
	Sender string

	// Receiver is the account on the destination chain.
	Receiver string

	// Memo is optional data for middlewares (see the ibchooks package).
	Memo string

	// TimeoutTimestamp is the optional timestamp timeout.
	TimeoutTimestamp time.Time

	// TimeoutHeight is the optional height timeout.
	TimeoutHeight uint64
}

// Send escrows or burns the tokens and sends the packet through env.
//
// Native tokens, and vouchers travelling away from their source, are
// moved to the escrow account. Vouchers returning through the channel
// they came from are burned. If sending the packet fails, the tokens
// are returned to the sender.
func (t *Transfer) Send(env port.Env, req *SendRequest) (*packet.Packet, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid amount", ErrInvalidPacket)
	}
	path, err := t.fullPath(req.Denom)
	if err != nil {
		return nil, err
	}
	pd := &PacketData{
		Denom:    path,
		Amount:   req.Amount.String(),
		Sender:   req.Sender,
		Receiver: req.Receiver,
		Memo:     req.Memo,
	}
	if err := pd.validate(); err != nil {
		return nil, err
	}

	source := packet.Endpoint{ChainID: env.ChainID(), PortID: PortID, ChannelID: req.ChannelID}
	burn := strings.HasPrefix(path, prefix(source))
	if burn {
		err = t.bank.Burn(req.Sender, req.Denom, req.Amount)
	} else {
		err = t.bank.Send(req.Sender, t.escrow, req.Denom, req.Amount)
	}
	if err != nil {
		return nil, err
	}

	pkt, err := env.SendPacket(&packet.SendRequest{
		ChannelID:        req.ChannelID,
		Data:             pd.Marshal(),
		TimeoutTimestamp: req.TimeoutTimestamp,
		TimeoutHeight:    req.TimeoutHeight,
	})
	if err != nil {
		if burn {
			runtimex.Try0(t.bank.Mint(req.Sender, req.Denom, req.Amount))
		} else {
			runtimex.Try0(t.bank.Send(t.escrow, req.Sender, req.Denom, req.Amount))
		}
		return nil, err
	}

	if t.logger != nil {
		t.logger.Info(
			"transferSend",
			slog.String("chainID", env.ChainID()),
			slog.String("packet", pkt.String()),
			slog.String("denom", path),
			slog.String("amount", pd.Amount),
			slog.Bool("burn", burn),
		)
	}
	return pkt, nil
}

// OnPacketReceive implements [port.Application].
//
// On failure, the returned acknowledgement contains the JSON error.
func (t *Transfer) OnPacketReceive(env port.Env, pkt *packet.Packet) (packet.Acknowledgement, error) {
	denom, err := t.receive(pkt)
	if t.logger != nil {
		t.logger.Info(
			"transferReceiveDone",
			slog.String("chainID", env.ChainID()),
			slog.String("packet", pkt.String()),
			slog.String("denom", denom),
			slog.Any("err", err),
		)
	}
	if err != nil {
		return NewErrorAck(err), err
	}
	return NewResultAck(), nil
}

// receive releases escrowed tokens or mints vouchers and returns
// the on-chain denomination of the received tokens.
func (t *Transfer) receive(pkt *packet.Packet) (string, error) {
	pd, err := ParsePacketData(pkt.Data)
	if err != nil {
		return "", err
	}
	amount, _ := pd.ParseAmount()
	path, denom, returning := ReceivedDenom(pkt, pd)
	t.remember(path)
	if returning {
		return denom, t.bank.Send(t.escrow, pd.Receiver, denom, amount)
	}
	return denom, t.bank.Mint(pd.Receiver, denom, amount)
}

// RevertReceive undoes what a successful OnPacketReceive did with the
// tokens: vouchers are burned and released tokens return to escrow.
func (t *Transfer) RevertReceive(env port.Env, pkt *packet.Packet) error {
	pd, err := ParsePacketData(pkt.Data)
	if err != nil {
		return err
	}
	amount, _ := pd.ParseAmount()
	_, denom, returning := ReceivedDenom(pkt, pd)
	if returning {
		err = t.bank.Send(pd.Receiver, t.escrow, denom, amount)
	} else {
		err = t.bank.Burn(pd.Receiver, denom, amount)
	}
	if t.logger != nil {
		t.logger.Info(
			"transferRevertReceive",
			slog.String("chainID", env.ChainID()),
			slog.String("packet", pkt.String()),
			slog.String("denom", denom),
			slog.String("amount", pd.Amount),
			slog.Bool("escrow", returning),
			slog.Any("err", err),
		)
	}
	return err
}

// OnPacketAck implements [port.Application].
//
// Failure acknowledgements refund the sender.
func (t *Transfer) OnPacketAck(env port.Env, pkt *packet.Packet, ack packet.Acknowledgement) error {
	if ack.Success {
		parsed, err := ParseAck(ack.Data)
		if err != nil {
			return err
		}
		if parsed.Success() {
			return nil
		}
	}
	return t.refund(env, pkt)
}

// OnPacketTimeout implements [port.Application].
//
// Timeouts refund the sender.
func (t *Transfer) OnPacketTimeout(env port.Env, pkt *packet.Packet) error {
	return t.refund(env, pkt)
}

// refund undoes what [*Transfer.Send] did with the tokens.
func (t *Transfer) refund(env port.Env, pkt *packet.Packet) error {
	pd, err := ParsePacketData(pkt.Data)
	if err != nil {
		return err
	}
	amount, _ := pd.ParseAmount()
	denom := localDenom(pd.Denom)
	burned := strings.HasPrefix(pd.Denom, prefix(pkt.Source))
	if burned {
		err = t.bank.Mint(pd.Sender, denom, amount)
	} else {
		err = t.bank.Send(t.escrow, pd.Sender, denom, amount)
	}
	if t.logger != nil {
		t.logger.Info(
			"transferRefund",
			slog.String("chainID", env.ChainID()),
			slog.String("packet", pkt.String()),
			slog.String("denom", denom),
			slog.String("amount", pd.Amount),
			slog.Bool("mint", burned),
			slog.Any("err", err),
		)
	}
	return err
}
