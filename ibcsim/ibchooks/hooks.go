//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Memo-driven contract hooks
//

// Package ibchooks implements a middleware for the fungible token
// transfer application that invokes contracts based on the packet memo.
//
// An incoming transfer whose memo looks like this:
//
//	{"wasm": {"contract": "<address>", "msg": {...}}}
//
// credits the tokens to an intermediary account derived from the channel
// and the sender (see [DeriveSender]) and then executes the contract on
// behalf of that account, with the tokens as funds. A contract failure
// results in a failure acknowledgement, so the sender is refunded. When
// the wrapped application implements [Reverter], the received tokens are
// also taken back from the intermediary account.
//
// An outgoing transfer whose memo contains:
//
//	{"ibc_callback": "<address>"}
//
// notifies the given contract once the packet is acknowledged or times
// out, using an [IBCLifecycleComplete] sudo message. The contract must
// be the sender of the transfer, otherwise the send fails with
// [ErrBadSender].
package ibchooks

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
	"github.com/rbmk-project/ibcx/errclass"
	"github.com/rbmk-project/ibcx/ibcsim/ics20"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"github.com/rbmk-project/ibcx/ibcsim/port"
)

// SenderPrefix is the domain separator of intermediary accounts.
const SenderPrefix = "ibc-wasm-hook-intermediary"

var (
	// ErrInvalidMemo indicates a wasm memo without a contract.
	ErrInvalidMemo = errors.New("invalid wasm hook memo")

	// ErrBadSender indicates a callback requested on behalf of another account.
	ErrBadSender = errors.New("ibc_callback is not the packet sender")
)

// Memo is the JSON memo understood by the middleware.
type Memo struct {
	// Wasm is the optional contract to execute on receive.
	Wasm *WasmField `json:"wasm,omitempty"`

	// IBCCallback is the optional contract to notify on ack or timeout.
	IBCCallback string `json:"ibc_callback,omitempty"`
}

// WasmField is the "wasm" field of the [Memo].
type WasmField struct {
	// Contract is the address of the contract to execute.
	Contract string `json:"contract"`

	// Msg is the execute message.
	Msg json.RawMessage `json:"msg"`
}

// ParseMemo parses a memo. Memos that are not JSON objects are not
// for us, so we return an error that callers should generally ignore.
func ParseMemo(memo string) (*Memo, error) {
	var m Memo
	if err := json.Unmarshal([]byte(memo), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Coin is an amount of tokens of a denomination.
type Coin struct {
	Denom  string
	Amount *big.Int
}

// ExecuteRequest asks to execute a contract.
type ExecuteRequest struct {
	// Sender is the intermediary account executing the contract.
	Sender string

	// Contract is the contract address.
	Contract string

	// Msg is the JSON execute message.
	Msg json.RawMessage

	// Funds are the tokens sent along with the message.
	Funds []Coin
}

// Contracts executes contracts on a chain.
type Contracts interface {
	// Execute executes a contract.
	Execute(env port.Env, req *ExecuteRequest) error

	// Sudo invokes the sudo entry point of a contract.
	Sudo(env port.Env, contract string, msg json.RawMessage) error
}

// Reverter is implemented by applications able to undo a successful
// OnPacketReceive, like [*ics20.Transfer].
type Reverter interface {
	RevertReceive(env port.Env, pkt *packet.Packet) error
}

// IBCLifecycleComplete is the payload of the sudo message notifying the
// contract named by the "ibc_callback" memo field. Exactly one of the
// two fields is set.
type IBCLifecycleComplete struct {
	IBCAck     *IBCAck     `json:"ibc_ack,omitempty"`
	IBCTimeout *IBCTimeout `json:"ibc_timeout,omitempty"`
}

// IBCAck notifies that a packet was acknowledged.
type IBCAck struct {
	// Channel is the source channel of the packet.
	Channel string `json:"channel"`

	// Sequence is the packet sequence.
	Sequence uint64 `json:"sequence"`

	// Ack is the base64 acknowledgement data.
	Ack string `json:"ack"`

	// Success is the acknowledgement success flag.
	Success bool `json:"success"`
}

// IBCTimeout notifies that a packet timed out.
type IBCTimeout struct {
	// Channel is the source channel of the packet.
	Channel string `json:"channel"`

	// Sequence is the packet sequence.
	Sequence uint64 `json:"sequence"`
}

// SudoMsg is the sudo message sent to callback contracts.
type SudoMsg struct {
	IBCLifecycleComplete *IBCLifecycleComplete `json:"ibc_lifecycle_complete"`
}

// DeriveSender returns the intermediary account that executes contracts
// for the given remote sender received through the given local channel.
//
// The account is the SHA256 of the SHA256 of [SenderPrefix] followed by
// "<channel>/<sender>", encoded as base58 after "<prefix>1".
func DeriveSender(prefix string, channel packet.ChannelID, sender string) string {
	th := sha256.Sum256([]byte(SenderPrefix))
	h := sha256.New()
	h.Write(th[:])
	h.Write([]byte(channel + "/" + sender))
	return prefix + "1" + base58.Encode(h.Sum(nil))
}

// Config configures the hooks middleware.
type Config struct {
	// AddressPrefix is the MANDATORY prefix of the local chain addresses.
	AddressPrefix string

	// Contracts is the MANDATORY contract executor.
	Contracts Contracts

	// Logger is the optional structured logger. If nil,
	// we will not be emitting structured logs.
	Logger *slog.Logger
}

// Hooks implements the hooks middleware.
type Hooks struct {
	cfg *Config
}

// New creates new [*Hooks] using the given [*Config].
func New(cfg *Config) *Hooks {
	return &Hooks{cfg: cfg}
}

// Wrap implements [port.Constructor].
func (h *Hooks) Wrap(child port.Application) port.Application {
	reverter, _ := child.(Reverter)
	return &port.Middleware{
		Child:               child,
		BeforePacketReceive: h.beforePacketReceive,
		AfterPacketReceive: func(env port.Env, original, forwarded *packet.Packet,
			ack packet.Acknowledgement, err error) (packet.Acknowledgement, error) {
			return h.afterPacketReceive(env, reverter, original, forwarded, ack, err)
		},
		AfterPacketAck:     h.afterPacketAck,
		AfterPacketTimeout: h.afterPacketTimeout,
		BeforeSendPacket:   h.beforeSendPacket,
	}
}

var _ port.Constructor = (&Hooks{}).Wrap

// beforePacketReceive credits the tokens of wasm transfers to the
// intermediary account by rewriting the receiver.
func (h *Hooks) beforePacketReceive(
	env port.Env, pkt *packet.Packet) (*packet.Packet, port.Verdict, packet.Acknowledgement, error) {
	pd, memo := parseTransfer(pkt)
	if memo == nil || memo.Wasm == nil {
		return pkt, port.CONTINUE, packet.Acknowledgement{}, nil
	}
	if memo.Wasm.Contract == "" {
		err := fmt.Errorf("%w: missing contract", ErrInvalidMemo)
		return pkt, port.STOP, ics20.NewErrorAck(err), err
	}
	pd.Receiver = DeriveSender(h.cfg.AddressPrefix, pkt.Destination.ChannelID, pd.Sender)
	return pkt.WithData(pd.Marshal()), port.CONTINUE, packet.Acknowledgement{}, nil
}

// afterPacketReceive executes the contract once the transfer succeeded.
//
// Only packets rewritten by beforePacketReceive carry a wasm memo we act on.
func (h *Hooks) afterPacketReceive(env port.Env, reverter Reverter, original, forwarded *packet.Packet,
	ack packet.Acknowledgement, err error) (packet.Acknowledgement, error) {
	if err != nil || !ack.Success || original == forwarded {
		return ack, err
	}
	pd, memo := parseTransfer(forwarded)
	if memo == nil || memo.Wasm == nil {
		return ack, nil
	}
	amount, _ := pd.ParseAmount()
	_, denom, _ := ics20.ReceivedDenom(forwarded, pd)
	req := &ExecuteRequest{
		Sender:   pd.Receiver,
		Contract: memo.Wasm.Contract,
		Msg:      memo.Wasm.Msg,
		Funds:    []Coin{{Denom: denom, Amount: amount}},
	}
	err = h.cfg.Contracts.Execute(env, req)
	h.logEvent(env, "wasmHookExecuteDone", forwarded, memo.Wasm.Contract, err)
	if err == nil {
		return ack, nil
	}
	ack = ics20.NewErrorAck(err)
	if reverter != nil {
		err = errors.Join(err, reverter.RevertReceive(env, forwarded))
	}
	return ack, err
}

// beforeSendPacket rejects callbacks requested for another account.
func (h *Hooks) beforeSendPacket(env port.Env, pkt *packet.Packet) (*packet.Packet, port.Verdict, error) {
	pd, memo := parseTransfer(pkt)
	if memo == nil || memo.IBCCallback == "" || memo.IBCCallback == pd.Sender {
		return pkt, port.CONTINUE, nil
	}
	err := fmt.Errorf("%w: %s requested by %s", ErrBadSender, memo.IBCCallback, pd.Sender)
	return nil, port.STOP, err
}

// afterPacketAck notifies the callback contract, if any.
func (h *Hooks) afterPacketAck(
	env port.Env, pkt *packet.Packet, ack packet.Acknowledgement, err error) error {
	return errors.Join(err, h.callback(env, pkt, &IBCLifecycleComplete{
		IBCAck: &IBCAck{
			Channel:  pkt.Source.ChannelID,
			Sequence: pkt.Sequence,
			Ack:      base64.StdEncoding.EncodeToString(ack.Data),
			Success:  ack.Success,
		},
	}))
}

// afterPacketTimeout notifies the callback contract, if any.
func (h *Hooks) afterPacketTimeout(env port.Env, pkt *packet.Packet, err error) error {
	return errors.Join(err, h.callback(env, pkt, &IBCLifecycleComplete{
		IBCTimeout: &IBCTimeout{
			Channel:  pkt.Source.ChannelID,
			Sequence: pkt.Sequence,
		},
	}))
}

// callback sends the sudo message to the "ibc_callback" contract.
func (h *Hooks) callback(env port.Env, pkt *packet.Packet, msg *IBCLifecycleComplete) error {
	_, memo := parseTransfer(pkt)
	if memo == nil || memo.IBCCallback == "" {
		return nil
	}
	data, err := json.Marshal(&SudoMsg{IBCLifecycleComplete: msg})
	if err != nil {
		return err
	}
	err = h.cfg.Contracts.Sudo(env, memo.IBCCallback, data)
	h.logEvent(env, "wasmHookCallbackDone", pkt, memo.IBCCallback, err)
	return err
}

// parseTransfer parses the transfer data and its memo, returning a nil
// memo when the packet is not a transfer or has no JSON memo.
func parseTransfer(pkt *packet.Packet) (*ics20.PacketData, *Memo) {
	pd, err := ics20.ParsePacketData(pkt.Data)
	if err != nil || pd.Memo == "" {
		return pd, nil
	}
	memo, err := ParseMemo(pd.Memo)
	if err != nil {
		return pd, nil
	}
	return pd, memo
}

// logEvent emits a structured log event about a contract invocation.
func (h *Hooks) logEvent(env port.Env, event string, pkt *packet.Packet, contract string, err error) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Info(
			event,
			slog.String("chainID", env.ChainID()),
			slog.String("packet", pkt.String()),
			slog.String("contract", contract),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
}
