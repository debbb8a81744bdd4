// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"fmt"
	"time"
)

// SendRequest is what application code emits to send a packet.
type SendRequest struct {
	// ChannelID is the local channel to send through. The
	// destination is the counterparty of this channel.
	ChannelID ChannelID

	// Data is the packet payload.
	Data []byte

	// TimeoutTimestamp is the optional timeout expressed in the
	// destination chain's clock. Zero means no timestamp timeout.
	TimeoutTimestamp time.Time

	// TimeoutHeight is the optional timeout expressed as a
	// destination block height. Zero means no height timeout.
	TimeoutHeight uint64
}

// Packet is one unit of cross-chain payload.
//
// A packet is immutable once created: hooks that want to change
// it must create a modified copy (see [*Packet.WithData]).
type Packet struct {
	// Sequence is monotonic per source channel, starting at 1.
	Sequence uint64

	// Source is the sending end.
	Source Endpoint

	// Destination is the receiving end.
	Destination Endpoint

	// Data is the packet payload.
	Data []byte

	// TimeoutTimestamp is the optional timestamp timeout.
	TimeoutTimestamp time.Time

	// TimeoutHeight is the optional height timeout.
	TimeoutHeight uint64
}

// TimedOut returns true if the packet has expired according to the
// given destination clock time and block height. A packet expires
// when the destination time is equal to or after the timestamp, or
// when the destination height reached the timeout height.
func (p *Packet) TimedOut(now time.Time, height uint64) bool {
	if !p.TimeoutTimestamp.IsZero() && !now.Before(p.TimeoutTimestamp) {
		return true
	}
	return p.TimeoutHeight > 0 && height >= p.TimeoutHeight
}

// WithData returns a copy of the packet using the given payload.
func (p *Packet) WithData(data []byte) *Packet {
	pkt := *p
	pkt.Data = append([]byte{}, data...)
	return &pkt
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf(
		"%s -> %s seq=%d length=%d",
		p.Source,
		p.Destination,
		p.Sequence,
		len(p.Data),
	)
}

// Acknowledgement is the result returned by the destination.
type Acknowledgement struct {
	// Success indicates whether the destination processed the packet.
	Success bool

	// Data is the acknowledgement payload.
	Data []byte
}

// NewSuccessAck returns a successful [Acknowledgement] with the given data.
func NewSuccessAck(data []byte) Acknowledgement {
	return Acknowledgement{Success: true, Data: data}
}

// NewErrorAck returns a failure [Acknowledgement] carrying the error message.
func NewErrorAck(err error) Acknowledgement {
	var data []byte
	if err != nil {
		data = []byte(err.Error())
	}
	return Acknowledgement{Success: false, Data: data}
}

// Resolution is the outcome of relaying a packet, awaiting delivery
// back to the source chain.
type Resolution struct {
	// Packet is the original packet.
	Packet *Packet

	// Ack is the acknowledgement, meaningful unless TimedOut is true.
	Ack Acknowledgement

	// TimedOut indicates that the packet expired before delivery.
	TimedOut bool
}

// String returns the string representation of the resolution.
func (r *Resolution) String() string {
	switch {
	case r.TimedOut:
		return fmt.Sprintf("TIMEOUT %s", r.Packet)
	case r.Ack.Success:
		return fmt.Sprintf("ACK %s", r.Packet)
	default:
		return fmt.Sprintf("NACK %s", r.Packet)
	}
}
