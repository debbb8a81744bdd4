//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Relay engine
//

package ibcsim

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/ibcx/errclass"
	"github.com/rbmk-project/ibcx/ibcsim/chain"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

// RelayAllPackets relays rounds until a round finds nothing to do.
//
// Each round works on a snapshot of the queues (see [*Ecosystem.RelayRound]),
// so packets sent by hooks are relayed by a later round. Per-packet
// failures are recorded in the returned report. The only error is
// [ErrLoopLimitExceeded], returned along with the partial report when
// work is still pending after the configured number of rounds.
func (e *Ecosystem) RelayAllPackets() (*RelayReport, error) {
	e.relayMu.Lock()
	defer e.relayMu.Unlock()

	report := &RelayReport{}
	for round := 1; round <= e.maxRounds; round++ {
		rr, processed := e.relayRound(round)
		report.add(rr)
		if processed <= 0 {
			return report, nil
		}
	}
	if e.hasPending() {
		err := fmt.Errorf("%w: still pending after %d rounds", ErrLoopLimitExceeded, e.maxRounds)
		if e.logger != nil {
			e.logger.Warn(
				"relayLoopLimit",
				slog.Int("maxRounds", e.maxRounds),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
		}
		return report, err
	}
	return report, nil
}

// MustRelayAllPackets is like [*Ecosystem.RelayAllPackets] but panics
// on [ErrLoopLimitExceeded]. Per-packet errors stay in the report.
func (e *Ecosystem) MustRelayAllPackets() *RelayReport {
	return runtimex.Try1(e.RelayAllPackets())
}

// RelayRound runs a single relay round and returns its report.
//
// A round drains the outgoing queue of every chain, in registration
// order, and delivers each packet (or detects its timeout) on the
// destination chain. Then it delivers every resulting acknowledgement
// and timeout to the source chains, in registration order. Packets
// sent while the round runs are left for the next round.
func (e *Ecosystem) RelayRound() *RelayReport {
	e.relayMu.Lock()
	defer e.relayMu.Unlock()
	rr, _ := e.relayRound(1)
	return rr
}

// RelayPacket relays a single pending packet, identified by the chain
// and the local channel that sent it and by its sequence, and then
// delivers the resulting acknowledgement or timeout back to the sender.
//
// The packet is removed from the queue even when it cannot be routed.
// Other pending packets, including those the hooks send, stay queued,
// and no ordering is enforced, so tests can step through packets in
// any order. Per-packet failures are recorded in the returned report,
// whose Rounds is zero. The error is non-nil only when the chain is
// unknown or the packet is not pending.
func (e *Ecosystem) RelayPacket(chainID packet.ChainID,
	channelID packet.ChannelID, sequence uint64) (*RelayReport, error) {
	src, err := e.Chain(chainID)
	if err != nil {
		return nil, err
	}

	e.relayMu.Lock()
	defer e.relayMu.Unlock()

	pkt, err := src.TakeOutgoing(channelID, sequence)
	if err != nil {
		return nil, err
	}
	report := &RelayReport{}
	if res := e.relayPacket(report, src, pkt); res != nil {
		e.deliverResolution(report, src, res)
	}
	return report, nil
}

// RelayNextPacket is like [*Ecosystem.RelayPacket] but relays the
// oldest packet pending on the given chain.
func (e *Ecosystem) RelayNextPacket(chainID packet.ChainID) (*RelayReport, error) {
	src, err := e.Chain(chainID)
	if err != nil {
		return nil, err
	}
	pending := src.PendingPackets()
	if len(pending) <= 0 {
		return nil, fmt.Errorf("%w: %s has no pending packets", chain.ErrNoPendingPacket, chainID)
	}
	next := pending[0]
	return e.RelayPacket(chainID, next.Source.ChannelID, next.Sequence)
}

// relayRound implements RelayRound and returns the number of
// packets and resolutions processed by the round.
func (e *Ecosystem) relayRound(round int) (*RelayReport, int) {
	t0 := time.Now()
	chains := e.Chains()
	if e.logger != nil {
		e.logger.Debug(
			"relayRoundStart",
			slog.Int("round", round),
			slog.Int("chains", len(chains)),
			slog.Time("t", t0),
		)
	}

	report := &RelayReport{}
	processed := 0

	// 1. snapshot all the outgoing queues before any hook runs
	batches := make([][]*packet.Packet, len(chains))
	for idx, src := range chains {
		batches[idx] = src.DrainOutgoing()
		e.sortOrderedBatch(src, batches[idx])
	}

	// 2. relay the snapshot, queueing the outcomes on the senders
	for idx, src := range chains {
		for _, pkt := range batches[idx] {
			if res := e.relayPacket(report, src, pkt); res != nil {
				src.EnqueueInbound(res)
			}
		}
		processed += len(batches[idx])
	}

	// 3. deliver acknowledgements and timeouts to the senders
	for _, src := range chains {
		inbound := src.DrainInbound()
		for _, res := range inbound {
			e.deliverResolution(report, src, res)
		}
		processed += len(inbound)
	}

	if processed > 0 {
		report.Rounds = 1
		e.metrics.rounds.Inc()
	}

	if e.logger != nil {
		e.logger.Debug(
			"relayRoundDone",
			slog.Int("round", round),
			slog.Int("processed", processed),
			slog.Int("delivered", report.Delivered),
			slog.Int("acknowledged", report.Acknowledged),
			slog.Int("timedOut", report.TimedOut),
			slog.Int("errors", len(report.Errors)),
			slog.Time("t0", t0),
			slog.Time("t", time.Now()),
		)
	}
	return report, processed
}

// sortOrderedBatch sorts, in place and by sequence, the packets of
// the batch that belong to ORDERED channels. The packets of each
// such channel keep the slots they occupied in the batch, so the
// relative order of everything else is unchanged.
func (e *Ecosystem) sortOrderedBatch(src *chain.Chain, batch []*packet.Packet) {
	slots := map[packet.ChannelID][]int{}
	var channels []packet.ChannelID
	for idx, pkt := range batch {
		ch, err := src.Channel(pkt.Source.ChannelID)
		if err != nil || ch.Order != packet.Ordered {
			continue
		}
		if _, found := slots[ch.Local.ChannelID]; !found {
			channels = append(channels, ch.Local.ChannelID)
		}
		slots[ch.Local.ChannelID] = append(slots[ch.Local.ChannelID], idx)
	}
	for _, id := range channels {
		indexes := slots[id]
		pkts := make([]*packet.Packet, 0, len(indexes))
		for _, idx := range indexes {
			pkts = append(pkts, batch[idx])
		}
		slices.SortStableFunc(pkts, func(a, b *packet.Packet) int {
			switch {
			case a.Sequence < b.Sequence:
				return -1
			case a.Sequence > b.Sequence:
				return 1
			default:
				return 0
			}
		})
		for i, idx := range indexes {
			batch[idx] = pkts[i]
		}
	}
}

// relayPacket delivers a packet drained from src to its destination
// and returns the outcome to deliver back to src, or nil when the
// packet could not be routed.
func (e *Ecosystem) relayPacket(report *RelayReport, src *chain.Chain, pkt *packet.Packet) *packet.Resolution {
	dst, err := e.Chain(pkt.Destination.ChainID)
	if err != nil {
		e.recordError(report, src.ChainID(), pkt, ErrRouting, err)
		return nil
	}

	if pkt.TimedOut(dst.Now(), dst.Height()) {
		if e.logger != nil {
			e.logger.Info(
				"packetTimeout",
				slog.String("chainID", dst.ChainID()),
				slog.String("packet", pkt.String()),
				slog.Time("now", dst.Now()),
				slog.Uint64("height", dst.Height()),
			)
		}
		return &packet.Resolution{Packet: pkt, TimedOut: true}
	}

	t0 := time.Now()
	ack, err := dst.ReceivePacket(pkt)
	var hookErr *chain.HookError
	switch {
	case err == nil:
		report.Delivered++
		e.metrics.delivered.WithLabelValues(dst.ChainID()).Inc()

	case errors.As(err, &hookErr):
		report.Delivered++
		e.metrics.delivered.WithLabelValues(dst.ChainID()).Inc()
		ack = failureAck(ack, err)
		e.recordError(report, dst.ChainID(), pkt, ErrHandler, err)

	default:
		e.recordError(report, dst.ChainID(), pkt, ErrRouting, err)
		return nil
	}

	if e.logger != nil {
		e.logger.Info(
			"packetReceiveDone",
			slog.String("chainID", dst.ChainID()),
			slog.String("packet", pkt.String()),
			slog.Bool("success", ack.Success),
			slog.Int("ackLength", len(ack.Data)),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Time("t0", t0),
			slog.Time("t", time.Now()),
		)
	}
	return &packet.Resolution{Packet: pkt, Ack: ack}
}

// failureAck converts the outcome of a failed receive hook into a
// failure acknowledgement. The data returned by the hook, if any, is
// preserved, otherwise we use the error message.
func failureAck(ack packet.Acknowledgement, err error) packet.Acknowledgement {
	if len(ack.Data) > 0 {
		return packet.Acknowledgement{Success: false, Data: ack.Data}
	}
	return packet.NewErrorAck(err)
}

// deliverResolution delivers an acknowledgement or a timeout to src.
func (e *Ecosystem) deliverResolution(report *RelayReport, src *chain.Chain, res *packet.Resolution) {
	t0 := time.Now()
	var (
		err   error
		event string
		kind  error
	)
	if res.TimedOut {
		event, kind = "timeoutDeliveryDone", ErrTimeoutDelivery
		err = src.DeliverTimeout(res.Packet)
	} else {
		event, kind = "ackDeliveryDone", ErrAckDelivery
		err = src.DeliverAck(res.Packet, res.Ack)
	}

	var hookErr *chain.HookError
	switch {
	case err == nil || errors.As(err, &hookErr):
		if res.TimedOut {
			report.TimedOut++
			e.metrics.timedOut.WithLabelValues(src.ChainID()).Inc()
		} else {
			report.Acknowledged++
			e.metrics.acknowledged.WithLabelValues(
				src.ChainID(), strconv.FormatBool(res.Ack.Success)).Inc()
		}
		if err != nil {
			e.recordError(report, src.ChainID(), res.Packet, kind, err)
		}

	default:
		e.recordError(report, src.ChainID(), res.Packet, ErrRouting, err)
	}

	if e.logger != nil {
		e.logger.Info(
			event,
			slog.String("chainID", src.ChainID()),
			slog.String("resolution", res.String()),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Time("t0", t0),
			slog.Time("t", time.Now()),
		)
	}
}

// recordError records a per-packet error in the report, counts it,
// and logs it.
func (e *Ecosystem) recordError(report *RelayReport, chainID packet.ChainID, pkt *packet.Packet, kind, err error) {
	rerr := report.record(chainID, pkt, kind, err)
	e.metrics.observeError(rerr)
	if e.logger != nil {
		e.logger.Warn(
			"relayError",
			slog.String("chainID", chainID),
			slog.String("packet", pkt.String()),
			slog.Any("err", rerr),
			slog.String("errClass", errclass.New(rerr)),
		)
	}
}
