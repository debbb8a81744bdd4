//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Relay report
//

package ibcsim

import (
	"errors"
	"fmt"

	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"go.uber.org/multierr"
)

// RelayReport summarizes the outcome of relaying.
type RelayReport struct {
	// Delivered counts the packets passed to OnPacketReceive.
	Delivered int

	// Acknowledged counts the acknowledgements delivered to the
	// source, including failure acknowledgements.
	Acknowledged int

	// TimedOut counts the timeouts delivered to the source.
	TimedOut int

	// Rounds counts the rounds that processed at least one item.
	Rounds int

	// Errors contains the per-packet errors in occurrence order.
	Errors []*RelayError
}

// add accumulates another report into this one.
func (r *RelayReport) add(other *RelayReport) {
	r.Delivered += other.Delivered
	r.Acknowledged += other.Acknowledged
	r.TimedOut += other.TimedOut
	r.Rounds += other.Rounds
	r.Errors = append(r.Errors, other.Errors...)
}

// record appends a [*RelayError] to the report.
func (r *RelayReport) record(chainID packet.ChainID, pkt *packet.Packet, kind, err error) *RelayError {
	rerr := &RelayError{ChainID: chainID, Packet: pkt, Kind: kind, Err: err}
	r.Errors = append(r.Errors, rerr)
	return rerr
}

// ErrorsFor returns the errors recorded for the given chain.
func (r *RelayReport) ErrorsFor(chainID packet.ChainID) []*RelayError {
	var out []*RelayError
	for _, rerr := range r.Errors {
		if rerr.ChainID == chainID {
			out = append(out, rerr)
		}
	}
	return out
}

// ErrorsOfKind returns the errors whose kind matches the given sentinel.
func (r *RelayReport) ErrorsOfKind(kind error) []*RelayError {
	var out []*RelayError
	for _, rerr := range r.Errors {
		if errors.Is(rerr.Kind, kind) {
			out = append(out, rerr)
		}
	}
	return out
}

// Err combines all the recorded errors into a single error, or
// returns nil when there are none.
func (r *RelayReport) Err() error {
	var err error
	for _, rerr := range r.Errors {
		err = multierr.Append(err, rerr)
	}
	return err
}

// Empty returns true when the report did not process anything.
func (r *RelayReport) Empty() bool {
	return r.Delivered == 0 && r.Acknowledged == 0 && r.TimedOut == 0 && len(r.Errors) == 0
}

// String returns a summary of the report.
func (r *RelayReport) String() string {
	return fmt.Sprintf(
		"delivered=%d acknowledged=%d timedOut=%d rounds=%d errors=%d",
		r.Delivered,
		r.Acknowledged,
		r.TimedOut,
		r.Rounds,
		len(r.Errors),
	)
}
