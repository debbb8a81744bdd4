//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Relay metrics
//

package ibcsim

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbmk-project/ibcx/closepool"
	"github.com/rbmk-project/ibcx/errclass"
)

// metrics contains the counters maintained by an [*Ecosystem].
//
// The counters always exist, so the relay code can update them
// unconditionally, and are only exported when [Config] provides
// a [prometheus.Registerer].
type metrics struct {
	channelsOpened prometheus.Counter
	handshakeFails prometheus.Counter
	delivered      *prometheus.CounterVec
	acknowledged   *prometheus.CounterVec
	timedOut       *prometheus.CounterVec
	relayErrors    *prometheus.CounterVec
	rounds         prometheus.Counter
}

// newMetrics creates the counters and registers them with reg, if not
// nil, adding to pool the functions unregistering them.
func newMetrics(reg prometheus.Registerer, pool *closepool.Pool) (*metrics, error) {
	m := &metrics{
		channelsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "handshake",
			Name:      "channels_opened_total",
			Help:      "Channels opened on both ends.",
		}),
		handshakeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "handshake",
			Name:      "failures_total",
			Help:      "Failed channel handshakes.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "packets_delivered_total",
			Help:      "Packets passed to the destination application.",
		}, []string{"chain"}),
		acknowledged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "acks_delivered_total",
			Help:      "Acknowledgements delivered to the source application.",
		}, []string{"chain", "success"}),
		timedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "timeouts_delivered_total",
			Help:      "Timeouts delivered to the source application.",
		}, []string{"chain"}),
		relayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Per-packet relay errors by class.",
		}, []string{"chain", "class"}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "rounds_total",
			Help:      "Relay rounds that processed at least one item.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	collectors := []prometheus.Collector{
		m.channelsOpened,
		m.handshakeFails,
		m.delivered,
		m.acknowledged,
		m.timedOut,
		m.relayErrors,
		m.rounds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
		pool.AddFunc(func() error {
			if !reg.Unregister(c) {
				return fmt.Errorf("ibcsim: cannot unregister %T", c)
			}
			return nil
		})
	}
	return m, nil
}

// observeError counts a [*RelayError] using its class.
func (m *metrics) observeError(rerr *RelayError) {
	m.relayErrors.WithLabelValues(rerr.ChainID, errclass.New(rerr)).Inc()
}
