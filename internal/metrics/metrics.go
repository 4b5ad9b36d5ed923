// Package metrics exposes prometheus instrumentation for the relay.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const subsystem = "hookbridge"

func init() {
	prometheus.MustRegister(BridgesActive)
	prometheus.MustRegister(BridgesTotal)
	prometheus.MustRegister(FramesForwarded)
	prometheus.MustRegister(FramesDropped)
	prometheus.MustRegister(FramesFiltered)
	prometheus.MustRegister(DialFailures)
}

var (
	// BridgesActive tracks currently live browser<->upstream bridges.
	BridgesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "bridges_active",
		Help:      "Number of live relay bridges.",
	})

	// BridgesTotal counts bridges ever opened, labeled by final outcome:
	// "bridged", "dns_error" or "dial_error".
	BridgesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "bridges_total",
		Help:      "Total relay bridges opened, labeled by outcome.",
	}, []string{"outcome"})

	// FramesForwarded counts frames passed through, labeled by direction
	// ("to_browser" or "to_remote").
	FramesForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "frames_forwarded_total",
		Help:      "Frames forwarded across the bridge, labeled by direction.",
	}, []string{"direction"})

	// FramesDropped counts frames dropped because the peer socket was not
	// open. There is no buffering or retry.
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because the peer was not writable.",
	}, []string{"direction"})

	// FramesFiltered counts remote frames silently withheld because their
	// fqn belonged to another conference.
	FramesFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "frames_filtered_total",
		Help:      "Remote frames withheld by cross-room isolation.",
	})

	// DialFailures counts upstream dial errors after successful DNS.
	DialFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "dial_failures_total",
		Help:      "Failed upstream websocket dials.",
	})
)
