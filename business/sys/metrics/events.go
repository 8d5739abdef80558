package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Broadcaster is the behavior the event metrics read on every scrape.
type Broadcaster interface {
	Subscribers() int
	Dropped() uint64
}

// NewEvents constructs the collectors for the websocket event stream.
func NewEvents(b Broadcaster) []prometheus.Collector {
	subscribers := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "number of connected event subscribers",
		},
		func() float64 { return float64(b.Subscribers()) },
	)

	dropped := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "number of events subscribers missed because their buffer was full",
		},
		func() float64 { return float64(b.Dropped()) },
	)

	return []prometheus.Collector{subscribers, dropped}
}
