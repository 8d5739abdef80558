// Package metrics exposes the node's web and chain metrics to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "powledger"

// Web counts the requests handled by the web api.
type Web struct {
	requests prometheus.Counter
	errors   prometheus.Counter
	panics   prometheus.Counter
}

// NewWeb constructs the web counters and registers them.
func NewWeb(reg prometheus.Registerer) *Web {
	factory := promauto.With(reg)

	return &Web{
		requests: factory.NewCounter(prometheus.CounterOpts{
			Name:      "requests",
			Namespace: namespace,
			Help:      "number of requests handled",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name:      "errors",
			Namespace: namespace,
			Help:      "number of requests that returned an error",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Name:      "panics",
			Namespace: namespace,
			Help:      "number of requests that panicked",
		}),
	}
}

// AddRequest increments the request count.
func (w *Web) AddRequest() {
	w.requests.Inc()
}

// AddError increments the error count.
func (w *Web) AddError() {
	w.errors.Inc()
}

// AddPanic increments the panic count.
func (w *Web) AddPanic() {
	w.panics.Inc()
}

// Handler returns the http handler serving the metrics in the registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
