// Package metrics exports cache events to Prometheus.
package metrics

import (
	"errors"
	"fmt"

	"github.com/krisalay/memo-cache/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventHit        = "hit"
	EventMiss       = "miss"
	EventExpire     = "expire"
	EventInvalidate = "invalidate"
	EventRefresh    = "refresh"
)

// PrometheusMetrics implements types.Metrics with one counter per event, labelled by
// backend name.
type PrometheusMetrics struct {
	hit        prometheus.Counter
	miss       prometheus.Counter
	expire     prometheus.Counter
	invalidate prometheus.Counter
	refresh    prometheus.Counter
}

var _ types.Metrics = (*PrometheusMetrics)(nil)

/*
NewPrometheusMetrics registers memocache_events_total on reg (the default registerer
when nil) and returns the counters for backend.

Several backends may share one registerer: the collector is registered once and
reused afterwards.
*/
func NewPrometheusMetrics(reg prometheus.Registerer, backend string) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memocache_events_total",
			Help: "Total number of cache events by backend and event kind",
		},
		[]string{"backend", "event"},
	)
	if err := reg.Register(events); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("%w: register metrics: %w", types.ErrConfiguration, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("%w: memocache_events_total registered with another type", types.ErrConfiguration)
		}
		events = existing
	}

	// Creating the series up front exports zeros before the first event.
	return &PrometheusMetrics{
		hit:        events.WithLabelValues(backend, EventHit),
		miss:       events.WithLabelValues(backend, EventMiss),
		expire:     events.WithLabelValues(backend, EventExpire),
		invalidate: events.WithLabelValues(backend, EventInvalidate),
		refresh:    events.WithLabelValues(backend, EventRefresh),
	}, nil
}

func (m *PrometheusMetrics) Hit()        { m.hit.Inc() }
func (m *PrometheusMetrics) Miss()       { m.miss.Inc() }
func (m *PrometheusMetrics) Expire()     { m.expire.Inc() }
func (m *PrometheusMetrics) Invalidate() { m.invalidate.Inc() }
func (m *PrometheusMetrics) Refresh()    { m.refresh.Inc() }
