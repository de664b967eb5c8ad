package auth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts activity events per event type.
type MetricsSink struct {
	events *prometheus.CounterVec
}

// NewMetricsSink registers auth_activity_events_total on reg. A nil
// registerer falls back to prometheus.DefaultRegisterer.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_activity_events_total",
		Help: "Number of authentication activity events by type.",
	}, []string{"event"})

	if err := reg.Register(events); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		events = existing
	}

	return &MetricsSink{events: events}, nil
}

// Record implements ActivitySink.
func (m *MetricsSink) Record(_ context.Context, event ActivityEvent) error {
	m.events.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

// Counter exposes the underlying collector.
func (m *MetricsSink) Counter() *prometheus.CounterVec {
	return m.events
}
