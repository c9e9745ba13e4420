package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "beefclient"

type metrics struct {
	requests      *prometheus.CounterVec
	subscriptions prometheus.Gauge
	resets        prometheus.Counter
	messages      *prometheus.CounterVec
}

// newMetrics builds the session collectors. They are only exported when reg
// is non-nil; sessions sharing a registerer share the collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "HTTP requests issued by sessions, by method and outcome.",
		}, []string{"method", "code"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscriptions_active",
			Help:      "Push subscriptions currently tracked by sessions.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "resets_total",
			Help:      "Session resets.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_messages_total",
			Help:      "Push messages received, by outcome.",
		}, []string{"outcome"}),
	}
	if reg == nil {
		return m
	}
	m.requests = register(reg, m.requests)
	m.subscriptions = register(reg, m.subscriptions)
	m.resets = register(reg, m.resets)
	m.messages = register(reg, m.messages)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) request(method, code string) {
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *metrics) message(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}
