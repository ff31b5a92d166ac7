package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collectors struct {
	DispatchTotal      *prometheus.CounterVec
	EventHandlerErrors *prometheus.CounterVec

	GenerationTotal   *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec

	MessagesTotal *prometheus.CounterVec

	ListenersRunning   prometheus.Gauge
	PlaygroundSessions prometheus.Gauge
}

var collectorsSingleton = sync.OnceValue(func() *Collectors {
	return &Collectors{
		DispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediator",
			Name:      "dispatch_total",
			Help:      "Total number of dispatched commands, queries and events.",
		}, []string{"kind", "message", "result"}),
		EventHandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediator",
			Name:      "event_handler_errors_total",
			Help:      "Total number of failed or panicked event handlers.",
		}, []string{"message"}),
		GenerationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "generation",
			Name:      "requests_total",
			Help:      "Total number of generation requests by adapter and outcome.",
		}, []string{"adapter", "result"}),
		GenerationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "generation",
			Name:      "latency_seconds",
			Help:      "Latency distribution for generation requests.",
			Buckets: []float64{
				0.05, 0.1, 0.25, 0.5,
				1, 2, 5, 10,
				20, 30, 60,
			},
		}, []string{"adapter"}),
		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversation",
			Name:      "messages_total",
			Help:      "Total number of persisted conversation messages.",
		}, []string{"platform", "role"}),
		ListenersRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "telegram",
			Name:      "listeners_running",
			Help:      "Current number of running messenger listeners.",
		}),
		PlaygroundSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "playground",
			Name:      "sessions_open",
			Help:      "Current number of open playground sockets.",
		}),
	}
})

// Use returns the process-wide collectors, registering them on first use.
func Use() *Collectors {
	return collectorsSingleton()
}
