package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "golden_dragon",
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Broker gateway calls by call type",
		},
		[]string{"call"},
	)

	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "golden_dragon",
			Subsystem: "broker",
			Name:      "latency_seconds",
			Help:      "Latency of broker gateway calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	GatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "golden_dragon",
			Subsystem: "broker",
			Name:      "errors_total",
			Help:      "Failed broker gateway calls by call type",
		},
		[]string{"call"},
	)

	GatewayThrottled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "golden_dragon",
			Subsystem: "broker",
			Name:      "throttled_total",
			Help:      "Broker calls refused by the local rate limiter",
		},
		[]string{"call"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(GatewayRequests, GatewayLatency, GatewayErrors, GatewayThrottled)
	})
}
