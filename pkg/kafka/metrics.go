package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	published   *prometheus.CounterVec
	publishSize *prometheus.CounterVec
	publishTime *prometheus.HistogramVec

	consumed   *prometheus.CounterVec
	backlog    *prometheus.GaugeVec
	handleTime *prometheus.HistogramVec
	deadLetter *prometheus.CounterVec
}

var defaultMetrics = sync.OnceValue(func() *clientMetrics {
	return newClientMetrics(prometheus.DefaultRegisterer)
})

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	f := promauto.With(reg)
	return &clientMetrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_dragon_kafka_published_total",
			Help: "Messages written to Kafka by topic and result",
		}, []string{"topic", "result"}),
		publishSize: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_dragon_kafka_published_bytes_total",
			Help: "Payload bytes written to Kafka",
		}, []string{"topic"}),
		publishTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "golden_dragon_kafka_publish_seconds",
			Help:    "Write latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_dragon_kafka_consumed_total",
			Help: "Messages handled by topic and result",
		}, []string{"topic", "result"}),
		backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "golden_dragon_kafka_consumer_backlog",
			Help: "Fetched messages waiting for a worker",
		}, []string{"topic"}),
		handleTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "golden_dragon_kafka_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		deadLetter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_dragon_kafka_dead_letters_total",
			Help: "Messages moved to the dead letter topic",
		}, []string{"topic"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
