package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "golden_dragon"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	candles       *prometheus.CounterVec
	signals       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	activeSignals prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on a custom registry, e.g. one per test.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		candles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candles_total",
				Help:      "Candle events by instrument and series outcome",
			},
			[]string{"instrument", "outcome"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Signals by strategy and pipeline stage",
			},
			[]string{"strategy", "stage"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_rejections_total",
				Help:      "Risk validator rejections by reason code",
			},
			[]string{"code"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signal_outcomes_total",
				Help:      "Terminal signal outcomes by strategy",
			},
			[]string{"strategy", "outcome"},
		),
		activeSignals: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_signals",
				Help:      "Signals currently tracked",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last close received for an instrument",
			},
			[]string{"instrument"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCandle counts a candle event and how the series applied it.
func (r *Recorder) RecordCandle(instrumentID, outcome string) {
	r.candles.WithLabelValues(instrumentID, outcome).Inc()
}

// RecordSignal counts a signal reaching a stage (candidate, accepted, rejected).
func (r *Recorder) RecordSignal(strategy, stage string) {
	r.signals.WithLabelValues(strategy, stage).Inc()
}

func (r *Recorder) RecordRejection(code string) {
	r.rejections.WithLabelValues(code).Inc()
}

func (r *Recorder) RecordOutcome(strategy, outcome string) {
	r.outcomes.WithLabelValues(strategy, outcome).Inc()
}

func (r *Recorder) SetActiveSignals(n int) {
	r.activeSignals.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an instrument.
func (r *Recorder) RecordLastPrice(instrumentID string, price float64) {
	r.lastPrice.WithLabelValues(instrumentID).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordCandle(string, string)     {}
func (Nop) RecordSignal(string, string)     {}
func (Nop) RecordRejection(string)          {}
func (Nop) RecordOutcome(string, string)    {}
func (Nop) SetActiveSignals(int)            {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}
