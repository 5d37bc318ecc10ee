package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/trickingegg/golden-dragon/internal/domain/repository"
)

var (
	_ repository.Metrics = (*Recorder)(nil)
	_ repository.Metrics = Nop{}
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordSignal("SCALPING", "accepted")
	r.RecordSignal("SCALPING", "accepted")
	r.RecordRejection("reward_risk")
	r.SetActiveSignals(3)
	r.RecordLastPrice("FIGI1", 101.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("SCALPING", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejections.WithLabelValues("reward_risk")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.activeSignals))
	assert.Equal(t, 101.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("FIGI1")))
}
