package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/service"
)

type fakeEvaluator struct {
	name   string
	dir    models.Direction
	trend  models.Trend
	warmup int
	panics bool
}

func (f *fakeEvaluator) Name() string      { return f.name }
func (f *fakeEvaluator) WarmupPeriod() int { return f.warmup }
func (f *fakeEvaluator) Evaluate(inst models.Instrument, bars []models.Bar) models.Signal {
	if f.panics {
		panic("boom")
	}
	return models.Signal{
		Strategy:    f.name,
		Direction:   f.dir,
		Trend:       f.trend,
		Score:       50,
		Description: "fake",
		Entry:       decimal.NewFromInt(100),
		StopLoss:    decimal.NewFromInt(98),
		TakeProfit:  decimal.NewFromInt(106),
		Instrument:  inst,
	}
}

func newTestEnsemble(trend models.Trend, trendDir models.Direction, mrDir models.Direction) *Ensemble {
	return NewEnsemble([]service.Evaluator{
		&fakeEvaluator{name: NameScalping, dir: models.Sell, warmup: 15},
		&fakeEvaluator{name: NameMeanReversionConservative, dir: mrDir, warmup: 22},
		&fakeEvaluator{name: NameMeanReversionAggressive, dir: mrDir, warmup: 17},
		&fakeEvaluator{name: NameAdaptiveTrend, dir: trendDir, trend: trend, warmup: 23},
	}, WithTrendFilter(NameAdaptiveTrend, NameMeanReversionConservative, NameMeanReversionAggressive))
}

func names(sigs []models.Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.Strategy
	}
	return out
}

func TestConflictFilterDropsCounterTrendReversion(t *testing.T) {
	e := newTestEnsemble(models.TrendBull, models.Buy, models.Sell)

	out := e.EvaluateAll(testInst, nil)
	assert.Equal(t, []string{NameScalping, NameAdaptiveTrend}, names(out))

	for _, st := range e.Stats() {
		switch st.Name {
		case NameMeanReversionConservative, NameMeanReversionAggressive:
			assert.Zero(t, st.Signals, st.Name)
		default:
			assert.Equal(t, int64(1), st.Signals, st.Name)
		}
	}
}

func TestConflictFilterBearTrendDropsReversionBuys(t *testing.T) {
	e := newTestEnsemble(models.TrendBear, models.Sell, models.Buy)
	out := e.EvaluateAll(testInst, nil)
	assert.Equal(t, []string{NameScalping, NameAdaptiveTrend}, names(out))
}

func TestTrendFromHoldStillFilters(t *testing.T) {
	e := newTestEnsemble(models.TrendBull, models.Hold, models.Sell)
	out := e.EvaluateAll(testInst, nil)
	assert.Equal(t, []string{NameScalping}, names(out))
}

func TestAlignedReversionSurvives(t *testing.T) {
	e := newTestEnsemble(models.TrendBull, models.Buy, models.Buy)
	out := e.EvaluateAll(testInst, nil)
	assert.Len(t, out, 4)
}

func TestDescriptionsArePrefixed(t *testing.T) {
	e := newTestEnsemble(models.TrendSideways, models.Hold, models.Hold)
	out := e.EvaluateAll(testInst, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "[SCALPING] fake", out[0].Description)
}

func TestEvaluateAllIsDeterministic(t *testing.T) {
	specs := append(flatBars(30, 100), barSpec{close: 90, high: 90, low: 90, vol: 1})
	bars := makeBars(specs)
	e := NewDefaultEnsemble(DefaultConfig())

	first := e.EvaluateAll(testInst, bars)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.EvaluateAll(testInst, bars))
	}
	require.NotEmpty(t, first)
	assert.Equal(t, bars[len(bars)-1].EndTime, first[0].CreatedAt)
}

func TestPanickingEvaluatorIsIsolated(t *testing.T) {
	e := NewEnsemble([]service.Evaluator{
		&fakeEvaluator{name: "BROKEN", panics: true},
		&fakeEvaluator{name: NameScalping, dir: models.Buy},
	})
	out := e.EvaluateAll(testInst, nil)
	assert.Equal(t, []string{NameScalping}, names(out))
}

func TestEnableDisable(t *testing.T) {
	e := newTestEnsemble(models.TrendSideways, models.Hold, models.Buy)
	require.NoError(t, e.Enable(NameScalping, false))
	assert.False(t, e.IsEnabled(NameScalping))

	out := e.EvaluateAll(testInst, nil)
	assert.Equal(t, []string{NameMeanReversionConservative, NameMeanReversionAggressive}, names(out))

	err := e.Enable("NOPE", true)
	require.ErrorIs(t, err, models.ErrUnknownStrategy)
	assert.Equal(t, []string{NameAdaptiveTrend, NameMeanReversionAggressive, NameMeanReversionConservative}, e.EnabledNames())
}

func TestDisabledTrendSourceDisablesFilter(t *testing.T) {
	e := newTestEnsemble(models.TrendBull, models.Buy, models.Sell)
	require.NoError(t, e.Enable(NameAdaptiveTrend, false))
	out := e.EvaluateAll(testInst, nil)
	assert.Equal(t, []string{NameScalping, NameMeanReversionConservative, NameMeanReversionAggressive}, names(out))
}

func TestWarmupIsMaximum(t *testing.T) {
	assert.Equal(t, 23, newTestEnsemble(models.TrendSideways, models.Hold, models.Hold).WarmupPeriod())
	assert.Equal(t, 25, NewEnsemble(nil).WarmupPeriod())
	assert.Equal(t, 23, NewDefaultEnsemble(DefaultConfig()).WarmupPeriod())
}

func TestDefaultEnsembleHonoursEnabledList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = []string{NameScalping}
	e := NewDefaultEnsemble(cfg)
	assert.Equal(t, []string{NameScalping}, e.EnabledNames())
	assert.Equal(t, Names(), e.Names())
}
