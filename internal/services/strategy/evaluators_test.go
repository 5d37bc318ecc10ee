package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/service"
)

func TestWarmupPeriods(t *testing.T) {
	assert.Equal(t, 15, NewScalping(DefaultScalpingConfig()).WarmupPeriod())
	assert.Equal(t, 23, NewAdaptiveTrend(DefaultAdaptiveTrendConfig()).WarmupPeriod())
	assert.Equal(t, 22, NewMeanReversion(NameMeanReversionConservative, ConservativeMeanReversion()).WarmupPeriod())
	assert.Equal(t, 17, NewMeanReversion(NameMeanReversionAggressive, AggressiveMeanReversion()).WarmupPeriod())
}

func TestEvaluatorsHoldDuringWarmup(t *testing.T) {
	evs := []service.Evaluator{
		NewScalping(DefaultScalpingConfig()),
		NewAdaptiveTrend(DefaultAdaptiveTrendConfig()),
		NewMeanReversion(NameMeanReversionConservative, ConservativeMeanReversion()),
	}
	for _, ev := range evs {
		bars := makeBars(trendBars(ev.WarmupPeriod(), 100, -1))
		sig := ev.Evaluate(testInst, bars)
		assert.Equal(t, models.Hold, sig.Direction, ev.Name())
		assert.Equal(t, models.TrendSideways, sig.Trend, ev.Name())

		empty := ev.Evaluate(testInst, nil)
		assert.Equal(t, models.Hold, empty.Direction, ev.Name())
	}
}

func TestScalpingBuyAboveVWAPWhenOversold(t *testing.T) {
	specs := trendBars(41, 100, -0.5)
	for i := 30; i <= 33; i++ {
		specs[i].low = 1
		specs[i].vol = 1000
	}
	bars := makeBars(specs)

	sig := NewScalping(DefaultScalpingConfig()).Evaluate(testInst, bars)
	require.Equal(t, models.Buy, sig.Direction)
	assert.Equal(t, NameScalping, sig.Strategy)
	assert.Equal(t, 88, sig.Score)
	assert.True(t, sig.Entry.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "79.7600", sig.StopLoss.StringFixed(4))
	assert.Equal(t, "80.4800", sig.TakeProfit.StringFixed(4))
	assert.Equal(t, bars[len(bars)-1].EndTime, sig.CreatedAt)
}

func TestScalpingSellBelowVWAPWhenOverbought(t *testing.T) {
	specs := trendBars(41, 50, 0.5)
	for i := 30; i <= 33; i++ {
		specs[i].high = 500
		specs[i].vol = 1000
	}
	sig := NewScalping(DefaultScalpingConfig()).Evaluate(testInst, makeBars(specs))
	require.Equal(t, models.Sell, sig.Direction)
	assert.True(t, sig.StopLoss.GreaterThan(sig.Entry))
	assert.True(t, sig.TakeProfit.LessThan(sig.Entry))
}

func TestMeanReversionBuyBelowLowerBand(t *testing.T) {
	specs := append(flatBars(30, 100), barSpec{close: 90, high: 90, low: 90, vol: 1})
	bars := makeBars(specs)

	sig := NewMeanReversion(NameMeanReversionConservative, ConservativeMeanReversion()).Evaluate(testInst, bars)
	require.Equal(t, models.Buy, sig.Direction)
	assert.Equal(t, 85, sig.Score)
	// midline = EMA(20): 100 + 2/21 * (90 - 100)
	assert.Equal(t, "99.0476", sig.TakeProfit.StringFixed(4))
	assert.Equal(t, "85.4762", sig.StopLoss.StringFixed(4))
	assert.True(t, sig.RewardDistance().GreaterThanOrEqual(sig.StopDistance().Mul(decimal.NewFromFloat(1.5))))
}

func TestMeanReversionSellAboveUpperBand(t *testing.T) {
	specs := append(flatBars(30, 100), barSpec{close: 110, high: 110, low: 110, vol: 1})
	sig := NewMeanReversion(NameMeanReversionAggressive, AggressiveMeanReversion()).Evaluate(testInst, makeBars(specs))
	require.Equal(t, models.Sell, sig.Direction)
	assert.True(t, sig.StopLoss.GreaterThan(sig.Entry))
	assert.True(t, sig.TakeProfit.LessThan(sig.Entry))
}

func TestMeanReversionHoldInsideBands(t *testing.T) {
	sig := NewMeanReversion(NameMeanReversionConservative, ConservativeMeanReversion()).
		Evaluate(testInst, makeBars(flatBars(40, 100)))
	assert.Equal(t, models.Hold, sig.Direction)
}

func TestAdaptiveTrendBuysConfirmedCrossover(t *testing.T) {
	down := trendBars(40, 200, -1)
	last := down[len(down)-1].close
	up := trendBars(30, last+2, 2)
	bars := makeBars(append(down, up...))
	ev := NewAdaptiveTrend(DefaultAdaptiveTrendConfig())

	var found *models.Signal
	for k := len(down) + 1; k <= len(bars); k++ {
		sig := ev.Evaluate(testInst, bars[:k])
		if sig.Direction == models.Sell {
			t.Fatalf("unexpected sell at bar %d", k)
		}
		if sig.Direction == models.Buy {
			found = &sig
			break
		}
		assert.Equal(t, models.TrendSideways, sig.Trend)
	}
	require.NotNil(t, found, "expected a bullish crossover in the uptrend")
	assert.Equal(t, models.TrendBull, found.Trend)
	assert.Equal(t, 90, found.Score)

	risk := found.Entry.Sub(found.StopLoss)
	reward := found.TakeProfit.Sub(found.Entry)
	require.True(t, risk.IsPositive())
	assert.InDelta(t, 2.0, reward.Div(risk).InexactFloat64(), 0.001)
}

func TestAdaptiveTrendHoldsOnFlatMarket(t *testing.T) {
	sig := NewAdaptiveTrend(DefaultAdaptiveTrendConfig()).Evaluate(testInst, makeBars(flatBars(60, 100)))
	assert.Equal(t, models.Hold, sig.Direction)
	assert.Equal(t, models.TrendSideways, sig.Trend)
}

func TestMeanReversionHoldsWhenRSIPeriodExceedsHistory(t *testing.T) {
	cfg := ConservativeMeanReversion()
	cfg.RSIPeriod = 40
	specs := append(flatBars(30, 100), barSpec{close: 90, high: 90, low: 90, vol: 1})

	sig := NewMeanReversion(NameMeanReversionConservative, cfg).Evaluate(testInst, makeBars(specs))
	assert.Equal(t, models.Hold, sig.Direction)
}
