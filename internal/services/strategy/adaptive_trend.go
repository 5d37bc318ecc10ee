package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/service"
	"github.com/trickingegg/golden-dragon/internal/services/indicators"
)

const NameAdaptiveTrend = "ADAPTIVE_TREND"

// AdaptiveTrendConfig holds EMA crossover parameters.
type AdaptiveTrendConfig struct {
	FastEMA        int     `yaml:"fast_ema" default:"8" validate:"gte=1"`
	SlowEMA        int     `yaml:"slow_ema" default:"21" validate:"gtfield=FastEMA"`
	ATRPeriod      int     `yaml:"atr_period" default:"14" validate:"gte=1"`
	ADXPeriod      int     `yaml:"adx_period" default:"14" validate:"gte=1"`
	ADXThreshold   float64 `yaml:"adx_threshold" default:"25" validate:"gte=0"`
	StopATR        float64 `yaml:"stop_atr" default:"1.5" validate:"gt=0"`
	TargetATR      float64 `yaml:"target_atr" default:"3.0" validate:"gt=0"`
	MinATRFraction float64 `yaml:"min_atr_fraction" default:"0.001" validate:"gte=0"`
	Score          int     `yaml:"score" default:"90" validate:"gte=0,lte=100"`
}

// DefaultAdaptiveTrendConfig returns the standard parameters.
func DefaultAdaptiveTrendConfig() AdaptiveTrendConfig {
	return AdaptiveTrendConfig{
		FastEMA:        8,
		SlowEMA:        21,
		ATRPeriod:      14,
		ADXPeriod:      14,
		ADXThreshold:   25,
		StopATR:        1.5,
		TargetATR:      3.0,
		MinATRFraction: 0.001,
		Score:          90,
	}
}

// AdaptiveTrend trades fast/slow EMA crossovers confirmed by ADX strength.
// Its HOLD signals still carry the trend, which the ensemble uses to filter
// counter-trend mean reversion entries.
type AdaptiveTrend struct {
	cfg AdaptiveTrendConfig
}

var _ service.Evaluator = (*AdaptiveTrend)(nil)

func NewAdaptiveTrend(cfg AdaptiveTrendConfig) *AdaptiveTrend { return &AdaptiveTrend{cfg: cfg} }

func (a *AdaptiveTrend) Name() string { return NameAdaptiveTrend }

func (a *AdaptiveTrend) WarmupPeriod() int { return max(a.cfg.SlowEMA, a.cfg.ADXPeriod) + 2 }

func (a *AdaptiveTrend) Evaluate(inst models.Instrument, bars []models.Bar) models.Signal {
	if len(bars) <= a.WarmupPeriod() {
		return models.HoldSignal(a.Name(), inst, models.TrendSideways, lastEnd(bars))
	}
	last := lastBar(bars)
	closes := indicators.CloseValues(bars)
	fast := indicators.EMA(closes, a.cfg.FastEMA)
	slow := indicators.EMA(closes, a.cfg.SlowEMA)
	adx := indicators.Last(indicators.ADX(indicators.Split(bars), a.cfg.ADXPeriod))
	atr := indicators.Last(indicators.ATR(bars, a.cfg.ATRPeriod))

	fastNow, fastPrev := indicators.Last(fast), indicators.Prev(fast)
	slowNow, slowPrev := indicators.Last(slow), indicators.Prev(slow)
	strong := adx > a.cfg.ADXThreshold

	var dir models.Direction
	trend := models.TrendSideways
	switch {
	case fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow) && strong:
		dir, trend = models.Buy, models.TrendBull
	case fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow) && strong:
		dir, trend = models.Sell, models.TrendBear
	default:
		return models.HoldSignal(a.Name(), inst, trend, last.EndTime)
	}

	entry := last.Close
	atrD := decimal.Max(atr, entry.Mul(dec(a.cfg.MinATRFraction)))
	stopOff := atrD.Mul(dec(a.cfg.StopATR))
	targetOff := atrD.Mul(dec(a.cfg.TargetATR))

	var stop, target decimal.Decimal
	if dir == models.Buy {
		stop, target = round(entry.Sub(stopOff)), round(entry.Add(targetOff))
	} else {
		stop, target = round(entry.Add(stopOff)), round(entry.Sub(targetOff))
	}
	return models.Signal{
		Strategy:    a.Name(),
		Direction:   dir,
		Trend:       trend,
		Score:       a.cfg.Score,
		Description: fmt.Sprintf("ema %d/%d cross %s: adx=%.2f atr=%s", a.cfg.FastEMA, a.cfg.SlowEMA, trend, adx, atrD.StringFixed(models.PriceScale)),
		Entry:       entry,
		StopLoss:    stop,
		TakeProfit:  target,
		CreatedAt:   last.EndTime,
		Instrument:  inst,
	}
}
