package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/service"
	"github.com/trickingegg/golden-dragon/internal/services/indicators"
)

const NameScalping = "SCALPING"

// ScalpingConfig holds momentum scalp parameters.
type ScalpingConfig struct {
	RSIPeriod     int     `yaml:"rsi_period" default:"7" validate:"gte=2"`
	VWAPPeriod    int     `yaml:"vwap_period" default:"14" validate:"gte=1"`
	Oversold      float64 `yaml:"oversold" default:"25" validate:"gte=0,lte=100"`
	Overbought    float64 `yaml:"overbought" default:"75" validate:"gte=0,lte=100"`
	StopPercent   float64 `yaml:"stop_percent" default:"0.3" validate:"gt=0"`
	TargetPercent float64 `yaml:"target_percent" default:"0.6" validate:"gt=0"`
	Score         int     `yaml:"score" default:"88" validate:"gte=0,lte=100"`
}

// DefaultScalpingConfig returns the standard parameters.
func DefaultScalpingConfig() ScalpingConfig {
	return ScalpingConfig{
		RSIPeriod:     7,
		VWAPPeriod:    14,
		Oversold:      25,
		Overbought:    75,
		StopPercent:   0.3,
		TargetPercent: 0.6,
		Score:         88,
	}
}

// Scalping buys oversold dips above VWAP and sells overbought spikes below it.
type Scalping struct {
	cfg ScalpingConfig
}

var _ service.Evaluator = (*Scalping)(nil)

func NewScalping(cfg ScalpingConfig) *Scalping { return &Scalping{cfg: cfg} }

func (s *Scalping) Name() string { return NameScalping }

func (s *Scalping) WarmupPeriod() int { return max(s.cfg.RSIPeriod, s.cfg.VWAPPeriod) + 1 }

func (s *Scalping) Evaluate(inst models.Instrument, bars []models.Bar) models.Signal {
	if len(bars) <= s.WarmupPeriod() {
		at := lastEnd(bars)
		return models.HoldSignal(s.Name(), inst, models.TrendSideways, at)
	}
	last := lastBar(bars)
	cols := indicators.Split(bars)
	rsi := indicators.Last(indicators.RSI(cols.Close, s.cfg.RSIPeriod))
	vwap := indicators.Last(indicators.VWAP(cols, s.cfg.VWAPPeriod))
	closeF := last.Close.InexactFloat64()
	bullish := closeF > vwap

	var dir models.Direction
	switch {
	case bullish && rsi < s.cfg.Oversold:
		dir = models.Buy
	case !bullish && rsi > s.cfg.Overbought:
		dir = models.Sell
	default:
		return models.HoldSignal(s.Name(), inst, models.TrendSideways, last.EndTime)
	}

	entry := last.Close
	stop, target := percentLevels(dir, entry, dec(s.cfg.StopPercent), dec(s.cfg.TargetPercent))
	trend := models.TrendBear
	if bullish {
		trend = models.TrendBull
	}
	return models.Signal{
		Strategy:  s.Name(),
		Direction: dir,
		Trend:     trend,
		Score:     s.cfg.Score,
		Description: fmt.Sprintf("momentum %s: rsi=%.2f vwap=%s",
			dir, rsi, decimal.NewFromFloat(vwap).StringFixed(models.PriceScale)),
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		CreatedAt:  last.EndTime,
		Instrument: inst,
	}
}
