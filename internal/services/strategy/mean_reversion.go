package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/service"
	"github.com/trickingegg/golden-dragon/internal/services/indicators"
)

const (
	NameMeanReversionConservative = "MEAN_REVERSION_CONSERVATIVE"
	NameMeanReversionAggressive   = "MEAN_REVERSION_AGGRESSIVE"
)

// MeanReversionConfig holds band reversion parameters.
type MeanReversionConfig struct {
	BandPeriod     int     `yaml:"band_period" validate:"gte=2"`
	BandMultiplier float64 `yaml:"band_multiplier" validate:"gt=0"`
	RSIPeriod      int     `yaml:"rsi_period" validate:"gte=2"`
	RSILower       float64 `yaml:"rsi_lower" validate:"gte=0,lte=100"`
	RSIUpper       float64 `yaml:"rsi_upper" validate:"gtefield=RSILower,lte=100"`
	StopFraction   float64 `yaml:"stop_fraction" validate:"gt=0"`
	Score          int     `yaml:"score" validate:"gte=0,lte=100"`
}

// ConservativeMeanReversion: 20-bar bands at 2.0 deviations, RSI(14) 30/70.
func ConservativeMeanReversion() MeanReversionConfig {
	return MeanReversionConfig{
		BandPeriod:     20,
		BandMultiplier: 2.0,
		RSIPeriod:      14,
		RSILower:       30,
		RSIUpper:       70,
		StopFraction:   0.5,
		Score:          85,
	}
}

// AggressiveMeanReversion: 15-bar bands at 1.8 deviations, RSI(10) 35/65.
func AggressiveMeanReversion() MeanReversionConfig {
	return MeanReversionConfig{
		BandPeriod:     15,
		BandMultiplier: 1.8,
		RSIPeriod:      10,
		RSILower:       35,
		RSIUpper:       65,
		StopFraction:   0.5,
		Score:          85,
	}
}

// MeanReversion fades closes outside the bands when RSI confirms exhaustion
// and targets the midline.
type MeanReversion struct {
	name string
	cfg  MeanReversionConfig
}

var _ service.Evaluator = (*MeanReversion)(nil)

func NewMeanReversion(name string, cfg MeanReversionConfig) *MeanReversion {
	return &MeanReversion{name: name, cfg: cfg}
}

func (m *MeanReversion) Name() string { return m.name }

func (m *MeanReversion) WarmupPeriod() int { return m.cfg.BandPeriod + 2 }

func (m *MeanReversion) Evaluate(inst models.Instrument, bars []models.Bar) models.Signal {
	if len(bars) <= m.WarmupPeriod() {
		return models.HoldSignal(m.Name(), inst, models.TrendSideways, lastEnd(bars))
	}
	last := lastBar(bars)
	bands, err := indicators.BollingerLast(bars, m.cfg.BandPeriod, m.cfg.BandMultiplier)
	if err != nil {
		return models.HoldSignal(m.Name(), inst, models.TrendSideways, last.EndTime)
	}
	rsiVals := indicators.RSI(indicators.Closes(bars), m.cfg.RSIPeriod)
	if rsiVals == nil {
		return models.HoldSignal(m.Name(), inst, models.TrendSideways, last.EndTime)
	}
	rsi := indicators.Last(rsiVals)
	closeF := last.Close.InexactFloat64()

	var dir models.Direction
	switch {
	case closeF < bands.Lower && rsi < m.cfg.RSILower:
		dir = models.Buy
	case closeF > bands.Upper && rsi > m.cfg.RSIUpper:
		dir = models.Sell
	default:
		return models.HoldSignal(m.Name(), inst, models.TrendSideways, last.EndTime)
	}

	entry := last.Close
	mid := round(bands.Middle)
	stopOff := entry.Sub(mid).Abs().Mul(dec(m.cfg.StopFraction))
	var stop decimal.Decimal
	if dir == models.Buy {
		stop = round(entry.Sub(stopOff))
	} else {
		stop = round(entry.Add(stopOff))
	}
	return models.Signal{
		Strategy:  m.Name(),
		Direction: dir,
		Trend:     models.TrendSideways,
		Score:     m.cfg.Score,
		Description: fmt.Sprintf("band reversion %s: rsi=%.2f lower=%.4f mid=%s upper=%.4f",
			dir, rsi, bands.Lower, mid.StringFixed(models.PriceScale), bands.Upper),
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: mid,
		CreatedAt:  last.EndTime,
		Instrument: inst,
	}
}
