package models

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept on signal price levels.
const PriceScale = 4

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// Opposite returns the closing direction. HOLD has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return Hold
	}
}

type Trend string

const (
	TrendBull     Trend = "BULL"
	TrendBear     Trend = "BEAR"
	TrendSideways Trend = "SIDEWAYS"
)

// Signal is a candidate or accepted trade decision produced by a strategy evaluator.
// ID is zero until the signal is accepted.
type Signal struct {
	ID          int64           `json:"id"`
	Strategy    string          `json:"strategy"`
	Direction   Direction       `json:"direction"`
	Trend       Trend           `json:"trend"`
	Score       int             `json:"score"`
	Description string          `json:"description"`
	Entry       decimal.Decimal `json:"entry"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	TakeProfit  decimal.Decimal `json:"take_profit"`
	CreatedAt   time.Time       `json:"created_at"`
	Instrument  Instrument      `json:"instrument"`
}

// IsActionable reports whether the signal asks for a trade.
func (s Signal) IsActionable() bool { return s.Direction == Buy || s.Direction == Sell }

// HasLevels reports whether entry and stop are set and positive.
func (s Signal) HasLevels() bool { return s.Entry.IsPositive() && s.StopLoss.IsPositive() }

// StopDistance is |entry - stop|.
func (s Signal) StopDistance() decimal.Decimal { return s.Entry.Sub(s.StopLoss).Abs() }

// RewardDistance is |take profit - entry|, zero when no target is set.
func (s Signal) RewardDistance() decimal.Decimal {
	if s.TakeProfit.IsZero() {
		return decimal.Zero
	}
	return s.TakeProfit.Sub(s.Entry).Abs()
}

func (s Signal) String() string {
	return fmt.Sprintf("#%d %s %s %s entry=%s sl=%s tp=%s score=%d",
		s.ID, s.Strategy, s.Instrument.ID, s.Direction,
		s.Entry.StringFixed(PriceScale), s.StopLoss.StringFixed(PriceScale),
		s.TakeProfit.StringFixed(PriceScale), s.Score)
}

// HoldSignal returns a non-actionable signal carrying the evaluator's trend view.
func HoldSignal(strategy string, inst Instrument, trend Trend, at time.Time) Signal {
	if trend == "" {
		trend = TrendSideways
	}
	return Signal{
		Strategy:   strategy,
		Direction:  Hold,
		Trend:      trend,
		CreatedAt:  at,
		Instrument: inst,
	}
}

// IDSequence hands out unique, monotonically increasing signal ids.
type IDSequence struct {
	last atomic.Int64
}

// Next returns the next id, starting at 1.
func (s *IDSequence) Next() int64 { return s.last.Add(1) }
