package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one fixed-duration OHLCV period. EndTime is the period key.
type Bar struct {
	EndTime  time.Time
	Duration time.Duration
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// StartTime returns the inclusive start of the bar period.
func (b Bar) StartTime() time.Time { return b.EndTime.Add(-b.Duration) }

// Candle is a bar event delivered by a feed or a history source.
type Candle struct {
	InstrumentID string          `json:"instrument_id"`
	EndTime      time.Time       `json:"end_time"`
	Duration     time.Duration   `json:"duration"`
	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Volume       decimal.Decimal `json:"volume"`
}

// Bar converts the event into a series bar. A zero duration falls back to def.
func (c *Candle) Bar(def time.Duration) Bar {
	d := c.Duration
	if d <= 0 {
		d = def
	}
	return Bar{
		EndTime:  c.EndTime,
		Duration: d,
		Open:     c.Open,
		High:     c.High,
		Low:      c.Low,
		Close:    c.Close,
		Volume:   c.Volume,
	}
}

// Tick is a single last-trade event.
type Tick struct {
	InstrumentID string          `json:"instrument_id"`
	Time         time.Time       `json:"time"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
}

// MarketEvent carries either a candle or a tick from a live feed.
type MarketEvent struct {
	Candle *Candle `json:"candle,omitempty"`
	Tick   *Tick   `json:"tick,omitempty"`
}

// InstrumentID returns the instrument the event refers to.
func (e *MarketEvent) InstrumentID() string {
	switch {
	case e == nil:
		return ""
	case e.Candle != nil:
		return e.Candle.InstrumentID
	case e.Tick != nil:
		return e.Tick.InstrumentID
	default:
		return ""
	}
}

// Time returns the event timestamp: the candle end or the tick time.
func (e *MarketEvent) Time() time.Time {
	switch {
	case e == nil:
		return time.Time{}
	case e.Candle != nil:
		return e.Candle.EndTime
	case e.Tick != nil:
		return e.Tick.Time
	default:
		return time.Time{}
	}
}

// Price returns the candle close or the tick price.
func (e *MarketEvent) Price() decimal.Decimal {
	switch {
	case e == nil:
		return decimal.Zero
	case e.Candle != nil:
		return e.Candle.Close
	case e.Tick != nil:
		return e.Tick.Price
	default:
		return decimal.Zero
	}
}
