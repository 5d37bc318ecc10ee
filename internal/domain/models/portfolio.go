package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a held quantity in lots. Negative lots mean a short position.
type Position struct {
	InstrumentID string          `json:"instrument_id"`
	Ticker       string          `json:"ticker,omitempty"`
	Kind         InstrumentKind  `json:"kind,omitempty"`
	Lots         int64           `json:"lots"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Currency     string          `json:"currency,omitempty"`
}

// Direction returns BUY for a long position, SELL for a short one and HOLD when flat.
func (p *Position) Direction() Direction {
	switch {
	case p == nil || p.Lots == 0:
		return Hold
	case p.Lots > 0:
		return Buy
	default:
		return Sell
	}
}

// AbsLots returns the absolute number of lots held.
func (p *Position) AbsLots() int64 {
	if p == nil {
		return 0
	}
	if p.Lots < 0 {
		return -p.Lots
	}
	return p.Lots
}

// ProfitPercent is the unrealized P/L relative to the average price.
func (p *Position) ProfitPercent() decimal.Decimal {
	if p == nil || p.AveragePrice.IsZero() {
		return decimal.Zero
	}
	pct := p.CurrentPrice.Sub(p.AveragePrice).Div(p.AveragePrice).Mul(decimal.NewFromInt(100))
	if p.Lots < 0 {
		pct = pct.Neg()
	}
	return pct.Round(2)
}

// PortfolioSnapshot is the account state read from the broker.
type PortfolioSnapshot struct {
	Positions []Position                 `json:"positions"`
	Cash      decimal.Decimal            `json:"cash"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	TakenAt   time.Time                  `json:"taken_at"`
}

// Capital is cash plus the signed market value of all positions, so a short
// position lowers it.
func (p *PortfolioSnapshot) Capital() decimal.Decimal {
	total := p.Cash
	for _, pos := range p.Positions {
		total = total.Add(pos.CurrentPrice.Mul(decimal.NewFromInt(pos.Lots)))
	}
	return total
}

// Position returns the position held in the given instrument, or nil.
func (p *PortfolioSnapshot) Position(instrumentID string) *Position {
	if p == nil {
		return nil
	}
	for i := range p.Positions {
		if p.Positions[i].InstrumentID == instrumentID && p.Positions[i].Lots != 0 {
			return &p.Positions[i]
		}
	}
	return nil
}

// Balance returns the free balance in the given currency, falling back to cash.
func (p *PortfolioSnapshot) Balance(currency string) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	if b, ok := p.Balances[currency]; ok {
		return b
	}
	return p.Cash
}

// Margin is the initial margin per lot required by the broker for a future.
type Margin struct {
	InstrumentID string          `json:"instrument_id"`
	OnBuy        decimal.Decimal `json:"initial_margin_on_buy"`
	OnSell       decimal.Decimal `json:"initial_margin_on_sell"`
}

// For returns the per-lot margin for the given direction.
func (m Margin) For(d Direction) decimal.Decimal {
	if d == Sell {
		return m.OnSell
	}
	return m.OnBuy
}
