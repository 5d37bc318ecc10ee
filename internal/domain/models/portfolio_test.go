package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCapitalUsesSignedLots(t *testing.T) {
	p := &PortfolioSnapshot{
		Cash: decimal.NewFromInt(100000),
		Positions: []Position{
			{InstrumentID: "short", Lots: -100, CurrentPrice: decimal.NewFromInt(100)},
		},
	}
	assert.Equal(t, "90000", p.Capital().String())

	p.Positions = append(p.Positions, Position{InstrumentID: "long", Lots: 50, CurrentPrice: decimal.NewFromInt(40)})
	assert.Equal(t, "92000", p.Capital().String())
}

func TestPositionLookupSkipsFlat(t *testing.T) {
	p := &PortfolioSnapshot{Positions: []Position{{InstrumentID: "a", Lots: 0}, {InstrumentID: "b", Lots: -2}}}
	assert.Nil(t, p.Position("a"))
	assert.Equal(t, Sell, p.Position("b").Direction())
	assert.Equal(t, int64(2), p.Position("b").AbsLots())
}
