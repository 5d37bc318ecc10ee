package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

var (
	testInst = models.Instrument{ID: "BBG000B9XRY4", Name: "AAPL", Kind: models.KindStock, Currency: "usd"}
	t0       = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

type barSpec struct {
	close, high, low, vol float64
}

func makeBars(specs []barSpec) []models.Bar {
	bars := make([]models.Bar, len(specs))
	for i, s := range specs {
		bars[i] = models.Bar{
			EndTime:  t0.Add(time.Duration(i+1) * time.Minute),
			Duration: time.Minute,
			Open:     decimal.NewFromFloat(s.close),
			High:     decimal.NewFromFloat(s.high),
			Low:      decimal.NewFromFloat(s.low),
			Close:    decimal.NewFromFloat(s.close),
			Volume:   decimal.NewFromFloat(s.vol),
		}
	}
	return bars
}

func flatBars(n int, price float64) []barSpec {
	out := make([]barSpec, n)
	for i := range out {
		out[i] = barSpec{close: price, high: price, low: price, vol: 1}
	}
	return out
}

func trendBars(n int, start, step float64) []barSpec {
	out := make([]barSpec, n)
	for i := range out {
		c := start + step*float64(i)
		out[i] = barSpec{close: c, high: c + 0.5, low: c - 0.5, vol: 1}
	}
	return out
}
