package indicators

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

func decs(vs ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func bar(i int, high, low, close float64) models.Bar {
	return models.Bar{
		EndTime:  time.Unix(int64(60*(i+1)), 0),
		Duration: time.Minute,
		Open:     decimal.NewFromFloat(close),
		High:     decimal.NewFromFloat(high),
		Low:      decimal.NewFromFloat(low),
		Close:    decimal.NewFromFloat(close),
		Volume:   decimal.NewFromInt(1),
	}
}

func flat(n int, price float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = bar(i, price, price, price)
	}
	return out
}

func TestEMASeedsWithFirstValue(t *testing.T) {
	out := EMA(decs(10, 12, 14), 3)
	require.Len(t, out, 3)
	assert.Equal(t, "10", out[0].String())
	// k = 0.5
	assert.Equal(t, "11", out[1].String())
	assert.Equal(t, "12.5", out[2].String())
}

func TestEMAIsExactForTwentyOnePeriods(t *testing.T) {
	closes := append(decs(100, 100, 100), decimal.NewFromInt(90))
	mid := Last(EMA(closes, 20))
	// 100 - 10 * 2/21
	assert.Equal(t, "99.0476190476190476", mid.StringFixed(16))
}

func TestMMA(t *testing.T) {
	out := MMA(decs(4, 8), 4)
	assert.Equal(t, "5", out[1].String())
	assert.Nil(t, MMA(decs(1), 0))
}

func TestTrueRangeAndATR(t *testing.T) {
	bars := []models.Bar{bar(0, 10, 8, 9), bar(1, 12, 11, 11.5)}
	tr := TrueRange(bars)
	assert.Equal(t, "2", tr[0].String())
	assert.Equal(t, "3", tr[1].String())
	assert.Equal(t, "2.5", Last(ATR(bars, 2)).String())
}

func TestRSIBoundaries(t *testing.T) {
	flatRSI := RSI([]float64{5, 5, 5, 5}, 3)
	assert.Equal(t, 0.0, Last(flatRSI))

	rising := RSI([]float64{1, 2, 3, 4, 5}, 3)
	assert.InDelta(t, 100.0, Last(rising), 1e-9)

	falling := RSI([]float64{5, 4, 3, 2, 1}, 3)
	assert.InDelta(t, 0.0, Last(falling), 1e-9)
}

func TestRSISeedsWithAverageOfFirstWindow(t *testing.T) {
	out := RSI([]float64{10, 11, 10}, 2)
	require.Len(t, out, 3)
	// one gain and one loss of 1 in the first window
	assert.InDelta(t, 50.0, out[2], 1e-9)
}

func TestRSINeedsMoreThanPeriodCloses(t *testing.T) {
	assert.Nil(t, RSI([]float64{1, 2, 3}, 3))
	assert.Nil(t, RSI([]float64{1, 2, 3, 4}, 1))
	assert.Equal(t, 0.0, Last(RSI(nil, 14)))
}

func TestVWAPWindow(t *testing.T) {
	s := OHLCV{
		High:   []float64{3, 6, 9},
		Low:    []float64{3, 6, 9},
		Close:  []float64{3, 6, 9},
		Volume: []float64{1, 1, 2},
	}
	out := VWAP(s, 2)
	assert.InDelta(t, 3.0, out[0], 1e-9)
	assert.InDelta(t, (6.0+18.0)/3.0, out[2], 1e-9)

	zero := VWAP(OHLCV{High: []float64{2}, Low: []float64{1}, Close: []float64{1.5}, Volume: []float64{0}}, 3)
	assert.Equal(t, 1.5, zero[0])
}

func TestStdDevPopulation(t *testing.T) {
	out := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	assert.InDelta(t, 2.0, Last(out), 1e-9)
	assert.Nil(t, StdDev([]float64{1, 2}, 3))
}

func TestADXTrendingSeriesIsStrong(t *testing.T) {
	n := 60
	bars := make([]models.Bar, n)
	for i := range bars {
		base := 100 + float64(i)
		bars[i] = bar(i, base+1, base-1, base+0.5)
	}
	adx := ADX(Split(bars), 14)
	require.Len(t, adx, n)
	assert.Greater(t, Last(adx), 25.0)
}

func TestADXNeedsTwoPeriodsOfBars(t *testing.T) {
	assert.Nil(t, ADX(Split(flat(27, 100)), 14))
	assert.NotNil(t, ADX(Split(flat(28, 100)), 14))
	assert.Equal(t, 0.0, Last(ADX(Split(flat(40, 100)), 14)))
}

func TestBollingerLast(t *testing.T) {
	b, err := BollingerLast(flat(4, 5), 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "5", b.Middle.String())
	assert.Equal(t, 5.0, b.Upper)
	assert.Equal(t, 5.0, b.Lower)
}

func TestBollingerLastWithTooFewBars(t *testing.T) {
	_, err := BollingerLast(flat(2, 5), 3, 2)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestSplitAndCloses(t *testing.T) {
	bars := []models.Bar{bar(0, 2.5, 1, 2)}
	bars[0].Volume = decimal.NewFromInt(7)
	s := Split(bars)
	assert.Equal(t, []float64{2.5}, s.High)
	assert.Equal(t, []float64{7}, s.Volume)
	assert.Equal(t, []float64{2}, Closes(bars))
	assert.Equal(t, 0.0, Prev(Closes(bars)))
	assert.True(t, Prev(CloseValues(bars)).IsZero())
}
