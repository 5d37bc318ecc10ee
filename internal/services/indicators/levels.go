package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

// CloseValues returns the exact close prices.
func CloseValues(bars []models.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// smooth applies recursive smoothing seeded with the first value:
// out[i] = out[i-1] + (v[i] - out[i-1]) * num / den.
func smooth(values []decimal.Decimal, num, den int64) []decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	n, d := decimal.NewFromInt(num), decimal.NewFromInt(den)
	out := make([]decimal.Decimal, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1].Add(values[i].Sub(out[i-1]).Mul(n).Div(d))
	}
	return out
}

// EMA is the exponential moving average with multiplier 2/(n+1).
func EMA(values []decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	return smooth(values, 2, int64(n)+1)
}

// MMA is Wilder's modified moving average with multiplier 1/n.
func MMA(values []decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	return smooth(values, 1, int64(n))
}

// TrueRange returns max(high-low, |high-prevClose|, |prevClose-low|). The first bar uses high-low.
func TrueRange(bars []models.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		tr := b.High.Sub(b.Low).Abs()
		if i > 0 {
			prev := bars[i-1].Close
			tr = decimal.Max(tr, b.High.Sub(prev).Abs(), prev.Sub(b.Low).Abs())
		}
		out[i] = tr
	}
	return out
}

// ATR is the Wilder-smoothed true range.
func ATR(bars []models.Bar, n int) []decimal.Decimal {
	return MMA(TrueRange(bars), n)
}

// Bands are Bollinger-style envelopes around an EMA midline. The midline is a
// price level; the envelopes only gate entries.
type Bands struct {
	Upper  float64
	Middle decimal.Decimal
	Lower  float64
}

// BollingerLast returns the bands at the last bar: EMA(n) midline, k population
// deviations wide. Fewer than n bars yield models.ErrInsufficientData.
func BollingerLast(bars []models.Bar, n int, k float64) (Bands, error) {
	if n < 2 || len(bars) < n {
		return Bands{}, fmt.Errorf("bands over %d bars with %d: %w", n, len(bars), models.ErrInsufficientData)
	}
	mid := Last(EMA(CloseValues(bars), n))
	sd := Last(StdDev(Closes(bars), n))
	midF := mid.InexactFloat64()
	return Bands{Upper: midF + k*sd, Middle: mid, Lower: midF - k*sd}, nil
}
