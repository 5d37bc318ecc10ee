package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

var hundred = decimal.NewFromInt(100)

func round(d decimal.Decimal) decimal.Decimal { return d.Round(models.PriceScale) }

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// percentLevels places stop and target at fixed percentages of the entry price.
func percentLevels(dir models.Direction, entry, stopPct, targetPct decimal.Decimal) (stop, target decimal.Decimal) {
	stopOff := entry.Mul(stopPct).Div(hundred)
	targetOff := entry.Mul(targetPct).Div(hundred)
	if dir == models.Buy {
		return round(entry.Sub(stopOff)), round(entry.Add(targetOff))
	}
	return round(entry.Add(stopOff)), round(entry.Sub(targetOff))
}

func lastBar(bars []models.Bar) models.Bar {
	return bars[len(bars)-1]
}

func lastEnd(bars []models.Bar) time.Time {
	if len(bars) == 0 {
		return time.Time{}
	}
	return bars[len(bars)-1].EndTime
}
