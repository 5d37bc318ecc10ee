package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	applogger "github.com/trickingegg/golden-dragon/pkg/logger"
)

// StoreFirstHistory serves history from the candle store and falls back to the
// broker when the store holds no more than minBars candles. Broker results are
// written back to the store.
type StoreFirstHistory struct {
	store   domrepo.CandleStore
	broker  domrepo.HistoryProvider
	minBars int
	l       *applogger.Logger
}

var _ domrepo.HistoryProvider = (*StoreFirstHistory)(nil)

// NewStoreFirstHistory builds the provider. store may be nil.
func NewStoreFirstHistory(store domrepo.CandleStore, broker domrepo.HistoryProvider, minBars int, l *applogger.Logger) *StoreFirstHistory {
	if l == nil {
		l = applogger.Nop()
	}
	return &StoreFirstHistory{store: store, broker: broker, minBars: minBars, l: l}
}

func (h *StoreFirstHistory) HistoricCandles(ctx context.Context, instrumentID string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	if h.store != nil {
		stored, err := h.store.Candles(ctx, instrumentID, from, to, tf)
		switch {
		case err != nil:
			h.l.Warn("history store read failed, using broker",
				applogger.String("instrument", instrumentID),
				applogger.Error(err),
			)
		case len(stored) > h.minBars:
			return stored, nil
		}
	}

	if h.broker == nil {
		return nil, fmt.Errorf("history for %s: no broker", instrumentID)
	}
	candles, err := h.broker.HistoricCandles(ctx, instrumentID, from, to, tf)
	if err != nil {
		return nil, fmt.Errorf("broker history %s: %w", instrumentID, err)
	}
	if h.store != nil && len(candles) > 0 {
		if err := h.store.StoreBatch(ctx, candles); err != nil {
			h.l.Warn("history persist failed",
				applogger.String("instrument", instrumentID),
				applogger.Int("candles", len(candles)),
				applogger.Error(err),
			)
		}
	}
	return candles, nil
}
