package repository

import (
	"context"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

// MarketStream delivers live candle and tick events.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// HistoryProvider loads historical candles from the broker.
type HistoryProvider interface {
	HistoricCandles(ctx context.Context, instrumentID string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
}

// PortfolioProvider reads the current account state.
type PortfolioProvider interface {
	Portfolio(ctx context.Context) (*models.PortfolioSnapshot, error)
}

// MarginProvider returns per-lot initial margin for futures.
type MarginProvider interface {
	FuturesMargin(ctx context.Context, instrumentID string) (models.Margin, error)
}

// OrderPlacer submits orders. Implementations must treat a repeated OrderID as the same order.
type OrderPlacer interface {
	PostMarketOrder(ctx context.Context, req models.MarketOrderRequest) (*models.OrderResult, error)
	PostStopOrder(ctx context.Context, req models.StopOrderRequest) (*models.OrderResult, error)
}

// Broker is the full trading gateway.
type Broker interface {
	HistoryProvider
	PortfolioProvider
	MarginProvider
	OrderPlacer
}

// Publisher emits order intents and signal lifecycle events to downstream consumers.
type Publisher interface {
	PublishOrderIntent(ctx context.Context, intent *models.OrderIntent) error
	PublishSignalEvent(ctx context.Context, ev *models.SignalEvent) error
	Close() error
}

// CandleStore persists bars for warm-up and inspection.
type CandleStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, candles []models.Candle) error
	Candles(ctx context.Context, instrumentID string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	LatestN(ctx context.Context, instrumentID string, n int, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordCandle(instrumentID, outcome string)
	RecordSignal(strategy, stage string)
	RecordRejection(code string)
	RecordOutcome(strategy, outcome string)
	SetActiveSignals(n int)
	RecordError(kind string)
	RecordLastPrice(instrumentID string, price float64)
	RecordLatency(op string, seconds float64)
}
