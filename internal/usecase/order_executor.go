package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/pkg/cache"
	"github.com/trickingegg/golden-dragon/pkg/logger"
	"github.com/trickingegg/golden-dragon/pkg/queue"
)

// JobPlaceOrder is the queue message type of order intents.
const JobPlaceOrder = "order.place"

const orderLockTTL = time.Minute

// ErrOrderInFlight means another worker holds the lock of the same order id.
var ErrOrderInFlight = errors.New("order already in flight")

// OrderExecutor turns accepted signals into order intents and hands them to the queue.
type OrderExecutor struct {
	publisher drepo.Publisher
	queue     queue.Enqueuer
	lgr       *logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewOrderExecutor creates an executor. publisher may be nil.
func NewOrderExecutor(publisher drepo.Publisher, q queue.Enqueuer, l *logger.Logger) *OrderExecutor {
	if l == nil {
		l = logger.Nop()
	}
	return &OrderExecutor{
		publisher: publisher,
		queue:     q,
		lgr:       l,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Submit publishes the intent and enqueues its execution. A publish failure is logged
// and does not block execution.
func (e *OrderExecutor) Submit(ctx context.Context, sig models.Signal, res models.ValidationResult) (*models.OrderIntent, error) {
	intent := &models.OrderIntent{
		OrderID:      e.newID(),
		InstrumentID: sig.Instrument.ID,
		Kind:         sig.Instrument.Kind,
		Direction:    sig.Direction,
		Lots:         res.Lots,
		CloseLots:    res.CloseLots,
		StopPrice:    sig.StopLoss,
		SignalID:     sig.ID,
		Strategy:     sig.Strategy,
		CreatedAt:    e.now(),
	}

	if e.publisher != nil {
		if err := e.publisher.PublishOrderIntent(ctx, intent); err != nil {
			e.lgr.Warn("Failed to publish order intent",
				logger.String("order_id", intent.OrderID),
				logger.Int64("signal_id", sig.ID),
				logger.Error(err))
		}
	}

	if err := e.queue.Enqueue(ctx, JobPlaceOrder, intent); err != nil {
		return intent, fmt.Errorf("enqueue order %s: %w", intent.OrderID, err)
	}
	e.lgr.Info("Order queued",
		logger.String("order_id", intent.OrderID),
		logger.Int64("signal_id", sig.ID),
		logger.String("instrument", intent.InstrumentID),
		logger.String("direction", string(intent.Direction)),
		logger.Int64("lots", intent.Lots))
	return intent, nil
}

// PlaceOrderJob executes queued order intents: a market order, then a protective stop.
type PlaceOrderJob struct {
	placer drepo.OrderPlacer
	locks  cache.Service
	lgr    *logger.Logger
}

var _ queue.Job = (*PlaceOrderJob)(nil)

// NewPlaceOrderJob creates the job. locks may be nil, in which case concurrent
// deliveries of the same intent rely on broker idempotency alone.
func NewPlaceOrderJob(placer drepo.OrderPlacer, locks cache.Service, l *logger.Logger) *PlaceOrderJob {
	if l == nil {
		l = logger.Nop()
	}
	return &PlaceOrderJob{placer: placer, locks: locks, lgr: l}
}

func (j *PlaceOrderJob) Name() string { return "place-order" }

func (j *PlaceOrderJob) Type() string { return JobPlaceOrder }

func (j *PlaceOrderJob) Handle(ctx context.Context, payload interface{}) error {
	intent, err := queue.ParsePayload[models.OrderIntent](payload)
	if err != nil {
		return err
	}
	return j.Execute(ctx, intent)
}

// Execute places the market order and, on a full fill, a stop for the new exposure.
// Safe to retry: both requests carry ids derived from the intent.
func (j *PlaceOrderJob) Execute(ctx context.Context, intent *models.OrderIntent) error {
	if intent.Lots <= 0 {
		return nil
	}
	if j.locks != nil {
		key := cache.GenerateKey("order", intent.OrderID)
		ok, err := j.locks.TryLock(ctx, key, orderLockTTL)
		if err != nil {
			return fmt.Errorf("lock order %s: %w", intent.OrderID, err)
		}
		if !ok {
			return ErrOrderInFlight
		}
		defer func() { _ = j.locks.Unlock(context.WithoutCancel(ctx), key) }()
	}

	lgr := j.lgr.With(
		logger.String("order_id", intent.OrderID),
		logger.Int64("signal_id", intent.SignalID),
		logger.String("instrument", intent.InstrumentID))

	res, err := j.placer.PostMarketOrder(ctx, models.MarketOrderRequest{
		OrderID:      intent.OrderID,
		InstrumentID: intent.InstrumentID,
		Direction:    intent.Direction,
		Lots:         intent.Lots,
	})
	if err != nil {
		return fmt.Errorf("market order %s: %w", intent.OrderID, err)
	}
	if res.Status != models.StatusFill {
		lgr.Warn("Market order not filled, no protective stop placed",
			logger.String("status", string(res.Status)),
			logger.Int64("filled_lots", res.FilledLots),
			logger.String("message", res.Message))
		return nil
	}
	lgr.Info("Market order filled",
		logger.Int64("filled_lots", res.FilledLots),
		logger.String("price", res.Price.StringFixed(models.PriceScale)))

	stopLots := res.FilledLots - intent.CloseLots
	if stopLots <= 0 {
		lgr.Info("Close-only order, no protective stop needed")
		return nil
	}
	if !intent.StopPrice.IsPositive() {
		lgr.Warn("Intent carries no stop price, no protective stop placed")
		return nil
	}

	stop, err := j.placer.PostStopOrder(ctx, models.StopOrderRequest{
		OrderID:      intent.OrderID + "-stop",
		InstrumentID: intent.InstrumentID,
		Direction:    intent.Direction.Opposite(),
		Lots:         stopLots,
		StopPrice:    intent.StopPrice,
	})
	if err != nil {
		return fmt.Errorf("stop order %s: %w", intent.OrderID, err)
	}
	lgr.Info("Protective stop placed",
		logger.String("status", string(stop.Status)),
		logger.Int64("lots", stopLots),
		logger.String("stop_price", intent.StopPrice.StringFixed(models.PriceScale)))
	return nil
}
