package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// Paper is an in-memory sandbox broker. Market orders fill at the last price
// fed through SetPrice; stop orders trigger on later prices.
type Paper struct {
	mu          sync.Mutex
	currency    string
	cash        decimal.Decimal
	margin      decimal.Decimal
	instruments map[string]models.Instrument
	positions   map[string]*models.Position
	last        map[string]decimal.Decimal
	orders      map[string]*models.OrderResult
	stops       map[string]models.StopOrderRequest
	now         func() time.Time
	l           *logger.Logger
}

var _ domrepo.Broker = (*Paper)(nil)

// PaperOption configures Paper.
type PaperOption func(*Paper)

// WithPaperMargin sets the per-lot initial margin reported for futures.
func WithPaperMargin(perLot decimal.Decimal) PaperOption {
	return func(p *Paper) { p.margin = perLot }
}

func WithPaperLogger(l *logger.Logger) PaperOption {
	return func(p *Paper) {
		if l != nil {
			p.l = l
		}
	}
}

func NewPaper(cash decimal.Decimal, currency string, instruments []models.Instrument, opts ...PaperOption) *Paper {
	p := &Paper{
		currency:    currency,
		cash:        cash,
		instruments: make(map[string]models.Instrument, len(instruments)),
		positions:   make(map[string]*models.Position),
		last:        make(map[string]decimal.Decimal),
		orders:      make(map[string]*models.OrderResult),
		stops:       make(map[string]models.StopOrderRequest),
		now:         time.Now,
		l:           logger.Nop(),
	}
	for _, inst := range instruments {
		p.instruments[inst.ID] = inst
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetPrice records the latest price and fires any stop it crosses.
func (p *Paper) SetPrice(instrumentID string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[instrumentID] = price
	if pos := p.positions[instrumentID]; pos != nil {
		pos.CurrentPrice = price
	}

	ids := make([]string, 0, len(p.stops))
	for id, s := range p.stops {
		if s.InstrumentID == instrumentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := p.stops[id]
		hit := (s.Direction == models.Sell && price.LessThanOrEqual(s.StopPrice)) ||
			(s.Direction == models.Buy && price.GreaterThanOrEqual(s.StopPrice))
		if !hit {
			continue
		}
		delete(p.stops, id)
		res := p.fill(s.OrderID, instrumentID, s.Direction, s.Lots, price)
		p.l.Info("paper stop triggered",
			logger.String("instrument", instrumentID),
			logger.String("order_id", s.OrderID),
			logger.Decimal("price", price),
			logger.String("status", string(res.Status)),
		)
	}
}

func (p *Paper) HistoricCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	return nil, nil
}

func (p *Paper) Portfolio(context.Context) (*models.PortfolioSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := &models.PortfolioSnapshot{
		Cash:     p.cash,
		Balances: map[string]decimal.Decimal{p.currency: p.cash},
		TakenAt:  p.now(),
	}
	ids := make([]string, 0, len(p.positions))
	for id := range p.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap.Positions = append(snap.Positions, *p.positions[id])
	}
	return snap, nil
}

func (p *Paper) FuturesMargin(_ context.Context, instrumentID string) (models.Margin, error) {
	return models.Margin{InstrumentID: instrumentID, OnBuy: p.margin, OnSell: p.margin}, nil
}

func (p *Paper) PostMarketOrder(_ context.Context, req models.MarketOrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res, ok := p.orders[req.OrderID]; ok {
		cp := *res
		return &cp, nil
	}
	price, ok := p.last[req.InstrumentID]
	if !ok {
		return p.reject(req.OrderID, "no price for "+req.InstrumentID), nil
	}
	res := p.fill(req.OrderID, req.InstrumentID, req.Direction, req.Lots, price)
	cp := *res
	return &cp, nil
}

func (p *Paper) PostStopOrder(_ context.Context, req models.StopOrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res, ok := p.orders[req.OrderID]; ok {
		cp := *res
		return &cp, nil
	}
	if req.Lots <= 0 || !req.StopPrice.IsPositive() {
		return p.reject(req.OrderID, "invalid stop order"), nil
	}
	p.stops[req.OrderID] = req
	res := &models.OrderResult{
		OrderID:       req.OrderID,
		BrokerOrderID: uuid.NewString(),
		Status:        models.StatusNew,
		Price:         req.StopPrice,
	}
	p.orders[req.OrderID] = res
	cp := *res
	return &cp, nil
}

// PendingStops returns the number of untriggered stop orders.
func (p *Paper) PendingStops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stops)
}

func (p *Paper) reject(orderID, msg string) *models.OrderResult {
	res := &models.OrderResult{OrderID: orderID, Status: models.StatusRejected, Message: msg}
	p.orders[orderID] = res
	return res
}

// fill executes at price and updates cash and the position. Caller holds the lock.
func (p *Paper) fill(orderID, instrumentID string, dir models.Direction, lots int64, price decimal.Decimal) *models.OrderResult {
	if lots <= 0 || (dir != models.Buy && dir != models.Sell) {
		return p.reject(orderID, fmt.Sprintf("invalid order: %s %d", dir, lots))
	}
	inst := p.instruments[instrumentID]
	units := decimal.NewFromInt(lots * inst.Lot())
	signed := lots
	if dir == models.Sell {
		signed = -lots
	}

	cost := price.Mul(units)
	if dir == models.Buy {
		p.cash = p.cash.Sub(cost)
	} else {
		p.cash = p.cash.Add(cost)
	}

	pos := p.positions[instrumentID]
	if pos == nil {
		pos = &models.Position{InstrumentID: instrumentID, Ticker: inst.Name, Kind: inst.Kind, Currency: inst.Currency}
		p.positions[instrumentID] = pos
	}
	next := pos.Lots + signed
	switch {
	case next == 0:
		delete(p.positions, instrumentID)
	case pos.Lots == 0 || (pos.Lots > 0) != (next > 0):
		pos.AveragePrice = price
	case (pos.Lots > 0) == (signed > 0):
		// adding to the position: volume weighted average
		oldAbs := decimal.NewFromInt(pos.AbsLots())
		addAbs := decimal.NewFromInt(lots)
		pos.AveragePrice = pos.AveragePrice.Mul(oldAbs).Add(price.Mul(addAbs)).Div(oldAbs.Add(addAbs)).Round(models.PriceScale)
	}
	pos.Lots = next
	pos.CurrentPrice = price

	res := &models.OrderResult{
		OrderID:       orderID,
		BrokerOrderID: uuid.NewString(),
		Status:        models.StatusFill,
		FilledLots:    lots,
		Price:         price,
	}
	p.orders[orderID] = res
	return res
}
