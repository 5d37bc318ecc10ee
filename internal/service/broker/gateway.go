package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/internal/service/metrics"
	"github.com/trickingegg/golden-dragon/internal/service/ratelimit"
	pkghttp "github.com/trickingegg/golden-dragon/pkg/http"
	"github.com/trickingegg/golden-dragon/pkg/logger"
	"github.com/trickingegg/golden-dragon/pkg/util"
)

const (
	callCandles   = "candles"
	callPortfolio = "portfolio"
	callMargin    = "margin"
	callOrder     = "order"
	callStopOrder = "stop_order"
)

// Gateway is a JSON REST client for the broker gateway. Every call is rate
// limited per call type and counted in the broker gateway metrics.
type Gateway struct {
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	account string
	l       *logger.Logger
}

var _ domrepo.Broker = (*Gateway)(nil)

// GatewayOption configures Gateway.
type GatewayOption func(*Gateway)

func WithAccount(id string) GatewayOption { return func(g *Gateway) { g.account = id } }

func WithGatewayLogger(l *logger.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.l = l
		}
	}
}

func NewGateway(client *pkghttp.Client, limiter *ratelimit.Limiter, opts ...GatewayOption) *Gateway {
	metrics.Register()
	g := &Gateway{client: client, limiter: limiter, l: logger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// call runs one gateway request with throttling, metrics and error classification.
func (g *Gateway) call(ctx context.Context, name string, opts *pkghttp.RequestOptions, dest interface{}) error {
	if g.limiter != nil {
		waited, err := g.limiter.Wait(ctx, name)
		if waited {
			metrics.GatewayThrottled.WithLabelValues(name).Inc()
		}
		if err != nil {
			return fmt.Errorf("%s: %w: %w", name, models.ErrTransient, err)
		}
	}
	if g.account != "" {
		if opts.Headers == nil {
			opts.Headers = map[string]string{}
		}
		opts.Headers["X-Account-Id"] = g.account
	}

	start := time.Now()
	err := g.client.SendAndParse(ctx, opts, dest)
	metrics.GatewayRequests.WithLabelValues(name).Inc()
	metrics.GatewayLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	metrics.GatewayErrors.WithLabelValues(name).Inc()

	var se *pkghttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			g.l.Error("Broker rejected credentials", logger.String("call", name), logger.Int("status", se.StatusCode))
			return fmt.Errorf("%s: %w: %w", name, models.ErrFatal, err)
		case !se.Retryable():
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", name, models.ErrTransient, err)
}

type wireCandle struct {
	EndTime string          `json:"end_time"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	Volume  decimal.Decimal `json:"volume"`
}

func (g *Gateway) HistoricCandles(ctx context.Context, instrumentID string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	var resp struct {
		Candles []wireCandle `json:"candles"`
	}
	err := g.call(ctx, callCandles, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    "candles",
		QueryParams: map[string][]string{
			"instrument_id": {instrumentID},
			"from":          {from.UTC().Format(time.RFC3339)},
			"to":            {to.UTC().Format(time.RFC3339)},
			"interval":      {string(tf)},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(resp.Candles))
	for _, wc := range resp.Candles {
		end, ok := util.ParseTime(wc.EndTime)
		if !ok {
			g.l.Warn("gateway candle with bad end_time",
				logger.String("instrument", instrumentID),
				logger.String("end_time", wc.EndTime),
			)
			continue
		}
		out = append(out, models.Candle{
			InstrumentID: instrumentID,
			EndTime:      end,
			Duration:     tf.Duration(),
			Open:         wc.Open,
			High:         wc.High,
			Low:          wc.Low,
			Close:        wc.Close,
			Volume:       wc.Volume,
		})
	}
	return out, nil
}

func (g *Gateway) Portfolio(ctx context.Context) (*models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot
	if err := g.call(ctx, callPortfolio, &pkghttp.RequestOptions{Method: pkghttp.MethodGet, URL: "portfolio"}, &snap); err != nil {
		return nil, err
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	return &snap, nil
}

func (g *Gateway) FuturesMargin(ctx context.Context, instrumentID string) (models.Margin, error) {
	var m models.Margin
	err := g.call(ctx, callMargin, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    "margin/" + url.PathEscape(instrumentID),
	}, &m)
	if err != nil {
		return models.Margin{}, err
	}
	m.InstrumentID = instrumentID
	return m, nil
}

func (g *Gateway) PostMarketOrder(ctx context.Context, req models.MarketOrderRequest) (*models.OrderResult, error) {
	var res models.OrderResult
	err := g.call(ctx, callOrder, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     "orders",
		Headers: map[string]string{"Idempotency-Key": req.OrderID},
		Body:    req,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.OrderID == "" {
		res.OrderID = req.OrderID
	}
	return &res, nil
}

func (g *Gateway) PostStopOrder(ctx context.Context, req models.StopOrderRequest) (*models.OrderResult, error) {
	var res models.OrderResult
	err := g.call(ctx, callStopOrder, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     "stop-orders",
		Headers: map[string]string{"Idempotency-Key": req.OrderID},
		Body:    req,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.OrderID == "" {
		res.OrderID = req.OrderID
	}
	return &res, nil
}
