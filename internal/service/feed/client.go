package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// Client implements a MarketStream over a JSON WebSocket feed that pushes
// candle and trade frames per subscribed instrument.
type Client struct {
	token          string
	websocketURL   string
	instruments    []string
	interval       drepo.Timeframe
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	lgr            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	stopPing  context.CancelFunc
	pingDone  chan struct{}
}

var _ drepo.MarketStream = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on connect.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithInterval sets the candle interval requested on subscribe.
func WithInterval(tf drepo.Timeframe) Option { return func(c *Client) { c.interval = tf } }

// WithReconnectDelay sets the pause before reconnecting.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithPingInterval sets the keep-alive ping period.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(c *Client) { c.lgr = l } }

// New creates a feed stream for the given instruments.
func New(websocketURL string, instruments []string, opts ...Option) *Client {
	c := &Client{
		websocketURL:   websocketURL,
		instruments:    instruments,
		interval:       drepo.TF1m,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		dialer:         websocket.DefaultDialer,
		lgr:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the WebSocket connection and starts its keep-alive pings.
// A previous connection is closed first.
func (c *Client) Connect(ctx context.Context) error {
	_ = c.Close()
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.websocketURL, header)
	if err != nil {
		return fmt.Errorf("feed connect: %w: %w", models.ErrTransient, err)
	}
	pingCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.stopPing, c.pingDone = stop, done
	c.mu.Unlock()
	go c.pingLoop(pingCtx, conn, done)
	c.lgr.Info("Feed connected", logger.String("url", c.websocketURL))
	return nil
}

type subscribeFrame struct {
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Interval   string `json:"interval"`
}

// Subscribe subscribes to configured instruments.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected: %w", models.ErrTransient)
	}
	for _, id := range c.instruments {
		frame := subscribeFrame{Type: "subscribe", Instrument: id, Interval: string(c.interval)}
		if err := c.conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
		c.lgr.Info("Feed subscribed", logger.String("instrument", id), logger.String("interval", string(c.interval)))
	}
	return nil
}

type candleFrame struct {
	I string          `json:"i"`
	T int64           `json:"t"` // end time, ms
	D int64           `json:"d"` // duration, s
	O decimal.Decimal `json:"o"`
	H decimal.Decimal `json:"h"`
	L decimal.Decimal `json:"l"`
	C decimal.Decimal `json:"c"`
	V decimal.Decimal `json:"v"`
}

type tradeFrame struct {
	S string          `json:"s"`
	P decimal.Decimal `json:"p"`
	V decimal.Decimal `json:"v"`
	T int64           `json:"t"` // ms
}

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Read streams market events and errors until the context ends or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.MarketEvent, <-chan error) {
	events := make(chan *models.MarketEvent, 1024)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			conn := c.currentConn()
			if conn == nil {
				errs <- fmt.Errorf("feed conn nil: %w", models.ErrTransient)
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w: %w", models.ErrTransient, err)
				return
			}
			for _, ev := range decodeFrame(b) {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, errs
}

// decodeFrame turns one WebSocket frame into market events. Unknown frames yield nothing.
func decodeFrame(b []byte) []*models.MarketEvent {
	var m message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	switch m.Type {
	case "candle":
		var frames []candleFrame
		if err := json.Unmarshal(m.Data, &frames); err != nil {
			return nil
		}
		out := make([]*models.MarketEvent, 0, len(frames))
		for _, f := range frames {
			out = append(out, &models.MarketEvent{Candle: &models.Candle{
				InstrumentID: f.I,
				EndTime:      time.UnixMilli(f.T).UTC(),
				Duration:     time.Duration(f.D) * time.Second,
				Open:         f.O,
				High:         f.H,
				Low:          f.L,
				Close:        f.C,
				Volume:       f.V,
			}})
		}
		return out
	case "trade":
		var frames []tradeFrame
		if err := json.Unmarshal(m.Data, &frames); err != nil {
			return nil
		}
		out := make([]*models.MarketEvent, 0, len(frames))
		for _, f := range frames {
			out = append(out, &models.MarketEvent{Tick: &models.Tick{
				InstrumentID: f.S,
				Time:         time.UnixMilli(f.T).UTC(),
				Price:        f.P,
				Volume:       f.V,
			}})
		}
		return out
	default:
		return nil
	}
}

// pingLoop pings conn until ctx ends. Writes share c.mu with Subscribe.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn == conn {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.lgr.Warn("Feed ping failed", logger.Error(err))
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Reconnect closes, waits the reconnect delay and subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close stops the ping loop and closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, stop, done := c.conn, c.stopPing, c.pingDone
	c.conn, c.stopPing, c.pingDone = nil, nil, nil
	c.connected = false
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
