package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

func TestDecodeFrame(t *testing.T) {
	evs := decodeFrame([]byte(`{"type":"candle","data":[{"i":"FIGI1","t":60000,"d":60,"o":"1.5","h":2,"l":1,"c":1.75,"v":10}]}`))
	require.Len(t, evs, 1)
	c := evs[0].Candle
	require.NotNil(t, c)
	assert.Equal(t, "FIGI1", c.InstrumentID)
	assert.Equal(t, time.UnixMilli(60000).UTC(), c.EndTime)
	assert.Equal(t, time.Minute, c.Duration)
	assert.Equal(t, "1.75", c.Close.String())
	assert.Equal(t, "FIGI1", evs[0].InstrumentID())

	evs = decodeFrame([]byte(`{"type":"trade","data":[{"s":"FIGI2","p":101.25,"v":3,"t":1000}]}`))
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].Tick)
	assert.Equal(t, "101.25", evs[0].Price().String())

	assert.Empty(t, decodeFrame([]byte(`{"type":"ping"}`)))
	assert.Empty(t, decodeFrame([]byte(`not json`)))
}

func TestClientSubscribesAndStreams(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Instrument + "@" + sub.Interval
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"candle","data":[{"i":"FIGI1","t":120000,"d":60,"o":1,"h":1,"l":1,"c":1,"v":1}]}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(url, []string{"FIGI1"}, WithToken("secret"), WithPingInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "FIGI1@1m", <-subscribed)

	events, errs := c.Read(ctx)
	select {
	case ev := <-events:
		require.NotNil(t, ev.Candle)
		assert.Equal(t, "FIGI1", ev.Candle.InstrumentID)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for candle")
	}

	err := <-errs
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransient)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1", []string{"X"})
	err := c.Subscribe(context.Background())
	assert.ErrorIs(t, err, models.ErrTransient)
}

func pingDone(c *Client) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingDone
}

func TestPingLoopLivesWithItsConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"FIGI1"}, WithPingInterval(5*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	first := pingDone(c)
	require.NotNil(t, first)

	_, errs := c.Read(ctx)
	assert.Equal(t, first, pingDone(c), "reading must not start another ping loop")

	require.NoError(t, c.Connect(ctx))
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("ping loop of the replaced connection still running")
	}
	assert.ErrorIs(t, <-errs, models.ErrTransient, "the reader of the replaced connection ends")
	second := pingDone(c)
	require.NotNil(t, second)

	require.NoError(t, c.Close())
	select {
	case <-second:
	default:
		t.Fatal("Close returned before the ping loop stopped")
	}
	assert.Nil(t, pingDone(c))
}
