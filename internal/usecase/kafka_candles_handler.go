package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	mid "github.com/trickingegg/golden-dragon/internal/middleware"
	pkgkafka "github.com/trickingegg/golden-dragon/pkg/kafka"
	"github.com/trickingegg/golden-dragon/pkg/util"
)

// KafkaCandlesHandler consumes candle and tick messages and routes them through the pipeline.
type KafkaCandlesHandler struct {
	topic   string
	pipe    mid.Proc
	metrics domrepo.Metrics
	barDur  time.Duration
}

func NewKafkaCandlesHandler(topic string, pipe mid.Proc, metrics domrepo.Metrics, barDur time.Duration) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, pipe: pipe, metrics: metrics, barDur: barDur}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// wireEvent accepts two shapes on the candles topic:
// candles {instrument_id, t, o, h, l, c, v} and ticks {instrument_id, t, p, v, type:"tick"}.
// t is RFC3339 or unix seconds/milliseconds.
type wireEvent struct {
	Type         string          `json:"type"`
	InstrumentID string          `json:"instrument_id"`
	T            json.RawMessage `json:"t"`
	DurationSec  int64           `json:"duration_sec"`
	O            decimal.Decimal `json:"o"`
	H            decimal.Decimal `json:"h"`
	L            decimal.Decimal `json:"l"`
	C            decimal.Decimal `json:"c"`
	P            decimal.Decimal `json:"p"`
	V            decimal.Decimal `json:"v"`
}

// Handle returns an error only for malformed messages; the consumer moves those to the DLQ.
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	ev, err := decodeWireEvent(b, h.barDur)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if err := mid.ValidateEvent(ev); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid event: %w", err)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ev.Time()).Seconds())

	if err := h.pipe.Process(ctx, ev); err != nil && !errors.Is(err, models.ErrUnknownInstrument) {
		// the pipeline buffered the event for replay
		h.metrics.RecordError("consumer_process")
	}
	return nil
}

func decodeWireEvent(b []byte, barDur time.Duration) (*models.MarketEvent, error) {
	var m wireEvent
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode candle message: %w", err)
	}
	ts, ok := util.ParseTime(rawTime(m.T))
	if !ok {
		return nil, fmt.Errorf("decode candle message: bad timestamp %s", string(m.T))
	}

	if m.Type == "tick" {
		return &models.MarketEvent{Tick: &models.Tick{
			InstrumentID: m.InstrumentID,
			Time:         ts,
			Price:        m.P,
			Volume:       m.V,
		}}, nil
	}

	d := barDur
	if m.DurationSec > 0 {
		d = time.Duration(m.DurationSec) * time.Second
	}
	return &models.MarketEvent{Candle: &models.Candle{
		InstrumentID: m.InstrumentID,
		EndTime:      ts,
		Duration:     d,
		Open:         m.O,
		High:         m.H,
		Low:          m.L,
		Close:        m.C,
		Volume:       m.V,
	}}, nil
}

func rawTime(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
