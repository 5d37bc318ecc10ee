package usecase

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

type candleKey struct {
	instrumentID string
	end          int64
}

// CandleWriter batches bars for the candle store. Repeated writes of the same
// period keep only the latest version, so amended bars cost one row per flush.
type CandleWriter struct {
	store   drepo.CandleStore
	metrics drepo.Metrics
	lgr     *logger.Logger
	batchSz int
	batchTO time.Duration

	mu      sync.Mutex
	pending map[candleKey]models.Candle

	flushCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewCandleWriter creates a writer flushing every batchTO or when batchSz bars are pending.
func NewCandleWriter(store drepo.CandleStore, metrics drepo.Metrics, l *logger.Logger, batchSz int, batchTO time.Duration) *CandleWriter {
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = 5 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	return &CandleWriter{
		store:   store,
		metrics: metrics,
		lgr:     l,
		batchSz: batchSz,
		batchTO: batchTO,
		pending: make(map[candleKey]models.Candle),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Add queues the current version of a bar.
func (w *CandleWriter) Add(instrumentID string, bar models.Bar) {
	c := models.Candle{
		InstrumentID: instrumentID,
		EndTime:      bar.EndTime,
		Duration:     bar.Duration,
		Open:         bar.Open,
		High:         bar.High,
		Low:          bar.Low,
		Close:        bar.Close,
		Volume:       bar.Volume,
	}
	w.mu.Lock()
	w.pending[candleKey{instrumentID, bar.EndTime.UnixNano()}] = c
	full := len(w.pending) >= w.batchSz
	w.mu.Unlock()

	if full {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of bars waiting for the next flush.
func (w *CandleWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Start runs the flush loop until Stop or ctx cancellation.
func (w *CandleWriter) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.batchTO)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.final()
				return
			case <-w.stopCh:
				w.final()
				return
			case <-ticker.C:
			case <-w.flushCh:
			}
			if err := w.Flush(ctx); err != nil {
				w.lgr.Warn("Candle flush failed", logger.Error(err))
			}
		}
	}()
}

func (w *CandleWriter) final() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		w.lgr.Warn("Final candle flush failed", logger.Error(err))
	}
}

// Stop flushes what is pending and waits for the loop to exit.
func (w *CandleWriter) Stop() {
	if !w.started.Load() {
		w.final()
		return
	}
	w.once.Do(func() { close(w.stopCh) })
	<-w.done
}

// Flush writes all pending bars. On failure the bars are kept unless a newer
// version arrived in the meantime.
func (w *CandleWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := make([]models.Candle, 0, len(w.pending))
	for _, c := range w.pending {
		batch = append(batch, c)
	}
	w.pending = make(map[candleKey]models.Candle)
	w.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].InstrumentID != batch[j].InstrumentID {
			return batch[i].InstrumentID < batch[j].InstrumentID
		}
		return batch[i].EndTime.Before(batch[j].EndTime)
	})

	start := time.Now()
	if err := w.store.StoreBatch(ctx, batch); err != nil {
		w.metrics.RecordError("candle_store")
		w.mu.Lock()
		for _, c := range batch {
			k := candleKey{c.InstrumentID, c.EndTime.UnixNano()}
			if _, newer := w.pending[k]; !newer {
				w.pending[k] = c
			}
		}
		w.mu.Unlock()
		return err
	}
	w.metrics.RecordLatency("candle_store", time.Since(start).Seconds())
	w.lgr.Debug("Candles stored", logger.Int("count", len(batch)))
	return nil
}
