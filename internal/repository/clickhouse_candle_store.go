package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	pkgch "github.com/trickingegg/golden-dragon/pkg/clickhouse"
	applogger "github.com/trickingegg/golden-dragon/pkg/logger"
)

const insertChunk = 2000

// CHCandleStore implements CandleStore backed by a ReplacingMergeTree table, so
// re-inserting a period replaces the earlier version of that bar.
type CHCandleStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{
		client: ch,
		db:     ch.DB(),
		table:  candleTable(ch.Database()),
		l:      l,
	}
}

func candleTable(database string) string {
	if database == "" {
		return "candles"
	}
	return database + ".candles"
}

// schemaStatements returns the DDL for the candle table.
func schemaStatements(database, table string) []string {
	stmts := make([]string, 0, 2)
	if database != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database))
	}
	stmts = append(stmts, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            instrument_id LowCardinality(String),
            tf            LowCardinality(String),
            end_time      DateTime64(3, 'UTC'),
            open          Decimal(18, 8),
            high          Decimal(18, 8),
            low           Decimal(18, 8),
            close         Decimal(18, 8),
            volume        Decimal(24, 8),
            inserted_at   DateTime64(3, 'UTC') DEFAULT now64(3)
        )
        ENGINE = ReplacingMergeTree(inserted_at)
        PARTITION BY toYYYYMM(end_time)
        ORDER BY (instrument_id, tf, end_time)
    `, table))
	return stmts
}

func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, schemaStatements(s.client.Database(), s.table))
}

func (s *CHCandleStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *CHCandleStore) Close() error { return s.client.Close() }

func (s *CHCandleStore) StoreBatch(ctx context.Context, candles []models.Candle) error {
	start := time.Now()
	stored := 0
	for lo := 0; lo < len(candles); lo += insertChunk {
		hi := min(lo+insertChunk, len(candles))
		q, args := buildInsert(s.table, candles[lo:hi])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_candles error",
				applogger.String("table", s.table),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("store candles: %w", err)
		}
		stored += len(args) / candleColumns
	}
	s.l.Debug("clickhouse store_candles ok",
		applogger.Int("rows", stored),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

const candleColumns = 8

// buildInsert renders a multi-row insert. Candles without an instrument or end
// time are skipped.
func buildInsert(table string, candles []models.Candle) (string, []interface{}) {
	values := make([]string, 0, len(candles))
	args := make([]interface{}, 0, len(candles)*candleColumns)
	for _, c := range candles {
		if c.InstrumentID == "" || c.EndTime.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			c.InstrumentID,
			string(domrepo.TimeframeFor(c.Duration)),
			c.EndTime.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (instrument_id, tf, end_time, open, high, low, close, volume) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

const selectColumns = `end_time, toString(open), toString(high), toString(low), toString(close), toString(volume)`

func (s *CHCandleStore) Candles(ctx context.Context, instrumentID string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE instrument_id = ? AND tf = ? AND end_time > ? AND end_time <= ?
        ORDER BY end_time ASC
    `, selectColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, instrumentID, string(tf), from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("instrument", instrumentID),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out, err := scanCandles(rows, instrumentID, tf, 256)
	if err != nil {
		return nil, err
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("instrument", instrumentID),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHCandleStore) LatestN(ctx context.Context, instrumentID string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE instrument_id = ? AND tf = ?
        ORDER BY end_time DESC
        LIMIT ?
    `, selectColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, instrumentID, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("instrument", instrumentID),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out, err := scanCandles(rows, instrumentID, tf, n)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanCandles(rows *sql.Rows, instrumentID string, tf domrepo.Timeframe, capHint int) ([]models.Candle, error) {
	out := make([]models.Candle, 0, capHint)
	for rows.Next() {
		c := models.Candle{InstrumentID: instrumentID, Duration: tf.Duration()}
		if err := rows.Scan(&c.EndTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
