package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/internal/handler/api"
	mid "github.com/trickingegg/golden-dragon/internal/middleware"
	internalrepo "github.com/trickingegg/golden-dragon/internal/repository"
	"github.com/trickingegg/golden-dragon/internal/service/broker"
	"github.com/trickingegg/golden-dragon/internal/service/feed"
	"github.com/trickingegg/golden-dragon/internal/service/ratelimit"
	"github.com/trickingegg/golden-dragon/internal/services/risk"
	"github.com/trickingegg/golden-dragon/internal/services/strategy"
	"github.com/trickingegg/golden-dragon/internal/services/tracker"
	"github.com/trickingegg/golden-dragon/internal/usecase"
	"github.com/trickingegg/golden-dragon/pkg/cache"
	pkgch "github.com/trickingegg/golden-dragon/pkg/clickhouse"
	"github.com/trickingegg/golden-dragon/pkg/config"
	xhttp "github.com/trickingegg/golden-dragon/pkg/http"
	pkgkafka "github.com/trickingegg/golden-dragon/pkg/kafka"
	"github.com/trickingegg/golden-dragon/pkg/logger"
	"github.com/trickingegg/golden-dragon/pkg/metrics"
	"github.com/trickingegg/golden-dragon/pkg/queue"
	"github.com/trickingegg/golden-dragon/pkg/server"
)

// Brokerage is the selected broker. Paper is set only in paper mode and
// receives live prices from the supervisor.
type Brokerage struct {
	Broker drepo.Broker
	Paper  *broker.Paper
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideKafkaProducer creates the producer and attaches the log collector.
// It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   cfg.Kafka.Producer.BatchBytes,
		Linger:       cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
	}, pkgkafka.WithLogger(lgr.Detached().With(logger.String("component", "kafka_producer"))))
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if lc := cfg.Kafka.LogCollector; lc.Enabled {
		plain := lgr.Detached().With(logger.String("component", "log_collector"))
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   lc.Interval,
			CountThreshold: lc.MaxItems,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
			OnPublishError: func(err error, dropped int) {
				plain.Warn("Log batch dropped", logger.Int("entries", dropped), logger.Error(err))
			},
		})
	}

	cleanup := func() {
		lgr.RemoveCollector()
		if err := producer.Close(); err != nil {
			lgr.Warn("Kafka producer close failed", logger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvidePublisher emits orders and signal events to Kafka, or drops them.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Orders, cfg.Kafka.Topics.Signals)
}

// ProvideRedisCache connects to Redis. It returns nil when Redis is disabled.
// The connection is closed together with the layered cache.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers memory over Redis when available.
func ProvideCache(rc *cache.RedisCache) (cache.Service, func()) {
	if rc == nil {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(1000), cache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(1000), cache.WithLayeredL1TTL(30*time.Second))
	return lc, func() { _ = lc.Close() }
}

// ProvideBrokerage selects the paper broker or the HTTP gateway.
func ProvideBrokerage(cfg *config.Config, lgr *logger.Logger) *Brokerage {
	if cfg.Broker.Mode == config.BrokerPaper {
		p := broker.NewPaper(
			decimal.NewFromFloat(cfg.Broker.PaperCash),
			cfg.Broker.Currency,
			cfg.Instruments,
			broker.WithPaperMargin(decimal.NewFromFloat(cfg.Broker.PaperMargin)),
			broker.WithPaperLogger(lgr.With(logger.String("component", "paper_broker"))),
		)
		return &Brokerage{Broker: p, Paper: p}
	}
	client := xhttp.NewClient(
		xhttp.WithBaseURL(cfg.Broker.BaseURL),
		xhttp.WithBearerToken(cfg.Broker.Token),
		xhttp.WithTimeout(cfg.Broker.Timeout),
	)
	g := broker.NewGateway(client,
		ratelimit.New(float64(cfg.Broker.RateBurst), cfg.Broker.RateLimit),
		broker.WithAccount(cfg.Broker.AccountID),
		broker.WithGatewayLogger(lgr.With(logger.String("component", "gateway"))),
	)
	return &Brokerage{Broker: g}
}

// ProvideCandleStore opens ClickHouse and creates the candle table. It returns
// nil when ClickHouse is disabled.
func ProvideCandleStore(cfg *config.Config, lgr *logger.Logger) (drepo.CandleStore, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	chc := cfg.ClickHouse
	client, err := pkgch.NewClient(context.Background(), pkgch.ClientConfig{
		Host:         chc.Host,
		Port:         chc.Port,
		Database:     chc.Database,
		User:         chc.User,
		Password:     chc.Password,
		DialTimeout:  chc.DialTimeout,
		ReadTimeout:  chc.ReadTimeout,
		WriteTimeout: chc.WriteTimeout,
		MaxExecTime:  chc.MaxExecutionTime,
		UseHTTP:      chc.UseHTTP,
		AsyncInsert:  chc.AsyncInsert,
		WaitForAsync: chc.WaitForAsync,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	store := internalrepo.NewCHCandleStore(client, lgr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			lgr.Warn("ClickHouse close failed", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideHistory reads warm-up candles from the store first when one is configured.
func ProvideHistory(b *Brokerage, store drepo.CandleStore, ens *strategy.Ensemble, lgr *logger.Logger) drepo.HistoryProvider {
	if store == nil {
		return b.Broker
	}
	return internalrepo.NewStoreFirstHistory(store, b.Broker, ens.WarmupPeriod(), lgr)
}

// ProvideMarginProvider caches futures margins.
func ProvideMarginProvider(cfg *config.Config, b *Brokerage, c cache.Service, lgr *logger.Logger) drepo.MarginProvider {
	return internalrepo.NewCachedMarginProvider(b.Broker, c, cfg.Redis.MarginTTL, lgr)
}

// ProvideOrderQueue runs order placement on Redis workers, or in process when
// Redis is disabled.
func ProvideOrderQueue(cfg *config.Config, lgr *logger.Logger, b *Brokerage, c cache.Service, rc *cache.RedisCache) (queue.Enqueuer, func(), error) {
	qlog := lgr.With(logger.String("component", "order_queue"))
	job := usecase.NewPlaceOrderJob(b.Broker, c, qlog)
	qcfg := queue.QueueConfig{Workers: cfg.Redis.QueueWorkers, RetryLimit: 3, RetryDelay: 5 * time.Second}

	if rc == nil {
		q := queue.NewLocalQueue(qlog, qcfg, job)
		return q, stopQueue(q, lgr), nil
	}

	rq := queue.NewRedisQueue(qlog, qcfg, rc.Client(),
		queue.WithKeyPrefix(cfg.Redis.Prefix+":"+cfg.Redis.OrderQueue))
	rq.RegisterJob(job)
	if err := rq.Start(); err != nil {
		return nil, nil, fmt.Errorf("order queue: %w", err)
	}
	stop := stopQueue(rq, lgr)
	cleanup := func() {
		stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if pending, delayed, dead, err := rq.Depth(ctx); err == nil && pending+delayed+dead > 0 {
			lgr.Info("Order queue left in Redis",
				logger.Int64("pending", pending),
				logger.Int64("delayed", delayed),
				logger.Int64("dead", dead))
		}
	}
	return rq, cleanup, nil
}

func stopQueue(q queue.Enqueuer, lgr *logger.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.Stop(ctx); err != nil {
			lgr.Warn("Order queue stop failed", logger.Error(err))
		}
	}
}

func ProvideOrderExecutor(pub drepo.Publisher, q queue.Enqueuer, lgr *logger.Logger) *usecase.OrderExecutor {
	return usecase.NewOrderExecutor(pub, q, lgr)
}

func ProvideTracker(cfg *config.Config, lgr *logger.Logger) *tracker.Tracker {
	return tracker.New(tracker.WithExpiry(cfg.Trading.SignalExpiry), tracker.WithLogger(lgr))
}

// ProvideEnsemble builds the strategy ensemble shared by every instrument.
func ProvideEnsemble(cfg *config.Config, lgr *logger.Logger) *strategy.Ensemble {
	return strategy.NewDefaultEnsemble(cfg.Strategies, strategy.WithEnsembleLogger(lgr))
}

func ProvideValidator(cfg *config.Config, margins drepo.MarginProvider, lgr *logger.Logger) *risk.Validator {
	return risk.NewValidator(cfg.Risk, margins, risk.WithLogger(lgr))
}

// ProvideCandleWriter persists closed bars. It returns nil without a store.
func ProvideCandleWriter(cfg *config.Config, store drepo.CandleStore, m drepo.Metrics, lgr *logger.Logger) *usecase.CandleWriter {
	if store == nil {
		return nil
	}
	return usecase.NewCandleWriter(store, m, lgr, cfg.Trading.WriterBatch, cfg.Trading.WriterFlush)
}

// ProvideSupervisor creates one processor per configured instrument.
func ProvideSupervisor(
	cfg *config.Config,
	ens *strategy.Ensemble,
	val *risk.Validator,
	trk *tracker.Tracker,
	b *Brokerage,
	history drepo.HistoryProvider,
	exec *usecase.OrderExecutor,
	pub drepo.Publisher,
	m drepo.Metrics,
	writer *usecase.CandleWriter,
	lgr *logger.Logger,
) *usecase.Supervisor {
	pcfg := usecase.ProcessorConfig{
		BarDuration:      cfg.Trading.BarDuration,
		AnalysisDelay:    cfg.Trading.AnalysisDelay,
		AnalysisInterval: cfg.Trading.AnalysisEvery,
		Cooldown:         cfg.Trading.Cooldown,
		HistoryDays:      cfg.Trading.HistoryDays,
		MaxBars:          cfg.Trading.MaxBars,
	}
	ids := &models.IDSequence{}
	processors := make([]*usecase.InstrumentProcessor, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		processors = append(processors, usecase.NewInstrumentProcessor(inst, pcfg, usecase.ProcessorDeps{
			Signaler:  ens,
			Validator: val,
			Tracker:   trk,
			Portfolio: b.Broker,
			History:   history,
			Executor:  exec,
			Publisher: pub,
			Metrics:   m,
			IDs:       ids,
			Logger:    lgr,
		}))
	}

	var observers []usecase.PriceObserver
	if b.Paper != nil {
		observers = append(observers, b.Paper.SetPrice)
	}
	return usecase.NewSupervisor(processors, usecase.SupervisorConfig{
		SweepInterval: cfg.Trading.SweepInterval,
		RecentSignals: cfg.Trading.RecentSignals,
	}, usecase.SupervisorDeps{
		Strategies: ens,
		Tracker:    trk,
		Writer:     writer,
		Publisher:  pub,
		Metrics:    m,
		Logger:     lgr,
		Observers:  observers,
	})
}

// ProvidePipeline validates, throttles and buffers events in front of the supervisor.
func ProvidePipeline(cfg *config.Config, sup *usecase.Supervisor, m drepo.Metrics) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(sup, m,
		mid.WithMaxRPS(cfg.Trading.ThrottleRPS),
		mid.WithBufferSize(cfg.Trading.PipelineBuffer),
	)
}

// ProvideCandleCollector reads the websocket feed. It returns nil for the Kafka feed.
func ProvideCandleCollector(cfg *config.Config, pipe *mid.RealtimePipeline, m drepo.Metrics, lgr *logger.Logger) *usecase.CandleCollector {
	if cfg.Feed.Source != config.FeedWebsocket {
		return nil
	}
	ids := make([]string, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		ids = append(ids, inst.ID)
	}
	stream := feed.New(cfg.Feed.WebSocketURL, ids,
		feed.WithToken(cfg.Feed.Token),
		feed.WithInterval(drepo.NormalizeTimeframe(cfg.Feed.Interval)),
		feed.WithReconnectDelay(cfg.Feed.ReconnectDelay),
		feed.WithPingInterval(cfg.Feed.PingInterval),
		feed.WithLogger(lgr.With(logger.String("component", "feed"))),
	)
	return usecase.NewCandleCollector(stream, pipe, m, lgr)
}

// ProvideKafkaConsumer consumes the candles topic. It returns nil for the websocket feed.
func ProvideKafkaConsumer(cfg *config.Config, pipe *mid.RealtimePipeline, m drepo.Metrics, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Source != config.FeedKafka {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    kc.GroupID,
		Workers:    kc.Workers,
		BufferSize: kc.BufferSize,
		RetryMax:   kc.RetryMax,
		BackoffMin: kc.BackoffMin,
		BackoffMax: kc.BackoffMax,
		DLQTopic:   kc.DLQTopic,
		MinBytes:   kc.MinBytes,
		MaxBytes:   kc.MaxBytes,
	}, pkgkafka.WithLogger(lgr.With(logger.String("component", "kafka_consumer"))))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaCandlesHandler(cfg.Kafka.Topics.Candles, pipe, m, cfg.Trading.BarDuration))
	consumer.WithConsumerHook(pkgkafka.InstrumentedHook(lgr, func(topic string, d time.Duration, err error) {
		m.RecordLatency("kafka_handle", d.Seconds())
		if err != nil {
			m.RecordError("kafka_handle")
		}
	}))
	return consumer, nil
}

// ProvideHTTPServer exposes the operator API, health and metrics.
func ProvideHTTPServer(
	cfg *config.Config,
	sup *usecase.Supervisor,
	store drepo.CandleStore,
	collector *usecase.CandleCollector,
	rc *cache.RedisCache,
	lgr *logger.Logger,
) *xhttp.Server {
	checks := map[string]api.HealthCheck{}
	if collector != nil {
		checks["feed"] = func(context.Context) error {
			if !collector.IsConnected() {
				return errors.New("market stream disconnected")
			}
			return nil
		}
	}
	if store != nil {
		checks["clickhouse"] = store.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	httpLog := lgr.With(logger.String("component", "http"))
	return xhttp.NewServer(
		[]xhttp.Handler{api.NewOperatorEchoHandler(httpLog, sup, store, checks)},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(httpLog),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	sup *usecase.Supervisor,
	pipe *mid.RealtimePipeline,
	collector *usecase.CandleCollector,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, lgr, sup, pipe, collector, consumer, httpServer)
}
