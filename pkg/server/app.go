package server

import (
	"context"
	"errors"
	"fmt"

	mid "github.com/trickingegg/golden-dragon/internal/middleware"
	"github.com/trickingegg/golden-dragon/internal/usecase"
	"github.com/trickingegg/golden-dragon/pkg/config"
	xhttp "github.com/trickingegg/golden-dragon/pkg/http"
	pkgkafka "github.com/trickingegg/golden-dragon/pkg/kafka"
	applogger "github.com/trickingegg/golden-dragon/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	lgr        *applogger.Logger
	supervisor *usecase.Supervisor
	pipe       *mid.RealtimePipeline
	collector  *usecase.CandleCollector
	consumer   *pkgkafka.Consumer
	httpServer *xhttp.Server
}

// New creates the App. Exactly one of collector and consumer is expected to be set.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	supervisor *usecase.Supervisor,
	pipe *mid.RealtimePipeline,
	collector *usecase.CandleCollector,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		lgr:        lgr,
		supervisor: supervisor,
		pipe:       pipe,
		collector:  collector,
		consumer:   consumer,
		httpServer: httpServer,
	}
}

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails.
func (a *App) Run(ctx context.Context) error {
	a.lgr.Info("Starting",
		applogger.Int("instruments", len(a.cfg.Instruments)),
		applogger.String("feed", a.cfg.Feed.Source),
		applogger.String("broker", a.cfg.Broker.Mode))

	// Backfill runs before the feed so live bars land on a warm series.
	a.supervisor.Start(ctx)

	if err := a.startIngest(ctx); err != nil {
		a.shutdown()
		return err
	}

	if err := a.httpServer.Start(); err != nil {
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.lgr.Info("Shutdown signal received")
	case err := <-a.httpServer.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}
	a.shutdown()
	return runErr
}

func (a *App) startIngest(ctx context.Context) error {
	switch {
	case a.collector != nil:
		if err := a.collector.Start(ctx); err != nil {
			return fmt.Errorf("candle collector: %w", err)
		}
		a.lgr.Info("Candle collector started", applogger.String("url", a.cfg.Feed.WebSocketURL))
	case a.consumer != nil:
		a.pipe.Start(ctx)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.lgr.Info("Kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topics.Candles))
	default:
		return errors.New("no market data source configured")
	}
	return nil
}

// shutdown stops ingestion first, then the analysis tasks, then HTTP.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.lgr.Warn("Collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.lgr.Warn("Kafka consumer stop error", applogger.Error(err))
		}
		a.pipe.Stop()
	}

	a.supervisor.Stop()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.lgr.Error("HTTP shutdown error", applogger.Error(err))
	}

	st := a.supervisor.Stats()
	a.lgr.Info("Shutdown complete",
		applogger.Int64("signals", st.Total),
		applogger.Int64("success", st.Success),
		applogger.Int64("failed", st.Failed),
		applogger.Float64("success_rate", st.SuccessRate()))
}
