package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mid "CoinCast/internal/middleware"
	pkgch "CoinCast/pkg/clickhouse"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
	"CoinCast/pkg/queue"
)

// JobQueue is the background job surface the app manages: a publisher
// plus lifecycle hooks. Both the Redis queue and the inline queue satisfy
// it.
type JobQueue interface {
	queue.QueueService
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	chClient    *pkgch.Client
	consumer    *pkgkafka.Consumer
	ih          pkgkafka.MessageHandler
	pipeline    *mid.IngestPipeline
	jobs        JobQueue
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	chClient *pkgch.Client,
	consumer *pkgkafka.Consumer,
	ih pkgkafka.MessageHandler,
	pipeline *mid.IngestPipeline,
	jobs JobQueue,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		logger:      l,
		chClient:    chClient,
		consumer:    consumer,
		ih:          ih,
		pipeline:    pipeline,
		jobs:        jobs,
		httpHandler: httpHandler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := a.logger

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	a.pipeline.Start(ctx)
	l.Info("ingest pipeline started")

	if a.consumer != nil && a.ih != nil {
		a.consumer.RegisterHandler(a.ih)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.ih.Topic()))
	}

	if err := a.jobs.Start(); err != nil {
		l.Error("job queue start error", applogger.Error(err))
		return err
	}
	l.Info("job queue started")

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.jobs.Stop(shutdownCtx); err != nil {
		l.Warn("job queue stop error", applogger.Error(err))
	}

	// flush buffered observations before the store goes away
	if err := a.pipeline.Stop(ctx); err != nil {
		l.Warn("ingest pipeline stop error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
