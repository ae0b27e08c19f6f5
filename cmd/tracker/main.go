package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fleet-monitor/tracker/internal/broadcast"
	"fleet-monitor/tracker/internal/config"
	"fleet-monitor/tracker/internal/health"
	"fleet-monitor/tracker/internal/ingest"
	"fleet-monitor/tracker/internal/logging"
	"fleet-monitor/tracker/internal/mode"
	"fleet-monitor/tracker/internal/pipeline"
	"fleet-monitor/tracker/internal/query"
	"fleet-monitor/tracker/internal/store"
	"fleet-monitor/tracker/internal/stream"
	transport "fleet-monitor/tracker/internal/transport/http"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogJSON)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisStore, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		fatal(log, "redis unavailable", err)
	}
	defer redisStore.Close()

	historyStore, err := store.NewHistoryStore(ctx, cfg)
	if err != nil {
		fatal(log, "history store unavailable", err)
	}
	defer historyStore.Close()

	src, err := stream.NewSource(cfg)
	if err != nil {
		fatal(log, "stream source", err)
	}

	hub := broadcast.NewHub(cfg.BroadcastBufferSize)
	consumer := ingest.NewConsumer(redisStore, hub, cfg.LocationTopic, cfg.AlertsTopic, ms(cfg.CacheWriteTimeoutMS))

	// History writers outlive the consume loop so they can drain what was
	// dispatched before shutdown.
	var (
		dispatcher *pipeline.Dispatcher
		writers    sync.WaitGroup
	)
	if cfg.HistoryIngestEnabled {
		dispatcher = pipeline.NewDispatcher(cfg.HistoryChannelSize)
		consumer.WithHistory(dispatcher)
		for i := 0; i < cfg.HistoryWriterWorkers; i++ {
			w := pipeline.NewHistoryWriter(dispatcher.HistoryChan, historyStore, cfg.HistoryBatchSize, cfg.HistoryFlushIntervalMS)
			writers.Add(1)
			go func() {
				defer writers.Done()
				w.Run(context.Background())
			}()
		}
		log.Info("history ingest enabled", "workers", cfg.HistoryWriterWorkers, "batch", cfg.HistoryBatchSize)
	}

	engine := query.NewEngine(redisStore, historyStore, ms(cfg.QueryTimeoutMS), cfg.QueryScanLimit)

	checker := health.NewChecker(ms(cfg.HealthProbeTimeoutMS)).
		Register("redis", redisStore.Ping).
		Register("history", historyStore.Ping).
		Register("stream", src.Ping)

	initialMode, err := mode.Parse(cfg.Mode)
	if err != nil {
		fatal(log, "invalid mode", err)
	}

	router := transport.NewRouter(transport.Deps{
		Queries:        engine,
		Feed:           hub,
		Health:         checker,
		Mode:           mode.New(initialMode),
		CORSOrigins:    cfg.CORSAllowedOrigins,
		WSWriteTimeout: ms(cfg.WSWriteTimeoutMS),
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		log.Info("consuming", "driver", cfg.StreamDriver, "location", cfg.LocationTopic, "alerts", cfg.AlertsTopic)
		if err := consumer.Run(ctx, src); err != nil {
			log.Error("consumer stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	<-consumeDone
	if err := src.Close(); err != nil {
		log.Warn("stream close", "error", err)
	}
	hub.Close()

	if dispatcher != nil {
		dispatcher.Close()
		writers.Wait()
	}
	log.Info("stopped")
}
