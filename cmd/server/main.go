package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"possync/backend/internal/aggregation"
	"possync/backend/internal/config"
	"possync/backend/internal/fanout"
	"possync/backend/internal/httpapi"
	"possync/backend/internal/logging"
	"possync/backend/internal/metrics"
	"possync/backend/internal/service"
	"possync/backend/internal/store"
	"possync/backend/internal/store/memory"
	pgstore "possync/backend/internal/store/postgres"
)

type eventBus interface {
	fanout.Publisher
	fanout.Subscriber
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Warn("report timezone unavailable, using UTC")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("repository unavailable")
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	var bus eventBus = fanout.NewLocalBroker(64)
	if cfg.RedisAddr != "" {
		redisBus := fanout.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err := redisBus.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, events stay in process")
		} else {
			bus = redisBus
			closers = append(closers, redisBus.Close)
			logger.Info("fanout: redis")
		}
	} else {
		logger.Info("fanout: in-process")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	aggregator := aggregation.NewAggregator(repo, loc)
	pipeline := aggregation.NewPipeline(aggregator, aggregation.PipelineOptions{
		Workers:    cfg.AggregationWorkers,
		QueueSize:  cfg.AggregationQueueSize,
		JobTimeout: cfg.AggregationJobTimeout,
		Logger:     logger,
		Metrics:    m,
	})
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()
	pipeline.Start(pipelineCtx)

	notifier := fanout.NewNotifier(bus, cfg.FanoutTimeout, logger, m)
	svc := service.New(repo, service.Options{
		Aggregator: aggregator,
		Queue:      pipeline,
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    m,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		Events:         bus,
		Gatherer:       registry,
		Health:         healthChecker(repo),
		Logger:         logger,
		SyncRateLimit:  cfg.SyncRateLimitPerMinute,
		LoginRateLimit: cfg.LoginRateLimitPerMin,
		RequestTimeout: cfg.WriteTimeout,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		// Left unset so the events stream is not cut off; handlers carry their own timeout.
		WriteTimeout: 0,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     cfg.Address(),
			"timezone": aggregator.Location().String(),
		}).Info("POS sync backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("aggregation pipeline did not drain")
	}
	notifier.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

// openRepository prefers Postgres when DATABASE_URL is set and never falls back to
// memory in that case.
func openRepository(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, pg.Close, nil
	}

	if cfg.SeedFile != "" {
		mem, err := memory.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("seed_file", cfg.SeedFile).Info("repository: in-memory")
		return mem, nil, nil
	}
	logger.Info("repository: in-memory (demo seed)")
	return memory.NewSeeded(), nil, nil
}

func healthChecker(repo store.Repository) store.HealthChecker {
	if hc, ok := repo.(store.HealthChecker); ok {
		return hc
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name a single origin, not *")
	}
	if cfg.AccessTokenTTLMinutes > 7*24*60 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must not exceed one week")
	}
	return nil
}
