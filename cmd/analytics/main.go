// Command analytics runs the standalone analytics service.
//
// It consumes query and index events from Kafka, aggregates them in memory
// (query volume, latency percentiles, cache effectiveness, top queries and
// terms, zero-result queries), snapshots the aggregate to PostgreSQL and
// serves it at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *port); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config, port int) error {
	slog.Info("starting analytics service", "port", port, "brokers", cfg.Kafka.Brokers)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafka.EnsureTopics(ctx, cfg.Kafka, 3, cfg.Kafka.Topics.QueryEvents, cfg.Kafka.Topics.IndexEvents); err != nil {
		slog.Warn("could not ensure kafka topics", "error", err)
	}

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, analytics.HandleEvent(agg),
		cfg.Kafka.Topics.QueryEvents, cfg.Kafka.Topics.IndexEvents)

	checker := health.NewChecker()
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
	} else {
		defer pg.Close()
		store := aggregator.NewStore(pg.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if last, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not load latest snapshot", "error", err)
		} else if last != nil {
			slog.Info("previous snapshot found",
				"total_queries", last.TotalQueries,
				"generation", last.LastGeneration,
			)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Add("postgres", health.Optional(pg.Ping))
	}

	mux := http.NewServeMux()
	analytics.NewHandler(agg).Register(mux)
	checker.Register(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agg.Start(gctx, consumer) })
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
