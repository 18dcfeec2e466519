// Command searcher builds the positional index from the corpus directory and
// serves proximity queries over HTTP and, optionally, JSON-over-TCP RPC.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/watcher"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/intersect"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"corpus", cfg.Corpus.Dir,
		"rule", cfg.Search.ProximityRule,
		"mode", cfg.Search.DefaultMode,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rule, err := intersect.ParseRule(cfg.Search.ProximityRule)
	if err != nil {
		return err
	}
	mode, err := parser.ParseMode(cfg.Search.DefaultMode)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	engine := indexer.NewEngine(cfg.Corpus, m)

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared result cache disabled", "error", err)
		} else {
			defer redisClient.Close()
		}
	}
	var queryCache *cache.QueryCache
	if cfg.Cache.Enabled {
		var remote cache.Store
		if redisClient != nil {
			remote = redisClient
		}
		queryCache, err = cache.New(cfg.Cache, remote, m)
		if err != nil {
			return err
		}
		slog.Info("query cache enabled", "local_size", cfg.Cache.LocalSize, "ttl", cfg.Cache.TTL, "redis", remote != nil)
	}

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher = analytics.NewDirect(aggregator)
	var consumer *kafka.Consumer
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		publisher = producer
		consumer = kafka.NewConsumer(cfg.Kafka, analytics.HandleEvent(aggregator),
			cfg.Kafka.Topics.QueryEvents, cfg.Kafka.Topics.IndexEvents)
	}
	collector := analytics.NewCollector(publisher, cfg.Kafka.Topics, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()

	engine.OnPublish(func(snap *indexer.Snapshot) {
		if queryCache != nil {
			queryCache.PurgeLocal()
		}
		collector.TrackIndex(analytics.IndexEvent{
			Generation: snap.Index.Generation(),
			Documents:  snap.Index.DocCount(),
			Skipped:    len(snap.Skipped),
			Terms:      snap.Index.TermCount(),
		})
	})

	if _, err := engine.Build(ctx); err != nil {
		return fmt.Errorf("initial index build: %w", err)
	}

	h := handler.New(handler.Options{
		Snapshots:   engine,
		Parser:      parser.New(cfg.Search.MaxPairs, cfg.Search.MaxGap),
		Executor:    executor.New(engine, rule, m),
		Cache:       queryCache,
		Tracker:     collector,
		Metrics:     m,
		DefaultMode: mode,
	})

	checker := health.NewChecker()
	checker.Add("index", health.Required(func(context.Context) error {
		if !engine.Ready() {
			return apperrors.ErrIndexNotReady
		}
		return nil
	}))
	if redisClient != nil {
		checker.Add("redis", health.Optional(redisClient.Ping))
	}

	mux := http.NewServeMux()
	h.Register(mux)
	analytics.NewHandler(aggregator).Register(mux)
	checker.Register(mux)

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Metrics(m),
	}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateWindow)
		go limiter.RunCleanup(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimit(limiter, cfg.Server.RateLimit, int(cfg.Server.RateWindow.Seconds())))
		slog.Info("rate limiting enabled", "limit", cfg.Server.RateLimit, "window", cfg.Server.RateWindow)
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}

	if cfg.RPC.Enabled {
		rpcServer := rpc.NewServer()
		h.RegisterRPC(rpcServer)
		g.Go(func() error {
			return rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port))
		})
		g.Go(func() error {
			<-gctx.Done()
			rpcServer.Stop()
			return nil
		})
	}

	if cfg.Corpus.Watch {
		w, err := watcher.New(cfg.Corpus, engine)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	if consumer != nil {
		g.Go(func() error { return aggregator.Start(gctx, consumer) })
	}

	return g.Wait()
}
