// Command searcher serves queries and suggestions from a replica of the
// index. It loads forward indexes and similarity records from PostgreSQL on
// start and then follows the indexer through the index-complete topic.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
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
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	opts := indexer.OptionsFromConfig(cfg)
	opts.Replica = true
	engine, err := indexer.NewEngine(opts, indexer.Deps{
		Store:   store.NewPostgres(db, resilience.DefaultRetryConfig()),
		Metrics: m,
	})
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	report, err := engine.Load(ctx)
	if err != nil {
		slog.Error("failed to load index", "error", err)
		os.Exit(1)
	}
	slog.Info("replica index loaded", "documents", report.Documents, "terms", report.Terms)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Add("index", health.Ping(func(context.Context) error { return engine.CheckIntegrity() }))
	checker.Add("postgres", health.Ping(db.Ping))
	if redisClient != nil {
		checker.Add("redis", health.Degradable(redisClient.Ping))
	}

	mux := http.NewServeMux()
	handler.New(engine, queryCache, m).Register(mux)
	checker.Register(mux)

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Chain(chain, middleware.RequestID, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Every replica needs every index-complete event, so each one joins its
	// own consumer group.
	group := replicaGroup(cfg.Kafka.ConsumerGroup)
	follower := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, group, consumer.HandleIndexComplete(engine))
	defer follower.Close()
	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		if err := consumer.New(follower).Start(ctx); err != nil {
			slog.Error("index-complete consumer error", "error", err)
		}
	}()
	slog.Info("following indexer", "topic", cfg.Kafka.Topics.IndexComplete, "group", group)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-followDone
	slog.Info("search service stopped")
}

func replicaGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-searcher-%s", base, host)
}
