// Command indexer owns the search index. It consumes document-ingest events,
// keeps forward indexes and similarity records in PostgreSQL, snapshots the
// inverted index to disk and announces every change on the index-complete
// topic for searcher replicas.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-reindex]
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
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	reindex := flag.Bool("reindex", false, "index every stored document and recompute suggestions before consuming")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "data_dir", cfg.Indexer.DataDir, "reindex", *reindex)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.NewPostgres(db, resilience.DefaultRetryConfig())
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to migrate store", "error", err)
		os.Exit(1)
	}
	if err := db.Exec(ctx, ingestion.ContentSchema); err != nil {
		slog.Error("failed to migrate content table", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()

	engine, err := indexer.NewEngine(indexer.OptionsFromConfig(cfg), indexer.Deps{
		Source:   ingestion.NewPostgresSource(db),
		Store:    st,
		Notifier: consumer.NewNotifier(producer),
		Metrics:  m,
	})
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	if _, err := engine.Load(ctx); err != nil {
		slog.Error("failed to load engine state", "error", err)
		os.Exit(1)
	}

	if *reindex {
		report, err := engine.IndexAll(ctx)
		if err != nil {
			slog.Error("reindex failed", "error", err)
			os.Exit(1)
		}
		slog.Info("reindex finished",
			"total", report.Total,
			"indexed", report.Indexed,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"elapsed", report.Elapsed,
		)
		if _, err := engine.RecomputeSimilarity(ctx); err != nil {
			slog.Error("similarity recompute failed", "error", err)
		}
	}

	maintenanceDone := engine.StartMaintenanceLoop(ctx, cfg.Indexer.SnapshotInterval, cfg.Similarity.Interval)

	checker := health.NewChecker()
	checker.Add("index", health.Ping(func(context.Context) error { return engine.CheckIntegrity() }))
	checker.Add("postgres", health.Ping(db.Ping))

	mux := http.NewServeMux()
	handler.New(engine, nil, m).Register(mux)
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
	go func() {
		slog.Info("indexer admin api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, "", consumer.HandleIngest(engine))
	defer kafkaConsumer.Close()
	indexConsumer := consumer.New(kafkaConsumer)
	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	<-maintenanceDone

	slog.Info("writing final snapshot before shutdown")
	if err := engine.Close(); err != nil {
		slog.Error("final snapshot failed", "error", err)
	}
	slog.Info("indexer service stopped")
}
