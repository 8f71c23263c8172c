// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts book text via POST /api/v1/documents, validates it,
// stores it in PostgreSQL and publishes an ingest event to Kafka for the
// indexer. DELETE /api/v1/documents/{id} withdraws a document.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Exec(ctx, ingestion.ContentSchema); err != nil {
		slog.Error("failed to migrate content table", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	checker := health.NewChecker()
	checker.Add("postgres", health.Ping(db.Ping))

	mux := http.NewServeMux()
	handler.New(publisher.New(db, producer)).Register(mux)
	checker.Register(mux)

	var chain http.Handler = mux
	if cfg.Metrics.Enabled {
		m := metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
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
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
