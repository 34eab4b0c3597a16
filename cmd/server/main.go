package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/smukkama/carbon-footprint/internal/api"
	"github.com/smukkama/carbon-footprint/internal/app"
	"github.com/smukkama/carbon-footprint/internal/database"
	"github.com/smukkama/carbon-footprint/internal/queue"
	"github.com/smukkama/carbon-footprint/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(os.Stdout, os.Getenv("DEBUG") != "")
	logger.Info("starting carbon footprint server")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to database", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	if err := db.RunMigrations("migrations", logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	opts := app.Options{Store: db, Logger: logger}

	if cfg.Kafka.Enabled {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicEmissions, cfg.Kafka.NumPartitions, 1); err != nil {
			logger.Warn("topic creation failed (may already exist)", "topic", cfg.Kafka.TopicEmissions, "error", err)
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEmissions)
		defer producer.Close()
		opts.Publisher = producer
		logger.Info("kafka producer initialized", "topic", cfg.Kafka.TopicEmissions)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts.Registerer = reg

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := app.NewPipeline(ctx, cfg, opts)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer p.Close()

	router := api.NewRouter(p.Pipeline, reg, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPServer.Addr(),
		Handler:      api.Wrap(router, os.Stdout),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
