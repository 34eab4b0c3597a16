package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/carbon-footprint/internal/app"
	"github.com/smukkama/carbon-footprint/internal/influxdb"
	"github.com/smukkama/carbon-footprint/internal/queue"
	"github.com/smukkama/carbon-footprint/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(os.Stdout, os.Getenv("DEBUG") != "")
	logger.Info("starting emissions exporter")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	influx, err := influxdb.NewClient(ctx, cfg.InfluxDB)
	if err != nil {
		log.Fatalf("Failed to connect to InfluxDB: %v", err)
	}
	defer influx.Close()
	logger.Info("connected to influxdb", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEmissions, cfg.Kafka.GroupID)
	defer consumer.Close()

	batchWriter := queue.NewBatchWriter(consumer, influx, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval, logger)
	batchWriter.Start(context.Background())
	logger.Info("batch writer started",
		"topic", cfg.Kafka.TopicEmissions,
		"group", cfg.Kafka.GroupID,
		"batch_size", cfg.Kafka.BatchSize,
		"flush_interval", cfg.Kafka.FlushInterval)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				logger.Info("consumer stats", "messages", stats.Messages, "bytes", stats.Bytes, "errors", stats.Errors)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully")
	batchWriter.Stop()
	logger.Info("exporter stopped")
}
