package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/mau/internal/config"
	"example.com/mau/internal/estimator"
	persistence "example.com/mau/internal/persistence/postgres"
	"example.com/mau/internal/publisher"
	"example.com/mau/internal/qualitygate"
	"example.com/mau/internal/scheduler"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	writer := publisher.NewManifestWriter(cfg.KafkaBrokers, cfg.ManifestTopic)
	defer writer.Close()
	registry := publisher.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	pub := publisher.New(writer, registry, cfg.ManifestTopic)

	// A fresh pipeline per run so the install-base year always tracks the
	// wall clock.
	newRunner := func(now time.Time) scheduler.Runner {
		gate := qualitygate.New(repo, qualitygate.Config{
			StalenessBound: cfg.StalenessBound,
			OutlierSigma:   cfg.OutlierThresholdSigma,
		})
		pipeline := estimator.NewPipeline(estimator.Config{
			Year:                   now.Year(),
			TotalSampleSize:        cfg.TotalStudySampleSize,
			MinGenreSample:         cfg.MinGenreSample,
			ConfidenceZ:            cfg.ConfidenceZ,
			InvariantAbortFraction: cfg.InvariantAbortFraction,
			RunTimeout:             cfg.RunTimeout,
			Workers:                cfg.Workers,
		}, gate)
		return estimator.NewService(repo, pub, pipeline, cfg.LookbackWindow())
	}
	l := scheduler.NewRunLauncher(newRunner, nil)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.SnapshotTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	processor := scheduler.NewProcessor(reader, l)
	ticker := scheduler.NewTicker(l, cfg.PollInterval, nil)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() {
		if err := http.ListenAndServe(cfg.HTTPAddress, mux); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	go func() {
		if err := ticker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("interval trigger stopped: %v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- processor.Run(ctx)
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-shutdownCh:
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Fatalf("processor error: %v", err)
		}
	}

	if err := reader.Close(); err != nil {
		log.Printf("reader close: %v", err)
	}
}
