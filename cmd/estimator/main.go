package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/mau/internal/config"
	"example.com/mau/internal/domain"
	"example.com/mau/internal/estimator"
	persistence "example.com/mau/internal/persistence/postgres"
	"example.com/mau/internal/publisher"
	"example.com/mau/internal/qualitygate"
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

	now := time.Now().UTC()
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

	service := estimator.NewService(repo, pub, pipeline, cfg.LookbackWindow())

	result, runErr := service.RunOnce(ctx, now)
	if result == nil {
		log.Fatalf("run failed before producing a manifest: %v", runErr)
	}

	manifest := result.Manifest
	log.Printf("run %s status=%s estimates=%d violations=%d window=[%s, %s)",
		manifest.RunID, manifest.Status, len(result.Estimates), len(manifest.Violations),
		manifest.WindowStart.Format(time.RFC3339), manifest.WindowEnd.Format(time.RFC3339))

	for _, v := range manifest.Violations {
		log.Printf("  [%s] %s", v.Kind, v.Detail)
	}

	if runErr != nil {
		log.Printf("run error: %v", runErr)
	}
	if manifest.Status == domain.RunRejected {
		os.Exit(1)
	}
}
