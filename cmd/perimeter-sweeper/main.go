package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/verdantgrid/perimeter/pkg/audit"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

var (
	dbURL            = flag.String("db-url", getEnv("PERIMETER_POSTGRES_URL", "postgres://localhost/perimeter?sslmode=disable"), "PostgreSQL connection URL")
	retentionDays    = flag.Int("retention-days", 90, "Number of days to keep security events")
	schedule         = flag.String("schedule", "0 3 * * *", "Cron schedule for retention sweeps (default: 03:00 UTC)")
	runOnce          = flag.Bool("run-once", false, "Run one sweep and exit (for testing or backfilling)")
	logLevel         = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	archiveBucket    = flag.String("archive-bucket", getEnv("PERIMETER_AUDIT_ARCHIVE_BUCKET", ""), "S3 bucket for archiving expired events before deletion (empty disables archiving)")
	archiveRegion    = flag.String("archive-region", getEnv("PERIMETER_AUDIT_ARCHIVE_REGION", "us-east-1"), "S3 region for the archive bucket")
	archiveEndpoint  = flag.String("archive-endpoint", getEnv("PERIMETER_AUDIT_ARCHIVE_ENDPOINT", ""), "Custom S3 endpoint (for MinIO-style deployments)")
	archiveAccessKey = flag.String("archive-access-key", getEnv("PERIMETER_AUDIT_ARCHIVE_ACCESS_KEY", ""), "Static S3 access key (empty uses the default credential chain)")
	archiveSecretKey = flag.String("archive-secret-key", getEnv("PERIMETER_AUDIT_ARCHIVE_SECRET_KEY", ""), "Static S3 secret key")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(*logLevel)

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store, err := audit.NewDBStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize event store: %v", err)
	}

	opts := []audit.SweeperOption{}
	archiveEnabled := *archiveBucket != ""
	if archiveEnabled {
		archiver, err := audit.NewS3Archiver(context.Background(), audit.ArchiveConfig{
			Bucket:    *archiveBucket,
			Region:    *archiveRegion,
			Endpoint:  *archiveEndpoint,
			AccessKey: *archiveAccessKey,
			SecretKey: *archiveSecretKey,
		})
		if err != nil {
			log.Fatalf("Failed to initialize archiver: %v", err)
		}
		opts = append(opts, audit.WithArchiver(archiver))
		log.Printf("Archiving enabled: bucket %s", *archiveBucket)
	}

	sweeper := audit.NewSweeper(store, audit.RetentionPolicy{
		RetentionDays:  *retentionDays,
		ArchiveEnabled: archiveEnabled,
	}, logger, opts...)

	// Run once mode (for testing or manual cleanup)
	if *runOnce {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		deleted, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Retention sweep failed: %v", err)
		}
		log.Printf("Retention sweep completed: %d events deleted", deleted)
		return
	}

	// Scheduled mode
	if err := sweeper.Start(*schedule); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}
	log.Println("Perimeter retention sweeper started")
	log.Printf("Sweep schedule: %s", *schedule)
	log.Printf("Retention period: %d days", *retentionDays)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sweeper.Stop(ctx); err != nil {
		log.Printf("Sweeper stop: %v", err)
	}

	log.Println("Sweeper stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
