// Package main runs the ADS-B position history service.
//
// It polls a readsb/dump1090 aircraft.json feed once per interval, stores
// every positioned aircraft keyed by (hex, timestamp), optionally publishes
// each stored batch to NATS, and serves live and historical positions over
// HTTP.
//
// Usage:
//
//	adsb-history [options]
//
// Options (environment variable in brackets, .env is loaded first):
//
//	-feed-url URL            Receiver aircraft.json URL [FEED_URL, ip]
//	-feed-timeout D          Feed request timeout (default: 5s) [FEED_TIMEOUT]
//	-poll-interval D         Ingestion period (default: 1s) [POLL_INTERVAL]
//	-db-driver NAME          postgres, sqlite or clickhouse (default: postgres) [DB_DRIVER]
//	-pg-host HOST            PostgreSQL host (default: localhost) [POSTGRES_HOST]
//	-pg-port PORT            PostgreSQL port (default: 5432) [POSTGRES_PORT]
//	-pg-database DB          PostgreSQL database (default: aircraft) [POSTGRES_DATABASE]
//	-pg-user USER            PostgreSQL user [DBUSER, POSTGRES_USER]
//	-pg-password PASS        PostgreSQL password [DBPASSWORD, POSTGRES_PASSWORD]
//	-sqlite-path PATH        SQLite file (default: aircraft.db) [SQLITE_PATH]
//	-ch-host HOST            ClickHouse host [CLICKHOUSE_HOST]
//	-nats-url URL            Publish stored batches to NATS [NATS_URL]
//	-nats-subject-prefix P   Subject prefix (default: adsb) [NATS_SUBJECT_PREFIX]
//	-port N                  HTTP port (default: 8000) [HTTP_PORT]
//	-log-level LEVEL         debug, info, warn, error [LOG_LEVEL]
//	-log-format FORMAT       json or console [LOG_FORMAT]
//
// API Endpoints:
//
//	GET /                    Liveness greeting.
//	GET /health              Store connectivity.
//	GET /positions/live      Current feed snapshot, never read from storage.
//	GET /positions/history   Stored positions filtered by the query parameters
//	                         start, end, hex_code, flight, squawk, category,
//	                         heading, altitude_min, altitude_max, lat_min,
//	                         lat_max, lon_min, lon_max.
//	GET /metrics             Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"adsb_history/internal/api"
	"adsb_history/internal/config"
	"adsb_history/internal/feed"
	"adsb_history/internal/ingest"
	"adsb_history/internal/logging"
	"adsb_history/internal/publish"
	"adsb_history/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("opening store",
		zap.String("driver", cfg.Storage.Driver),
	)
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	client := feed.NewClient(cfg.FeedURL, feed.WithTimeout(cfg.FeedTimeout))

	// A nil *NATSPublisher must not reach the scheduler as a non-nil interface.
	var publisher ingest.Publisher
	if cfg.NATSURL != "" {
		pub, err := publish.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		publisher = pub
		logger.Info("publishing positions", zap.String("subject", publish.Subject(cfg.NATSSubjectPrefix)))
	}

	scheduler := ingest.New(ingest.Config{Interval: cfg.PollInterval}, client, store, publisher, logger.Named("ingest"))
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	server := api.NewServer(client, store, logger.Named("api"), api.Config{Port: cfg.HTTPPort}).HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("read API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}

	logger.Info("stopped")
	if runErr != nil {
		return fmt.Errorf("serve http: %w", runErr)
	}
	return nil
}
