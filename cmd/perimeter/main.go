package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/verdantgrid/perimeter/pkg/audit"
	"github.com/verdantgrid/perimeter/pkg/config"
	"github.com/verdantgrid/perimeter/pkg/httputil"
	"github.com/verdantgrid/perimeter/pkg/identity"
	"github.com/verdantgrid/perimeter/pkg/ipfilter"
	"github.com/verdantgrid/perimeter/pkg/observability"
	"github.com/verdantgrid/perimeter/pkg/rbac"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "perimeter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel)
	logger.Info("Starting perimeter security service")

	ctx := context.Background()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		logger.Info("Connected to Redis")
	}

	metrics := observability.NewMetrics()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("opentelemetry: %w", err)
	}

	eventStore, err := audit.NewDBStore(db)
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	allowlistStore, err := ipfilter.NewDBStore(db)
	if err != nil {
		return fmt.Errorf("allowlist store: %w", err)
	}

	pipelineOpts := []audit.PipelineOption{audit.WithMetrics(metrics)}
	if cfg.Audit.WebhookURL != "" {
		pipelineOpts = append(pipelineOpts,
			audit.WithAlerter(audit.NewWebhookAlerter(cfg.Audit.WebhookURL, cfg.Audit.WebhookTimeout)))
		logger.Infof("Alert webhook enabled: %s", cfg.Audit.WebhookURL)
	}
	pipeline := audit.NewPipeline(eventStore, logger, pipelineOpts...)

	engineOpts := []ipfilter.EngineOption{ipfilter.WithMetrics(metrics)}
	if cfg.Allowlist.OverrideToken != "" {
		engineOpts = append(engineOpts, ipfilter.WithOverrideToken(cfg.Allowlist.OverrideToken))
	}
	if redisClient != nil {
		engineOpts = append(engineOpts,
			ipfilter.WithCache(ipfilter.NewRedisCache(redisClient, cfg.Allowlist.CacheTTL)))
	}
	engine := ipfilter.NewEngine(allowlistStore, pipeline, logger, engineOpts...)

	resolver := rbac.NewResolver(rbac.WithCacheTTL(cfg.Authz.CacheTTL), rbac.WithMetrics(metrics))
	guards := rbac.NewMiddleware(resolver, rbac.DefaultRequirements(), logger, metrics)

	sweeperOpts := []audit.SweeperOption{audit.WithSweeperMetrics(metrics)}
	if cfg.Audit.ArchiveEnabled {
		archiver, err := audit.NewS3Archiver(ctx, audit.ArchiveConfig{
			Bucket:    cfg.Audit.ArchiveBucket,
			Region:    cfg.Audit.ArchiveRegion,
			Endpoint:  cfg.Audit.ArchiveEndpoint,
			AccessKey: cfg.Audit.ArchiveAccessKey,
			SecretKey: cfg.Audit.ArchiveSecretKey,
		})
		if err != nil {
			return fmt.Errorf("archiver: %w", err)
		}
		sweeperOpts = append(sweeperOpts, audit.WithArchiver(archiver))
		logger.Infof("Event archiving enabled: bucket %s", cfg.Audit.ArchiveBucket)
	}
	sweeper := audit.NewSweeper(eventStore, audit.RetentionPolicy{
		RetentionDays:  cfg.Audit.RetentionDays,
		ArchiveEnabled: cfg.Audit.ArchiveEnabled,
	}, logger, sweeperOpts...)
	if err := sweeper.Start(cfg.Audit.RetentionCron); err != nil {
		return fmt.Errorf("retention sweeper: %w", err)
	}

	apiServer := buildAPIServer(cfg, logger, metrics, pipeline, engine, guards)
	healthServer := buildHealthServer(cfg, db, redisClient, metrics)

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("retention sweeper", sweeper.Stop)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if otelProviders != nil {
		shutdown.Register("opentelemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	return group.Wait()
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildAPIServer(
	cfg *config.Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
	pipeline *audit.Pipeline,
	engine *ipfilter.Engine,
	guards *rbac.Middleware,
) *http.Server {
	router := mux.NewRouter()

	security := router.PathPrefix("/api/v1/security").Subrouter()

	auditHandlers := audit.NewHandlers(pipeline, logger)
	allowlistHandlers := ipfilter.NewHandlers(engine, logger)

	security.Handle("/whitelist",
		guards.RequireOperation("security.whitelist.list")(http.HandlerFunc(allowlistHandlers.ListEntries)),
	).Methods(http.MethodGet)
	security.Handle("/whitelist",
		guards.RequireOperation("security.whitelist.add")(http.HandlerFunc(allowlistHandlers.AddEntry)),
	).Methods(http.MethodPost)
	security.Handle("/whitelist/{id}",
		guards.RequireOperation("security.whitelist.remove")(http.HandlerFunc(allowlistHandlers.RemoveEntry)),
	).Methods(http.MethodDelete)
	security.Handle("/audit-logs",
		guards.RequireOperation("security.audit.query")(http.HandlerFunc(auditHandlers.QueryEvents)),
	).Methods(http.MethodGet)
	security.Handle("/audit-logs/export",
		guards.RequireOperation("security.audit.export")(http.HandlerFunc(auditHandlers.ExportEvents)),
	).Methods(http.MethodGet)

	auditMiddleware := audit.NewMiddleware(pipeline, logger, false)
	allowlistMiddleware := ipfilter.NewMiddleware(engine, logger)

	// These run after route matching so the metrics middleware can label
	// by route template instead of raw path.
	router.Use(
		metrics.HTTPMiddleware(routeName),
		identity.Middleware,
		allowlistMiddleware.Handler,
		auditMiddleware.Handler,
	)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)

	var handler http.Handler = chain(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "perimeter")
	}

	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func buildHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics) *http.Server {
	checker := observability.NewHealthChecker(db, redisClient, metrics)

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}

	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// routeName maps a request to its stable mux route template for metric
// labels, avoiding per-ID label cardinality.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
