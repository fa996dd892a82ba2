package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plannerhq/plansearch/pkg/async"
	"github.com/plannerhq/plansearch/pkg/config"
	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
	"github.com/plannerhq/plansearch/pkg/search"
	"github.com/plannerhq/plansearch/pkg/storage/postgres"
)

var (
	runOnce     = flag.Bool("run-once", false, "Rebuild once and exit (for operators and testing)")
	entityFlag  = flag.String("entity", "", "Entity type to rebuild with -run-once (plan|communication); empty rebuilds all")
	skipMigrate = flag.Bool("skip-migrations", false, "Skip running index schema migrations on startup")
	metricsAddr = flag.String("metrics-addr", ":9290", "Listen address for the /metrics endpoint")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "search-refresher")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := observability.ShutdownOTel(shutdownCtx, providers, logger); err != nil {
			logger.WithError(err).Warn("OpenTelemetry shutdown failed")
		}
	}()

	connections, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer connections.Close()

	if !*skipMigrate {
		if err := search.RunMigrations(ctx, connections.Primary(), logger); err != nil {
			logger.WithError(err).Error("Failed to run migrations")
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var flusher search.CacheFlusher
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisURL,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer redisClient.Close()

		cache, err := search.NewProjectionCache(cfg.Cache.L1Size, redisClient, cfg.Cache.TTL, metrics, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to create projection cache")
			os.Exit(1)
		}
		flusher = cache
	}

	projector := search.NewProjector(connections.Primary())
	store := search.NewPostgresIndexStore(connections.Primary(), connections.Replica(), projector, logger)
	scheduler := search.NewScheduler(store, flusher, search.SchedulerConfig{
		Schedule:              cfg.Refresh.Schedule,
		RebuildTimeout:        cfg.Refresh.RebuildTimeout,
		FailureAlertThreshold: cfg.Refresh.FailureAlertThreshold,
	}, metrics, logger)

	if *runOnce {
		if err := rebuildOnce(ctx, scheduler, *entityFlag, logger); err != nil {
			os.Exit(1)
		}
		return
	}

	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		observability.RegisterMetricsEndpoint(mux, registry)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, checkCancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer checkCancel()
			if err := connections.HealthCheck(checkCtx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			logger.Infof("Metrics endpoint listening on %s", *metricsAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	connections.StartHealthCheckRoutine(ctx, 30*time.Second)

	async.Loop(ctx, 15*time.Second, "pool metrics", logger, func(context.Context) {
		connections.PublishPoolMetrics(metrics)
	})

	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Error("Failed to start refresh scheduler")
		os.Exit(1)
	}

	// Populate the snapshots immediately instead of waiting a full interval
	async.SafeGoNoError(ctx, 2*cfg.Refresh.RebuildTimeout, "initial rebuild", logger, scheduler.RebuildAll)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully")
	scheduler.Stop()
	logger.Info("Search refresher stopped")
}

func rebuildOnce(ctx context.Context, scheduler *search.Scheduler, entity string, logger *observability.Logger) error {
	if entity == "" {
		scheduler.RebuildAll(ctx)
		logger.Info("Rebuild of all entity types completed")
		return nil
	}

	entityType, err := planning.ParseEntityType(entity)
	if err != nil {
		logger.WithError(err).Error("Invalid -entity value")
		return err
	}

	stats, err := scheduler.TriggerRebuild(ctx, entityType)
	if err != nil {
		logger.WithError(err).Errorf("Rebuild of %s failed", entityType)
		return err
	}

	logger.WithFields(map[string]interface{}{
		"entity_type": string(entityType),
		"documents":   stats.Documents,
		"duration_ms": stats.Duration.Milliseconds(),
		"run_id":      stats.RunID,
	}).Info("Rebuild completed")
	return nil
}
