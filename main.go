package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/activities"
	"github.com/scanforge/diligence/internal/config"
	"github.com/scanforge/diligence/internal/db"
	"github.com/scanforge/diligence/internal/evidence"
	"github.com/scanforge/diligence/internal/generator"
	"github.com/scanforge/diligence/internal/health"
	"github.com/scanforge/diligence/internal/httpapi"
	"github.com/scanforge/diligence/internal/llm"
	"github.com/scanforge/diligence/internal/planner"
	"github.com/scanforge/diligence/internal/reflection"
	"github.com/scanforge/diligence/internal/registry"
	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/temporal"
	"github.com/scanforge/diligence/internal/thesis"
	"github.com/scanforge/diligence/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	store, err := db.NewClient(&db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		IdleConnections: cfg.Database.IdleConnections,
		MaxLifetime:     cfg.Database.MaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	library := thesis.Load()

	llmClient := llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	providers := make([]evidence.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		types := make([]scan.EvidenceType, len(pc.Types))
		for i, t := range pc.Types {
			types[i] = scan.EvidenceType(t)
		}
		providers = append(providers, evidence.NewHTTPProvider(evidence.HTTPProviderConfig{
			Name:              pc.Name,
			BaseURL:           pc.BaseURL,
			Path:              pc.Path,
			Types:             types,
			CredibilityPrior:  pc.CredibilityPrior,
			Timeout:           pc.Timeout,
			RequestsPerSecond: pc.RequestsPerSecond,
		}))
	}

	cache := evidence.NewRetrievalCache(rdb, cfg.Redis.CacheTTL, logger)
	collectorCfg := evidence.DefaultCollectorConfig()
	if cfg.Collector.MaxConcurrent > 0 {
		collectorCfg.MaxConcurrent = cfg.Collector.MaxConcurrent
	}
	if cfg.Collector.MaxAttempts > 0 {
		collectorCfg.MaxAttempts = cfg.Collector.MaxAttempts
	}
	if cfg.Collector.BaseBackoff > 0 {
		collectorCfg.BaseBackoff = cfg.Collector.BaseBackoff
	}
	if cfg.Collector.SimilarityThreshold > 0 {
		collectorCfg.SimilarityThreshold = cfg.Collector.SimilarityThreshold
	}
	collector := evidence.NewCollector(evidence.NewRegistry(providers...), cache, store, collectorCfg, logger)

	engine := reflection.New(reflection.Config{
		MaxIterations: cfg.Reflection.MaxIterations,
		PartialFloor:  cfg.Reflection.PartialFloor,
	}, llm.NewQueryRefiner(llmClient, logger), logger)

	sectionGenerator := generator.New(llmClient, generator.DefaultConfig(), logger)
	claimPlanner := planner.New(library, logger)

	acts := activities.NewActivities(store, library, claimPlanner, collector, engine, sectionGenerator, logger)

	// Admin endpoints come up first so probes answer while Temporal is
	// still connecting.
	hm := health.NewManager(5*time.Second, logger)
	hm.Register(health.CheckerFunc{ComponentName: "postgres", Fn: store.HealthCheck})
	hm.Register(health.CheckerFunc{ComponentName: "redis", Fn: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})

	adminMux := http.NewServeMux()
	adminMux.Handle("/healthz", hm.LivenessHandler())
	adminMux.Handle("/readyz", hm.ReadinessHandler())
	adminMux.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler: adminMux,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Server.AdminPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server exited", zap.Error(err))
		}
	}()

	apiMux := http.NewServeMux()
	apiSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("Scan API listening", zap.Int("port", cfg.Server.Port))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Scan API server exited", zap.Error(err))
		}
	}()

	// Temporal comes up asynchronously with retry; the scan API routes are
	// registered once the client is ready.
	var wk worker.Worker
	go func() {
		host := cfg.Temporal.HostPort
		for i := 1; i <= 60; i++ {
			c, err := net.DialTimeout("tcp", host, 2*time.Second)
			if err == nil {
				_ = c.Close()
				break
			}
			logger.Warn("Waiting for Temporal TCP endpoint", zap.String("host", host), zap.Int("attempt", i))
			time.Sleep(time.Second)
		}

		var tClient client.Client
		for attempt := 1; ; attempt++ {
			tClient, err = client.Dial(client.Options{
				HostPort:  host,
				Namespace: cfg.Temporal.Namespace,
				Logger:    temporal.NewZapAdapter(logger),
			})
			if err == nil {
				break
			}
			delay := time.Duration(attempt) * time.Second
			if delay > 15*time.Second {
				delay = 15 * time.Second
			}
			logger.Warn("Temporal not ready, retrying",
				zap.Int("attempt", attempt),
				zap.String("host", host),
				zap.Error(err),
			)
			time.Sleep(delay)
		}

		httpapi.NewScanHandler(store, tClient, library, logger, cfg.Server.AuthToken).RegisterRoutes(apiMux)
		logger.Info("Scan API routes registered")

		wk = worker.New(tClient, workflows.TaskQueue, worker.Options{})
		registry.New(logger, acts).Register(wk)
		logger.Info("Temporal worker started", zap.String("queue", workflows.TaskQueue))
		if err := wk.Run(worker.InterruptCh()); err != nil {
			logger.Error("Temporal worker exited with error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down scan service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	if wk != nil {
		wk.Stop()
	}
}
