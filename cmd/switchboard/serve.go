package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/dnscache"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/switchboard-ai/switchboard/internal/app"
	"github.com/switchboard-ai/switchboard/internal/audit"
	"github.com/switchboard-ai/switchboard/internal/auth"
	"github.com/switchboard-ai/switchboard/internal/cache"
	"github.com/switchboard-ai/switchboard/internal/circuitbreaker"
	"github.com/switchboard-ai/switchboard/internal/config"
	"github.com/switchboard-ai/switchboard/internal/cost"
	"github.com/switchboard-ai/switchboard/internal/ratelimit"
	"github.com/switchboard-ai/switchboard/internal/retry"
	"github.com/switchboard-ai/switchboard/internal/router"
	"github.com/switchboard-ai/switchboard/internal/server"
	"github.com/switchboard-ai/switchboard/internal/telemetry"
	"github.com/switchboard-ai/switchboard/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log := newLogger(cfg)
	log.Info("starting switchboard", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TraceEndpoint != "" {
		shutdown, err := telemetry.StartTracing(ctx, telemetry.TraceConfig{
			Endpoint:   cfg.TraceEndpoint,
			SampleRate: cfg.TraceSampleRate,
			Version:    version,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutCtx); err != nil {
				log.Warn("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := cache.NewSessions(cfg.RedisURL, log)
	if err != nil {
		return err
	}

	// Cached DNS keeps upstream reconnects cheap under connection churn.
	resolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(3 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				resolver.Refresh(true)
			}
		}
	}()

	registry := app.BuildRegistry(cfg, resolver)
	log.Info("tools registered", "tools", registry.List())

	auditLog := audit.NewLogger(log, store)
	costs := cost.NewTracker(log, store)
	var budget *cost.Budget
	if cfg.BudgetUSD > 0 {
		budget = cost.NewBudget(costs, cfg.BudgetUSD, 30*24*time.Hour)
	}

	contexts, err := newContextManager(cfg, store, log)
	if err != nil {
		return err
	}

	var toolLimits *ratelimit.Registry
	if cfg.API.ToolRateLimitPerMinute > 0 {
		toolLimits = ratelimit.NewRegistry(int64(cfg.API.ToolRateLimitPerMinute))
	}
	orch := app.New(app.Options{
		Log:      log,
		Registry: registry,
		Router:   router.New(cfg.Routing.Rules(), cfg.Routing.DefaultTool),
		Contexts: contexts,
		Breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()),
		Retry:    retry.DefaultPolicy(),
		Costs:    costs,
		Audit:    auditLog,
		Budget:   budget,
		Limits:   toolLimits,
	})

	apiKeys, err := auth.NewAPIKeyAuth(store, cfg.ValidAPIKey)
	if err != nil {
		return err
	}
	jwtAuth := auth.NewJWTAuth(cfg.JWTSecret, sessions)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(promReg)

	handler := server.New(server.Deps{
		Log:            log,
		Orchestrator:   orch,
		APIKeys:        apiKeys,
		JWT:            jwtAuth,
		Users:          store,
		Audit:          auditLog,
		AuditLogs:      store,
		DB:             store,
		Cache:          sessions,
		RateLimiter:    ratelimit.NewRegistry(int64(cfg.API.RateLimitPerMinute)),
		Metrics:        metrics,
		Registry:       promReg,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Development:    cfg.Development(),
		EnableCSRF:     cfg.EnableCSRF,
		MobileAPIKey:   cfg.MobileAPIKey,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewRunner(auditLog, costs).Run(ctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	log.Info("switchboard ready", "addr", cfg.Server.Addr)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("switchboard stopped")
	return nil
}
