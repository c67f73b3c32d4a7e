package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Strob0t/CodeCouncil/internal/adapter/discord"
	cchttp "github.com/Strob0t/CodeCouncil/internal/adapter/http"
	ccmcp "github.com/Strob0t/CodeCouncil/internal/adapter/mcp"
	"github.com/Strob0t/CodeCouncil/internal/adapter/memstore"
	ccnats "github.com/Strob0t/CodeCouncil/internal/adapter/nats"
	"github.com/Strob0t/CodeCouncil/internal/adapter/natskv"
	ccotel "github.com/Strob0t/CodeCouncil/internal/adapter/otel"
	"github.com/Strob0t/CodeCouncil/internal/adapter/postgres"
	"github.com/Strob0t/CodeCouncil/internal/adapter/ristretto"
	"github.com/Strob0t/CodeCouncil/internal/adapter/sandboxhttp"
	"github.com/Strob0t/CodeCouncil/internal/adapter/tiered"
	"github.com/Strob0t/CodeCouncil/internal/adapter/webhook"
	"github.com/Strob0t/CodeCouncil/internal/adapter/ws"
	"github.com/Strob0t/CodeCouncil/internal/config"
	"github.com/Strob0t/CodeCouncil/internal/git"
	"github.com/Strob0t/CodeCouncil/internal/logger"
	"github.com/Strob0t/CodeCouncil/internal/middleware"
	"github.com/Strob0t/CodeCouncil/internal/port/cache"
	"github.com/Strob0t/CodeCouncil/internal/port/messagequeue"
	"github.com/Strob0t/CodeCouncil/internal/port/notifier"
	"github.com/Strob0t/CodeCouncil/internal/port/sessionstore"
	"github.com/Strob0t/CodeCouncil/internal/resilience"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

const (
	shutdownTimeout  = 10 * time.Second
	rateCleanupEvery = time.Minute
	healthTimeout    = 3 * time.Second
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(*configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"council_backend", cfg.Council.Backend,
		"sandbox_url", cfg.Implementer.SandboxURL,
	)

	// --- Telemetry ---

	otelShutdown, err := ccotel.Setup(ctx, cfg.OTEL, cfg.Logging.Service, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := ccotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	var checks []cchttp.HealthCheck

	// --- Session store ---

	var store sessionstore.Store
	var pool *pgxpool.Pool
	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err = postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
		checks = append(checks, cchttp.HealthCheck{Name: "postgres", Check: pool.Ping})
		slog.Info("postgres session store ready")
	} else {
		store = memstore.New()
		slog.Info("in-memory session store ready")
	}

	// --- NATS and report cache ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	var queue messagequeue.Queue
	var l2 cache.Cache
	sinks := []notifier.Sink{}
	if cfg.NATS.URL != "" {
		nq, err := ccnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = nq.Close() }()
		queue = nq

		kv, err := nq.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.TTL)
		if err != nil {
			slog.Warn("nats kv unavailable, report cache is process-local", "error", err)
		} else {
			l2 = natskv.New(kv, "report")
		}

		sinks = append(sinks, ccnats.NewProgressSink(nq))
		checks = append(checks, cchttp.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !nq.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}})
	}
	reportCache := tiered.New(l1, l2, cfg.Cache.TTL)

	// --- LLM providers and council ---

	router := buildRouter(ctx, cfg)
	reviews := service.NewReviewService(router, cfg.Council.CallTimeout, reportCache, cfg.Cache.TTL, queue, metrics)

	var deliberator cchttp.Deliberator
	members, chairman, chairmanModel, err := buildCouncil(cfg, router)
	if err != nil {
		slog.Warn("council disabled", "error", err)
		deliberator = unavailableCouncil{err: err}
	} else {
		deliberator = service.NewDeliberationPipeline(members, chairman, service.DeliberationConfig{
			Temperature:        cfg.Council.Temperature,
			RankingTemperature: cfg.Council.RankingTemperature,
			ChairmanModel:      chairmanModel,
			ChairmanMaxTokens:  cfg.Council.ChairmanMaxTokens,
			CallTimeout:        cfg.Council.CallTimeout,
		}, queue, metrics)
	}

	// --- Implementer ---

	if err := git.Available(); err != nil {
		slog.Warn("git unavailable, commits will fail", "error", err)
	}
	sandboxClient := sandboxhttp.NewClient(cfg.Implementer.SandboxURL)
	sandboxClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	checks = append(checks, cchttp.HealthCheck{Name: "sandbox", Check: func(ctx context.Context) error {
		if !sandboxClient.Healthy(ctx) {
			return errors.New("unreachable")
		}
		return nil
	}})

	hub := ws.NewHub()
	sinks = append(sinks, hub)
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, webhook.NewSink(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		sinks = append(sinks, discord.NewSink(cfg.Notify.DiscordWebhookURL))
	}
	progress := service.NewProgressNotifier(sinks, cfg.Notify.QueueSize, cfg.Notify.Timeout)
	defer progress.Close()

	repo := git.NewRepo(git.NewPool(cfg.Git.MaxConcurrent), cfg.Git.AuthorName, cfg.Git.AuthorEmail)
	implementer := service.NewImplementer(service.ImplementerConfig{
		WorkspaceRoot:      cfg.Implementer.WorkspaceRoot,
		DefaultEnvironment: cfg.Implementer.DefaultEnvironment,
		MaxIterations:      cfg.Implementer.MaxIterations,
		MaxAttempts:        cfg.Implementer.MaxAttempts,
		Backoff:            cfg.Implementer.Backoff,
		SandboxLifetime:    cfg.Implementer.SandboxLifetime,
		ExecuteTimeout:     cfg.Implementer.ExecuteTimeout,
	}, store, sandboxClient, service.TemplateGenerator{}, repo, progress, metrics)

	// --- HTTP ---

	handlers := &cchttp.Handlers{
		Reviews:        reviews,
		Council:        deliberator,
		Sessions:       implementer,
		Providers:      router.Available,
		Checks:         withTimeout(checks),
		BodyLimit:      cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	}

	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		deps := ccmcp.ServerDeps{Reviews: reviews, Planner: deliberator, Sessions: implementer}
		mcpHandler = ccmcp.NewServer(ccmcp.ServerConfig{
			Name:    "codecouncil",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, deps).Handler()
		slog.Info("mcp server enabled", "path", "/mcp")
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(rateCleanupEvery, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(ccotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cchttp.SecurityHeaders)
	r.Use(cchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cchttp.Logger)
	r.Use(limiter.Handler)

	cchttp.MountRoutes(r, handlers, hub.HandleWS, mcpHandler)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := implementer.Wait(shutdownCtx); err != nil {
		slog.Warn("implementation sessions still running at shutdown", "error", err)
	}
	return nil
}

// withTimeout bounds each health probe so one slow dependency cannot stall /health.
func withTimeout(checks []cchttp.HealthCheck) []cchttp.HealthCheck {
	out := make([]cchttp.HealthCheck, len(checks))
	for i, c := range checks {
		check := c.Check
		out[i] = cchttp.HealthCheck{Name: c.Name, Check: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, healthTimeout)
			defer cancel()
			return check(ctx)
		}}
	}
	return out
}
