package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cryptodesk/advisor-engine/internal/collector"
	"github.com/cryptodesk/advisor-engine/internal/config"
	"github.com/cryptodesk/advisor-engine/internal/dify"
	"github.com/cryptodesk/advisor-engine/internal/events"
	"github.com/cryptodesk/advisor-engine/internal/guard"
	"github.com/cryptodesk/advisor-engine/internal/holdings"
	"github.com/cryptodesk/advisor-engine/internal/report"
	"github.com/cryptodesk/advisor-engine/internal/scheduler"
	"github.com/cryptodesk/advisor-engine/internal/store"
	"github.com/cryptodesk/advisor-engine/internal/telemetry"
	"github.com/cryptodesk/advisor-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- AI channels ---
	aiOpts := []dify.ClientOption{
		dify.WithTimeout(cfg.AITimeout),
		dify.WithRateLimit(cfg.AIRequestsPerSec),
	}
	newsAI := dify.NewClient(cfg.DifyBaseURL, cfg.DifyNewsKey, "news", aiOpts...)
	metricsAI := dify.NewClient(cfg.DifyBaseURL, cfg.DifyMetricsKey, "metrics", aiOpts...)
	adviceAI := dify.NewClient(cfg.DifyBaseURL, cfg.DifyAdviceKey, "advice", aiOpts...)
	analysisAI := dify.NewClient(cfg.DifyBaseURL, cfg.DifyAnalysisKey, "analysis", aiOpts...)

	// --- WebSocket hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Services ---
	actionGuard := guard.NewActionGuard(cfg.MaxActionQuantity, cfg.MaxBatchNotional)
	engine := trade.NewEngine(st, actionGuard, hub)
	reportSvc := report.NewService(st, adviceAI, engine, hub)
	collectorSvc := collector.NewService(st, newsAI, metricsAI, analysisAI, reportSvc)
	holdingsSvc := holdings.NewService(st)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.AITimeout + 30*time.Second))
	r.Use(telemetry.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"advisor-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time report and trade events.
		r.Get("/ws", hub.HandleWS)

		// Portfolio holdings.
		r.Get("/holdings", holdingsSvc.ListHoldings)
		r.Post("/holdings", holdingsSvc.CreateHolding)
		r.Delete("/holdings", holdingsSvc.DeleteHoldings)
		r.Get("/holdings/{holdingID}", holdingsSvc.GetHolding)
		r.Put("/holdings/{holdingID}", holdingsSvc.UpdateHolding)
		r.Delete("/holdings/{holdingID}", holdingsSvc.DeleteHolding)

		// Market commentary messages.
		r.Get("/messages", collectorSvc.ListMessages)
		r.Post("/messages", collectorSvc.CreateMessage)
		r.Delete("/messages", collectorSvc.DeleteMessages)
		r.Get("/messages/{messageID}", collectorSvc.GetMessage)
		r.Put("/messages/{messageID}", collectorSvc.UpdateMessage)

		// On-demand collection runs.
		r.Post("/collect/messages", collectorSvc.CollectMessagesHandler)
		r.Post("/collect/metrics", collectorSvc.CollectMetricsHandler)

		// Investment reports and the approval workflow.
		r.Get("/reports", reportSvc.ListReports)
		r.Delete("/reports", reportSvc.DeleteReports)
		r.Post("/reports/generate", reportSvc.Generate)
		r.Post("/reports/generate-summary", reportSvc.GenerateSummaryReport)
		r.Get("/reports/{reportID}", reportSvc.GetReport)
		r.Post("/reports/{reportID}/approve", reportSvc.ApproveReport)
		r.Post("/reports/{reportID}/reject", reportSvc.RejectReport)
	})

	// --- Scheduler ---
	schedCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	sched := scheduler.New(
		scheduler.Job{
			Name:     "collect-messages",
			Interval: cfg.MessageInterval,
			Run: func(ctx context.Context) error {
				_, err := collectorSvc.CollectMessages(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "collect-metrics",
			Interval: cfg.MetricsInterval,
			Run: func(ctx context.Context) error {
				_, err := collectorSvc.CollectMetrics(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "summary-report",
			Interval: cfg.SummaryInterval,
			Run: func(ctx context.Context) error {
				_, err := reportSvc.GenerateSummary(ctx)
				return err
			},
		},
	)
	sched.Start(schedCtx)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AITimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("advisor-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down advisor-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("advisor-engine stopped")
}
