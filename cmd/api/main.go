// Package main is the entry point for the tracking API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tandogan/livetrack/internal/api"
	"github.com/tandogan/livetrack/internal/auth"
	"github.com/tandogan/livetrack/internal/config"
	"github.com/tandogan/livetrack/internal/health"
	"github.com/tandogan/livetrack/internal/location"
	"github.com/tandogan/livetrack/internal/middleware"
	"github.com/tandogan/livetrack/internal/registry"
	"github.com/tandogan/livetrack/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Livetrack API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	// Database
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database not reachable at startup", "error", err)
	}
	cancelPing()

	// Redis is optional; without it rate limits stay in process memory.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	streamMetrics := stream.NewMetrics()
	if err := streamMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register stream metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	// Core components
	repo := location.NewPostgresRepository(db)
	connRegistry := registry.New()
	broadcaster := stream.NewBroadcaster(repo, connRegistry, streamMetrics)

	var jwtSvc *auth.JWTService
	if cfg.JWTSecretPrevious != "" {
		jwtSvc = auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTSecretPrevious)
	} else {
		jwtSvc = auth.NewJWTService(cfg.JWTSecret)
	}

	// Rate limiting
	var limitStore middleware.RateLimitStore
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
		limitStore = memStore
	}
	ingestLimit := middleware.RateLimiter(limitStore, middleware.DefaultIngestLimit(), middleware.UserKeyFunc())
	queryLimit := middleware.RateLimiter(limitStore, middleware.DefaultQueryLimit(), middleware.UserKeyFunc())

	// Handlers
	trackingHandlers := api.NewTrackingHandlers(repo, streamMetrics)
	wsHandlers := api.NewWSHandlers(jwtSvc, repo, connRegistry, broadcaster, streamMetrics, cfg.AllowedOrigins)

	var redisChecker api.HealthChecker
	if redisClient != nil {
		redisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(db),
		RedisChecker: redisChecker,
	})

	requireAuth := middleware.RequireAuth(jwtSvc)
	requireAdmin := middleware.RequireRole(auth.RoleAdmin)
	requireAdminKey := middleware.RequireAdminKey(cfg.AdminAPIKey)

	mux := http.NewServeMux()

	// REST surface
	mux.Handle("/tracking/point", requireAuth(ingestLimit(http.HandlerFunc(trackingHandlers.PostPoint))))
	mux.Handle("/tracking/my/day", requireAuth(queryLimit(http.HandlerFunc(trackingHandlers.MyDay))))
	mux.Handle("/tracking/admin/last", requireAuth(requireAdmin(queryLimit(http.HandlerFunc(trackingHandlers.AdminLast)))))
	mux.Handle("/tracking/admin/users/", requireAuth(requireAdmin(queryLimit(http.HandlerFunc(trackingHandlers.AdminUserDay)))))
	mux.Handle("/tracking/points/", requireAdminKey(http.HandlerFunc(trackingHandlers.UpdatePoint)))
	mux.Handle("/tracking/admin/", requireAdminKey(http.HandlerFunc(trackingHandlers.DeleteUserDay)))

	// Live channels; the token travels as a query parameter, not a header.
	mux.HandleFunc("/tracking/ws/track", wsHandlers.TrackWS)
	mux.HandleFunc("/tracking/ws/admin", wsHandlers.AdminWS)

	// Probes and metrics
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	// Apply middleware: RequestID -> CORS -> HTTPMetrics -> Logging
	corsMw := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		MaxAge:           600,
	})
	handler := middleware.RequestID(corsMw(middleware.HTTPMetrics(httpMetrics)(middleware.Logging(logger)(mux))))

	// No blanket read/write timeouts: the tracking sockets are long-lived.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
