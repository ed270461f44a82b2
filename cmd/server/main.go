// Debate Panel - operator console server for the multi-agent conversation backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ashureev/debate-panel/internal/api"
	"github.com/ashureev/debate-panel/internal/config"
	"github.com/ashureev/debate-panel/internal/conversation"
	"github.com/ashureev/debate-panel/internal/gateway"
	"github.com/ashureev/debate-panel/internal/health"
	"github.com/ashureev/debate-panel/internal/identity"
	"github.com/ashureev/debate-panel/internal/live"
	"github.com/ashureev/debate-panel/internal/metrics"
	"github.com/ashureev/debate-panel/internal/middleware"
	"github.com/ashureev/debate-panel/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.Backend.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Conversation backend.
	client, err := gateway.NewClient(gateway.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation backend client", "error", err)
		os.Exit(1)
	}

	ctrl := conversation.NewController(client, conversation.Options{
		SyncInterval: cfg.Sync.Interval,
		Logger:       logger,
		Metrics:      m,
	})
	defer ctrl.Close()

	// Warm the catalog; the panel can refresh it later if the backend is still starting.
	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.Backend.Timeout)
	if _, err := ctrl.LoadBusinesses(loadCtx); err != nil {
		slog.Warn("Initial business catalog load failed", "error", err)
	}
	cancelLoad()

	// Health probing and optional gRPC health endpoint.
	prober := health.NewProber(client, cfg.Health.ProbeInterval, m, logger)
	var grpcHealth *health.Server
	if cfg.Health.GRPCAddr != "" {
		ln, err := net.Listen("tcp", cfg.Health.GRPCAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.Health.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcHealth = health.NewServer(logger)
		prober.OnChange(grpcHealth.SetBackendUp)
		go func() {
			if err := grpcHealth.Serve(ln); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}
	prober.Start(ctx)

	// Initialize handlers.
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	panelHandler := api.NewPanelHandler(api.NewHandler(ctrl, logger), limiter.Middleware)
	healthHandler := api.NewHealthHandler(client)
	cm := live.NewConnManager()
	wsHandler := live.NewWebSocketHandler(ctrl, cm, live.Config{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		PingInterval:  cfg.WSPingInterval,
	}, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler(reg))

	panelHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/panel", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSockets are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cm.CloseAll("server shutting down")
	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
