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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/gatherly/videochat/internal/v1/api"
	"github.com/gatherly/videochat/internal/v1/authclient"
	"github.com/gatherly/videochat/internal/v1/config"
	"github.com/gatherly/videochat/internal/v1/crypto"
	"github.com/gatherly/videochat/internal/v1/eventstore"
	"github.com/gatherly/videochat/internal/v1/health"
	"github.com/gatherly/videochat/internal/v1/history"
	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/mailer"
	"github.com/gatherly/videochat/internal/v1/middleware"
	"github.com/gatherly/videochat/internal/v1/ratelimit"
	"github.com/gatherly/videochat/internal/v1/registry"
	"github.com/gatherly/videochat/internal/v1/scheduler"
	"github.com/gatherly/videochat/internal/v1/signaling"
	"github.com/gatherly/videochat/internal/v1/tracing"
	"github.com/gatherly/videochat/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// --- Tracing (optional) ---
	var tracingEnabled bool
	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(context.Background(), "videochat", cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("Failed to initialize tracing", "error", err)
		} else {
			tracingEnabled = true
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
			slog.Info("✅ Tracing initialized", "endpoint", cfg.OTLPEndpoint)
		}
	}

	// --- Crypto codec ---
	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		slog.Error("Failed to build crypto codec", "error", err)
		os.Exit(1)
	}

	// --- Message store (Redis) ---
	messageStore, err := history.New(cfg.RedisAddr, cfg.RedisPassword, codec)
	if err != nil {
		slog.Error("Failed to connect to message store", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Message store connected", "addr", cfg.RedisAddr)

	// --- Event store (sqlite) ---
	events, err := eventstore.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("Failed to open event store", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Event store opened", "path", cfg.SQLitePath)

	// --- Auth client (gRPC, dials lazily) ---
	auth, err := authclient.New(cfg.AuthAddr, cfg.AuthTimeout)
	if err != nil {
		slog.Error("Failed to create auth client", "error", err)
		os.Exit(1)
	}

	// --- Mail sink ---
	mail, err := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     fmt.Sprintf("%d", cfg.SMTPPort),
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
	})
	if err != nil {
		slog.Error("Failed to create mailer", "error", err)
		os.Exit(1)
	}

	// --- Rate limiter (disabled in dev mode) ---
	var limiter *ratelimit.RateLimiter
	if !cfg.DevelopmentMode {
		limiter, err = ratelimit.New(cfg.RateLimitWsIP)
		if err != nil {
			slog.Error("Failed to create rate limiter", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("⚠️  Rate limiting DISABLED for development")
	}

	// --- Signaling core ---
	reg := registry.New()
	router := signaling.NewRouter(reg, messageStore)
	hub := transport.NewHub(reg, router, limiter)

	// --- Reminder scheduler ---
	sched := scheduler.New(events, mail, cfg.ReminderInterval, cfg.ReminderWindow)
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	// --- HTTP server ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())
	if tracingEnabled {
		engine.Use(otelgin.Middleware("videochat"))
	}

	// CORS is permissive: all origins, methods and headers
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	engine.Use(cors.New(corsConfig))

	// Routing
	control := api.NewHandler(events, auth)
	engine.GET("/", control.Welcome)
	engine.GET("/room/", control.JoinRoom)
	engine.POST("/reminders", control.CreateReminder)
	engine.GET("/events/:id", control.GetEvent)

	engine.GET("/ws/:roomId/:userId", hub.ServeWs)

	// Prometheus metrics endpoint
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(messageStore, events, auth)
	engine.GET("/healthz/live", healthHandler.Liveness)
	engine.GET("/healthz/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	// --- Graceful Shutdown ---
	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the scheduler; an in-flight tick finishes its current reminder.
	stopScheduler()

	// Close all active WebSocket connections gracefully
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	if err := messageStore.Close(); err != nil {
		slog.Error("Failed to close message store:", "error", err)
	}
	if err := events.Close(); err != nil {
		slog.Error("Failed to close event store:", "error", err)
	}
	if err := auth.Close(); err != nil {
		slog.Error("Failed to close auth client:", "error", err)
	}

	slog.Info("Server exiting")
}
