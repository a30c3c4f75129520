// Package health exposes the liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/connectivity"

	"github.com/gatherly/videochat/internal/v1/logging"
)

// Pinger is anything with a connectivity probe (the Redis message store,
// the sqlite event store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnStater reports a gRPC connection state (the auth client).
type ConnStater interface {
	State() connectivity.State
}

// Handler manages health check endpoints.
type Handler struct {
	messageStore Pinger
	eventStore   Pinger
	auth         ConnStater
}

// NewHandler creates a health check handler. Any nil dependency is skipped
// in readiness checks.
func NewHandler(messageStore, eventStore Pinger, auth ConnStater) *Handler {
	return &Handler{
		messageStore: messageStore,
		eventStore:   eventStore,
		auth:         auth,
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /healthz/live.
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /healthz/ready.
// Returns 200 only if all wired dependencies are healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.messageStore != nil {
		status := h.checkPing(ctx, "redis", h.messageStore)
		checks["redis"] = status
		if status != "healthy" {
			allHealthy = false
		}
	}

	if h.eventStore != nil {
		status := h.checkPing(ctx, "sqlite", h.eventStore)
		checks["sqlite"] = status
		if status != "healthy" {
			allHealthy = false
		}
	}

	if h.auth != nil {
		checks["auth"] = h.checkAuth()
		// The auth connection dials lazily; a down auth service degrades the
		// reminder routes but not the core, so it never flips readiness.
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkPing(ctx context.Context, name string, p Pinger) string {
	if err := p.Ping(ctx); err != nil {
		logging.Error(ctx, "Health check failed", zap.String("check", name), zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkAuth() string {
	switch h.auth.State() {
	case connectivity.Ready, connectivity.Idle:
		return "healthy"
	default:
		return "degraded"
	}
}
