// Package ratelimit guards the WebSocket accept path with a per-IP limit.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/metrics"
)

// RateLimiter holds the per-IP limiter for WebSocket accepts. A nil
// *RateLimiter disables limiting entirely (dev mode).
type RateLimiter struct {
	wsIP *limiter.Limiter
}

// New builds a RateLimiter from a rate in ulule formatted notation,
// e.g. "100-M" for 100 connections per IP per minute. State lives in
// process memory; each replica enforces its own budget.
func New(wsIPRate string) (*RateLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(wsIPRate)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	return &RateLimiter{
		wsIP: limiter.New(memory.NewStore(), rate),
	}, nil
}

// CheckWebSocket reports whether a WebSocket connection from this client IP
// should be allowed. On refusal it writes the 429 response itself. Limiter
// store failures fail open.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	if rl == nil {
		return true
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}
