package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the room messaging and signaling core.
//
// Naming convention: namespace_subsystem_name
// - namespace: videochat (application-level grouping)
// - subsystem: websocket, room, store, scheduler (feature-level grouping)
//
// Metric Types:
// - Gauge: current state (connections, rooms, participants)
// - Counter: cumulative events (frames routed, reminders sent, errors)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms with at least one live connection
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomConnections tracks the number of live connections per room
	RoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "room",
		Name:      "connections_count",
		Help:      "Number of live connections in each room",
	}, []string{"room_id"})

	// FramesRouted counts inbound frames by kind and routing outcome
	FramesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total WebSocket frames routed",
	}, []string{"frame_type", "status"})

	// MessagesStored counts chat messages appended to the message store
	MessagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "store",
		Name:      "messages_stored_total",
		Help:      "Total chat messages appended to the message store",
	})

	// StoreErrors counts message store failures by operation
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Total message store failures",
	}, []string{"operation"})

	// RemindersSent counts reminder emails by outcome
	RemindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "scheduler",
		Name:      "reminders_total",
		Help:      "Total reminder notifications attempted",
	}, []string{"status"})

	// SchedulerTicks counts completed scheduler ticks
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Total completed reminder scheduler ticks",
	})

	// CircuitBreakerState reports breaker state per backend (0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "store",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	// RateLimitExceeded counts connections refused by the rate limiter
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total connection attempts refused by the rate limiter",
	}, []string{"scope"})

	// CircuitBreakerFailures counts requests rejected by an open breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "store",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total requests rejected by an open circuit breaker",
	}, []string{"backend"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
