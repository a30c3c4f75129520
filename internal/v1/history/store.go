// Package history implements the per-room message store on Redis. Each room
// owns one document: a list of encrypted entries under a single key, so
// concurrent appends serialize at the store and insertion order is preserved.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/crypto"
	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/metrics"
	"github.com/gatherly/videochat/internal/v1/types"
)

// ErrStoreUnavailable wraps any Redis-level failure, including an open
// circuit breaker.
var ErrStoreUnavailable = errors.New("message store unavailable")

// storedMessage is the wire form of one entry inside a room document.
// The message field always holds a codec token, never cleartext.
type storedMessage struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the Redis-backed message store. It encrypts on append and
// decrypts on read through the crypto codec.
type Store struct {
	client *redis.Client
	codec  *crypto.Codec
	cb     *gobreaker.CircuitBreaker
}

// New creates a Store with a verified Redis connection.
func New(addr, password string, codec *crypto.Codec) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newWithClient(rdb, codec), nil
}

// NewWithClient wraps an existing Redis client. Used by tests (miniredis).
func NewWithClient(client *redis.Client, codec *crypto.Codec) *Store {
	return newWithClient(client, codec)
}

func newWithClient(client *redis.Client, codec *crypto.Codec) *Store {
	st := gobreaker.Settings{
		Name:        "history",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("history").Set(stateVal)
		},
	}

	return &Store{
		client: client,
		codec:  codec,
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

func roomKey(room types.RoomID) string {
	return fmt.Sprintf("room:%s:messages", room)
}

// InsertMessage encrypts the cleartext and appends it to the room document.
// The document is created implicitly on first append. The timestamp is
// assigned here at server-clock now, UTC.
func (s *Store) InsertMessage(ctx context.Context, room types.RoomID, user types.UserID, message string) error {
	token, err := s.codec.Encrypt(message)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}

	entry, err := json.Marshal(storedMessage{
		UserID:    string(user),
		Message:   token,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.RPush(ctx, roomKey(room), entry).Err()
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert").Inc()
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("history").Inc()
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.MessagesStored.Inc()
	return nil
}

// Messages returns all stored messages for a room in ascending timestamp
// order, decrypted. A missing document yields an empty slice. Entries that
// fail decryption are skipped with a log entry.
func (s *Store) Messages(ctx context.Context, room types.RoomID) ([]types.RoomMessage, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.LRange(ctx, roomKey(room), 0, -1).Result()
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("read").Inc()
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("history").Inc()
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	raw := res.([]string)
	messages := make([]types.RoomMessage, 0, len(raw))
	for _, item := range raw {
		var entry storedMessage
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			logging.Warn(ctx, "Skipping malformed history entry",
				zap.String("roomId", string(room)), zap.Error(err))
			continue
		}

		cleartext, err := s.codec.Decrypt(entry.Message)
		if err != nil {
			logging.Warn(ctx, "Skipping undecryptable history entry",
				zap.String("roomId", string(room)),
				zap.String("userId", entry.UserID),
				zap.Error(err))
			continue
		}

		messages = append(messages, types.RoomMessage{
			UserID:    entry.UserID,
			Message:   cleartext,
			Timestamp: entry.Timestamp,
		})
	}

	// Ties on timestamp keep insertion order.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return messages, nil
}

// Ping checks Redis connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("history").Inc()
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
