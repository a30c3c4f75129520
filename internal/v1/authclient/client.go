// Package authclient is the gRPC probe against the Authentication service.
// One method, no retries, no caching: callers decide policy from the two
// sentinel errors.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/gatherly/videochat/gen/authpb"
)

var (
	// ErrAuthUnavailable means the Authentication service could not answer.
	// HTTP boundaries map it to 503.
	ErrAuthUnavailable = errors.New("auth service unavailable")
	// ErrUserNotFound means the service answered and the email is not a
	// registered user. HTTP boundaries map it to 404.
	ErrUserNotFound = errors.New("user not found")
)

// DefaultTimeout bounds a single ValidateUser call.
const DefaultTimeout = 2 * time.Second

// Client wraps the AuthService gRPC stub.
type Client struct {
	conn    *grpc.ClientConn
	api     pb.AuthServiceClient
	timeout time.Duration
}

// New creates a Client against addr. A non-positive timeout falls back to
// DefaultTimeout. The connection dials lazily; a down auth service surfaces
// per-call as ErrAuthUnavailable, not here.
func New(addr string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		conn:    conn,
		api:     pb.NewAuthServiceClient(conn),
		timeout: timeout,
	}, nil
}

// NewWithConn wraps an existing connection. Used by tests (bufconn).
func NewWithConn(conn *grpc.ClientConn, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{conn: conn, api: pb.NewAuthServiceClient(conn), timeout: timeout}
}

// ValidateUser asks the Authentication service whether email belongs to a
// registered user. nil means yes; ErrUserNotFound means no;
// ErrAuthUnavailable covers every transport-level outcome including timeout.
func (c *Client) ValidateUser(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.ValidateUser(ctx, &pb.ValidateUserRequest{Email: email})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	if !resp.GetIsValid() {
		return ErrUserNotFound
	}
	return nil
}

// State reports the current gRPC connection state. Used by readiness probes.
func (c *Client) State() connectivity.State {
	return c.conn.GetState()
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
