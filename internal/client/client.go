// Package client is the entry point of the feed SDK. A Client holds the
// public API key and the authenticated user, and lazily creates the REST
// transport and the shared push socket every feed of the session uses.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amiyamandal-dev/feedsync/internal/config"
	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/feed"
	"github.com/amiyamandal-dev/feedsync/internal/socket"
	"github.com/amiyamandal-dev/feedsync/internal/transport/rest"
	"github.com/amiyamandal-dev/feedsync/internal/validator"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

const (
	// DefaultHost is the feed API used when no host is configured
	DefaultHost = "http://localhost:12345"
	// DefaultSocketPath is the websocket endpoint on the API host
	DefaultSocketPath = "/ws/v1/websocket"
)

// Option configures a Client
type Option func(*Client)

// WithHost sets the API host
func WithHost(host string) Option {
	return func(c *Client) { c.host = strings.TrimRight(host, "/") }
}

// WithLogger sets the logger shared by the transport, socket and feeds
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithHTTP sets the request timeout and retry backoff of the transport
func WithHTTP(timeout time.Duration, maxRetries int, initial, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.httpCfg.Timeout = timeout
		c.httpCfg.MaxRetries = maxRetries
		c.httpCfg.InitialInterval = initial
		c.httpCfg.MaxInterval = maxInterval
	}
}

// WithSocket sets the websocket path, heartbeat interval and join timeout
func WithSocket(path string, heartbeat, joinTimeout time.Duration) Option {
	return func(c *Client) {
		if path != "" {
			c.socketPath = path
		}
		c.socketCfg.HeartbeatInterval = heartbeat
		c.socketCfg.ReplyTimeout = joinTimeout
	}
}

// WithReconcilePolicy sets how feeds reconcile optimistic status writes
// with the server outcome
func WithReconcilePolicy(policy feed.ReconcilePolicy) Option {
	return func(c *Client) { c.policy = policy }
}

// Client is one SDK session
type Client struct {
	apiKey     string
	host       string
	socketPath string
	httpCfg    rest.Config
	socketCfg  socket.Config
	policy     feed.ReconcilePolicy
	validator  *validator.Validator
	logger     *logger.Logger

	mu        sync.Mutex
	userID    string
	userToken string
	api       *rest.Client
	sock      *socket.Socket
	feeds     *Feeds
}

// New creates a client for a public API key. Secret keys are rejected.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.HasPrefix(apiKey, "sk_") {
		return nil, domain.ErrSecretKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", domain.ErrInvalidInput)
	}

	c := &Client{
		apiKey:     apiKey,
		host:       DefaultHost,
		socketPath: DefaultSocketPath,
		validator:  validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNop(c.logger).WithComponent("client")
	c.feeds = &Feeds{client: c}

	return c, nil
}

// FromConfig creates a client from loaded configuration and authenticates
// it when a user is configured
func FromConfig(cfg *config.Config, log *logger.Logger) (*Client, error) {
	c, err := New(cfg.API.Key,
		WithHost(cfg.API.Host),
		WithLogger(log),
		WithHTTP(cfg.HTTP.Timeout, cfg.HTTP.MaxRetries, cfg.HTTP.InitialInterval, cfg.HTTP.MaxInterval),
		WithSocket(cfg.Socket.Path, cfg.Socket.HeartbeatInterval, cfg.Socket.JoinTimeout),
	)
	if err != nil {
		return nil, err
	}

	if cfg.API.UserID != "" {
		c.Authenticate(cfg.API.UserID, cfg.API.UserToken)
	}
	return c, nil
}

// Authenticate sets the user the session acts for. Switching credentials
// tears down every initialized feed, drops the transport and disconnects
// the socket so nothing keeps acting as the previous user.
func (c *Client) Authenticate(userID, userToken string) {
	c.mu.Lock()
	if c.userID == userID && c.userToken == userToken {
		c.mu.Unlock()
		return
	}

	sock := c.sock
	c.userID = userID
	c.userToken = userToken
	c.api = nil
	c.sock = nil
	c.mu.Unlock()

	if err := c.feeds.teardownAll(context.Background()); err != nil {
		c.logger.Warn("Failed to tear down feeds of the previous user", "error", err)
	}
	if sock != nil {
		if err := sock.Disconnect(); err != nil {
			c.logger.Warn("Failed to disconnect previous socket", "error", err)
		}
	}
	c.logger.Info("Client authenticated", "user_id", userID)
}

// IsAuthenticated reports whether a user has been set
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID != ""
}

// UserID returns the authenticated user
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// API returns the REST transport, creating it on first use
func (c *Client) API() (*rest.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if c.api == nil {
		cfg := c.httpCfg
		cfg.Host = c.host
		cfg.APIKey = c.apiKey
		cfg.UserToken = c.userToken
		c.api = rest.New(cfg, c.logger)
	}
	return c.api, nil
}

// Socket returns the shared push socket, creating it on first use. It is
// not connected until a feed listens for updates.
func (c *Client) Socket() (*socket.Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if c.sock == nil {
		cfg := c.socketCfg
		cfg.URL = socket.EndpointFromHost(c.host, c.socketPath)
		cfg.Params = url.Values{
			"api_key":    {c.apiKey},
			"user_token": {c.userToken},
		}
		c.sock = socket.New(cfg, c.logger)
	}
	return c.sock, nil
}

// Feeds returns the feed registry of the session
func (c *Client) Feeds() *Feeds {
	return c.feeds
}

// Teardown tears down every initialized feed and disconnects the socket
func (c *Client) Teardown(ctx context.Context) error {
	errs := []error{c.feeds.teardownAll(ctx)}

	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		errs = append(errs, sock.Disconnect())
	}
	return errors.Join(errs...)
}
