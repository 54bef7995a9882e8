// Package rest is the HTTP transport of the feed API. Requests are retried
// with exponential backoff on network errors, 5xx and 429 responses; every
// outcome is reported as a Result rather than an error.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// ClientName is sent in the X-Client header
const ClientName = "feedsync-go"

// Config holds the connection settings of the transport
type Config struct {
	Host            string
	APIKey          string
	UserToken       string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client performs feed API requests
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *logger.Logger
}

// New creates a transport for cfg
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.OrNop(log).WithComponent("rest-client"),
	}
}

// Host returns the base URL requests are sent to
func (c *Client) Host() string {
	return c.cfg.Host
}

// Do sends req, retrying transient failures. It never panics on transport
// failure; inspect Result.StatusCode.
func (c *Client) Do(ctx context.Context, req Request) Result {
	var payload []byte
	if req.Data != nil {
		b, err := json.Marshal(req.Data)
		if err != nil {
			return errorResult(0, nil, fmt.Errorf("failed to encode request body: %w", err))
		}
		payload = b
	}

	target, err := c.buildURL(req)
	if err != nil {
		return errorResult(0, nil, err)
	}

	requestID := uuid.NewString()
	var last Result

	operation := func() (Result, error) {
		res, err := c.attempt(ctx, req.Method, target, payload, requestID)
		last = res
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Retrying feed API request",
				"method", req.Method,
				"path", req.Path,
				"request_id", requestID,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		c.logger.Error("Feed API request failed",
			"method", req.Method,
			"path", req.Path,
			"request_id", requestID,
			"status", last.Status,
			"error", err,
		)
		return errorResult(last.Status, last.Body, err)
	}

	return res
}

// attempt performs one round trip. Retryable failures are returned as
// plain errors, everything else as a Result with a nil or permanent error.
func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, requestID string) (Result, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	c.setHeaders(httpReq, requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, backoff.Permanent(err)
		}
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: resp.StatusCode}, fmt.Errorf("failed to read response body: %w", err)
	}

	res := Result{Status: resp.StatusCode, Body: data}
	if len(bytes.TrimSpace(data)) == 0 {
		res.Body = nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		statusErr := &StatusError{Status: resp.StatusCode, Body: data}
		if wait, ok := c.retryAfter(resp.Header); ok {
			return res, fmt.Errorf("%w: %w", statusErr, &backoff.RetryAfterError{Duration: wait})
		}
		return res, statusErr
	case resp.StatusCode >= 300:
		return res, backoff.Permanent(&StatusError{Status: resp.StatusCode, Body: data})
	}

	res.StatusCode = OutcomeOK
	return res, nil
}

func (c *Client) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client", ClientName)
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.UserToken != "" {
		req.Header.Set("X-User-Token", c.cfg.UserToken)
	}
}

func (c *Client) buildURL(req Request) (string, error) {
	if c.cfg.Host == "" {
		return "", fmt.Errorf("%w: host is not configured", domain.ErrInvalidInput)
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.Host, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid request URL: %w", err)
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for key, values := range req.Params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// retryAfter reads a Retry-After header in seconds, capped at MaxInterval
func (c *Client) retryAfter(h http.Header) (time.Duration, bool) {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	wait := time.Duration(secs) * time.Second
	if c.cfg.MaxInterval > 0 && wait > c.cfg.MaxInterval {
		wait = c.cfg.MaxInterval
	}
	return wait, true
}

func errorResult(status int, body []byte, err error) Result {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && status == 0 {
		status = statusErr.Status
	}
	return Result{
		StatusCode: OutcomeError,
		Status:     status,
		Body:       body,
		Err:        err,
	}
}
