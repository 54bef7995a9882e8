package rest

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// Outcome is the coarse result of a request
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Request describes one feed API call
type Request struct {
	Method string
	Path   string
	Params url.Values
	Data   any
}

// Result is the outcome of a request. Transport failures, non-2xx statuses
// and undecodable bodies all end up here instead of in a returned error.
type Result struct {
	StatusCode Outcome
	Body       json.RawMessage
	Err        error
	// Status is the HTTP status of the last attempt, 0 if none completed
	Status int
}

// OK reports whether the request succeeded
func (r Result) OK() bool {
	return r.StatusCode == OutcomeOK
}

// Decode unmarshals the body into v
func (r Result) Decode(v any) error {
	if len(r.Body) == 0 {
		return domain.ErrEmptyResponse
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, string(e.Body))
}
