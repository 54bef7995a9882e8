package domain

import "errors"

var (
	// Client errors
	ErrSecretKey        = errors.New("secret API key used on the client, use the public key")
	ErrNotAuthenticated = errors.New("client is not authenticated, call Authenticate first")
	ErrEmptyResponse    = errors.New("response body is empty")

	// Feed errors
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidAction   = errors.New("invalid status action")
	ErrFeedClosed      = errors.New("feed has been torn down")

	// Socket errors
	ErrNotConnected = errors.New("socket is not connected")
	ErrChannelJoin  = errors.New("channel join rejected")
	ErrReplyTimeout = errors.New("timed out waiting for reply")

	// Auth errors
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)
