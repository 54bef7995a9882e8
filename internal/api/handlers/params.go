package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/validator"
)

// QueryParamParser provides helpers for parsing and validating query parameters
type QueryParamParser struct {
	c   *gin.Context
	err error
}

// NewQueryParamParser creates a new query parameter parser
func NewQueryParamParser(c *gin.Context) *QueryParamParser {
	return &QueryParamParser{c: c}
}

// Error returns any parsing error that occurred
func (p *QueryParamParser) Error() error {
	return p.err
}

// Int gets an integer parameter with a default
func (p *QueryParamParser) Int(key string, defaultValue int) int {
	if p.err != nil {
		return defaultValue
	}

	raw := p.c.Query(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		p.err = fmt.Errorf("invalid '%s' parameter: must be a number", key)
		return defaultValue
	}
	return parsed
}

// String gets a string parameter with optional default
func (p *QueryParamParser) String(key, defaultValue string) string {
	if p.err != nil {
		return defaultValue
	}

	value := p.c.Query(key)
	if value == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

// FeedOptions parses the feed query parameters and validates them with v
func (p *QueryParamParser) FeedOptions(v *validator.Validator) domain.FeedClientOptions {
	opts := domain.FeedClientOptions{
		Before:   p.String("before", ""),
		After:    p.String("after", ""),
		PageSize: p.Int("page_size", 0),
		Status:   p.String("status", ""),
		Source:   p.String("source", ""),
		Tenant:   p.String("tenant", ""),
		Archived: domain.ArchivedScope(p.String("archived", "")),
	}
	if p.err != nil {
		return domain.FeedClientOptions{}
	}

	if opts.Before != "" && opts.After != "" {
		p.err = fmt.Errorf("'before' and 'after' cannot be combined")
		return domain.FeedClientOptions{}
	}
	if err := v.Validate(opts); err != nil {
		p.err = err
		return domain.FeedClientOptions{}
	}
	return opts
}
