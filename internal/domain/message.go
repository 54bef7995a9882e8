package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is a feed item as the reference server stores it
type Message struct {
	FeedItem
	FeedID string `json:"feed_id"`
	UserID string `json:"user_id"`
}

// MessageFilter selects a page of a user's feed
type MessageFilter struct {
	UserID   string
	FeedID   string
	Status   string
	Source   string
	Tenant   string
	Archived ArchivedScope
	Before   string
	After    string
	Limit    int
}

// Matches reports whether m passes the status, source, tenant and archived
// filters. Cursors and limits are not considered.
func (f MessageFilter) Matches(m *Message) bool {
	if !f.Archived.Allows(m.IsArchived()) {
		return false
	}
	switch f.Status {
	case "unread":
		if m.IsRead() {
			return false
		}
	case "unseen":
		if m.IsSeen() {
			return false
		}
	case "read":
		if !m.IsRead() {
			return false
		}
	}
	if f.Source != "" && m.Source.Key != f.Source {
		return false
	}
	if f.Tenant != "" && (m.Tenant == nil || *m.Tenant != f.Tenant) {
		return false
	}
	return true
}

// Allows reports whether an item with the given archived state belongs to
// a feed of this scope. The empty scope behaves like exclude.
func (s ArchivedScope) Allows(archived bool) bool {
	switch s {
	case ArchivedInclude:
		return true
	case ArchivedOnly:
		return archived
	default:
		return !archived
	}
}

// CreateMessageRequest is the body of the development endpoint that
// creates a message
type CreateMessageRequest struct {
	Markdown string         `json:"markdown" binding:"required,max=10000"`
	Source   string         `json:"source" binding:"omitempty,max=255"`
	Tenant   string         `json:"tenant" binding:"omitempty,max=255"`
	ActorID  string         `json:"actor_id" binding:"omitempty,max=255"`
	Data     map[string]any `json:"data"`
}

// SortKey is the storage ordering key of an item inserted at t with id.
// Keys compare in insertion order.
func SortKey(t time.Time, id string) string {
	return fmt.Sprintf("%020d:%s", t.UnixNano(), id)
}

// EncodeCursor turns a sort key into an opaque page cursor
func EncodeCursor(sortKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sortKey))
}

// DecodeCursor returns the sort key a cursor was made from
func DecodeCursor(cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	key := string(raw)
	nanos, _, ok := strings.Cut(key, ":")
	if !ok {
		return "", fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	if _, err := strconv.ParseInt(nanos, 10, 64); err != nil {
		return "", fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	return key, nil
}

// FeedTopic is the push channel topic of a user's feed
func FeedTopic(feedID, userID string) string {
	return fmt.Sprintf("feeds:%s:%s", feedID, userID)
}
