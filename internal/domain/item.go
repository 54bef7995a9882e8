package domain

import (
	"encoding/json"
	"time"
)

// FeedItem represents one notification entry in a user's feed
type FeedItem struct {
	Cursor          string          `json:"__cursor"`
	ID              string          `json:"id"`
	Activities      []Activity      `json:"activities"`
	Actors          []Recipient     `json:"actors"`
	Blocks          []ContentBlock  `json:"blocks"`
	Data            json.RawMessage `json:"data,omitempty"`
	Source          Source          `json:"source"`
	Tenant          *string         `json:"tenant"`
	TotalActivities int             `json:"total_activities"`
	TotalActors     int             `json:"total_actors"`
	InsertedAt      time.Time       `json:"inserted_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ReadAt          *time.Time      `json:"read_at"`
	SeenAt          *time.Time      `json:"seen_at"`
	ArchivedAt      *time.Time      `json:"archived_at"`
}

// IsRead reports whether the item has a read timestamp
func (i FeedItem) IsRead() bool { return i.ReadAt != nil }

// IsSeen reports whether the item has a seen timestamp
func (i FeedItem) IsSeen() bool { return i.SeenAt != nil }

// IsArchived reports whether the item has an archived timestamp
func (i FeedItem) IsArchived() bool { return i.ArchivedAt != nil }

// Clone returns a deep copy. No pointer, slice or raw JSON is shared with
// the receiver.
func (i FeedItem) Clone() FeedItem {
	c := i
	c.Data = cloneRaw(i.Data)
	c.Tenant = cloneString(i.Tenant)
	c.ReadAt = cloneTime(i.ReadAt)
	c.SeenAt = cloneTime(i.SeenAt)
	c.ArchivedAt = cloneTime(i.ArchivedAt)
	if i.Activities != nil {
		c.Activities = make([]Activity, len(i.Activities))
		for n, a := range i.Activities {
			c.Activities[n] = a.Clone()
		}
	}
	if i.Actors != nil {
		c.Actors = make([]Recipient, len(i.Actors))
		for n, r := range i.Actors {
			c.Actors[n] = r.Clone()
		}
	}
	if i.Blocks != nil {
		c.Blocks = append([]ContentBlock(nil), i.Blocks...)
	}
	return c
}

// Recipient is a user or object attached to an activity
type Recipient struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedAt *time.Time `json:"created_at"`
}

// Clone returns a deep copy
func (r Recipient) Clone() Recipient {
	r.CreatedAt = cloneTime(r.CreatedAt)
	return r
}

// Activity is one event that contributed to a feed item
type Activity struct {
	ID         string          `json:"id"`
	InsertedAt time.Time       `json:"inserted_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Recipient  Recipient       `json:"recipient"`
	Actor      *Recipient      `json:"actor"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Clone returns a deep copy
func (a Activity) Clone() Activity {
	a.Recipient = a.Recipient.Clone()
	if a.Actor != nil {
		actor := a.Actor.Clone()
		a.Actor = &actor
	}
	a.Data = cloneRaw(a.Data)
	return a
}

// ContentBlock is a rendered piece of notification content
type ContentBlock struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // markdown, text
	Content  string `json:"content"`
	Rendered string `json:"rendered"`
}

// Source identifies the workflow that produced the notification
type Source struct {
	Key       string `json:"key"`
	VersionID string `json:"version_id"`
}

// FeedMetadata holds the badge counters for a feed
type FeedMetadata struct {
	TotalCount  int `json:"total_count"`
	UnreadCount int `json:"unread_count"`
	UnseenCount int `json:"unseen_count"`
}

// Clamped returns a copy with every counter floored at zero
func (m FeedMetadata) Clamped() FeedMetadata {
	return FeedMetadata{
		TotalCount:  max(0, m.TotalCount),
		UnreadCount: max(0, m.UnreadCount),
		UnseenCount: max(0, m.UnseenCount),
	}
}

// PageInfo carries the cursors of the last confirmed page fetch
type PageInfo struct {
	Before   *string `json:"before"`
	After    *string `json:"after"`
	PageSize int     `json:"page_size"`
}

// HasNext reports whether an older page is known to exist
func (p PageInfo) HasNext() bool {
	return p.After != nil && *p.After != ""
}

// FeedResponse is the body returned by the feed endpoint
type FeedResponse struct {
	Entries  []FeedItem   `json:"entries"`
	Meta     FeedMetadata `json:"meta"`
	PageInfo PageInfo     `json:"page_info"`
}

// NewMessagePayload is pushed on the feed channel when new activity exists.
// It carries counts only; items must be fetched separately.
type NewMessagePayload struct {
	Metadata FeedMetadata `json:"metadata"`
}

// BatchStatusRequest is the body of a batch status update
type BatchStatusRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required,min=1"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
