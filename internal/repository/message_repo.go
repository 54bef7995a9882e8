package repository

import (
	"context"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// MessageRepository defines the interface for feed message persistence
type MessageRepository interface {
	// Create stores a new message and assigns its cursor
	Create(ctx context.Context, msg *domain.Message) error

	// GetByID retrieves a message by ID
	GetByID(ctx context.Context, id string) (*domain.Message, error)

	// List returns up to filter.Limit messages of a feed, newest first.
	// Before selects messages newer than the cursor, After older ones.
	List(ctx context.Context, filter domain.MessageFilter) ([]*domain.Message, error)

	// Count returns the badge counters of a feed for the given filter
	Count(ctx context.Context, filter domain.MessageFilter) (domain.FeedMetadata, error)

	// UpdateEach applies fn to every message in ids owned by userID in one
	// transaction and returns the updated messages. Unknown ids are skipped.
	UpdateEach(ctx context.Context, userID string, ids []string, fn func(*domain.Message)) ([]*domain.Message, error)
}
