package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// MessageRepo implements MessageRepository using SQLite. The full message
// is kept as JSON in body; the remaining columns exist for filtering.
type MessageRepo struct {
	db *DB
}

// NewMessageRepo creates a new message repository
func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// scanner interface for scanning rows
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*domain.Message, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		return nil, err
	}

	var msg domain.Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create stores a new message and assigns its cursor
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	sortKey := domain.SortKey(msg.InsertedAt, msg.ID)
	msg.Cursor = domain.EncodeCursor(sortKey)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	query := `
		INSERT INTO messages (id, user_id, feed_id, sort_key, source, tenant, is_read, is_seen, is_archived, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.UserID,
		msg.FeedID,
		sortKey,
		msg.Source.Key,
		msg.Tenant,
		boolInt(msg.IsRead()),
		boolInt(msg.IsSeen()),
		boolInt(msg.IsArchived()),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: message %s already exists", domain.ErrInvalidInput, msg.ID)
	}
	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT body FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// List returns a page of a feed, newest first. With only a before cursor
// the page is the one right above the cursor, not the newest one.
func (r *MessageRepo) List(ctx context.Context, filter domain.MessageFilter) ([]*domain.Message, error) {
	where, args := feedConditions(filter)

	switch filter.Status {
	case "unread":
		where = append(where, "is_read = 0")
	case "unseen":
		where = append(where, "is_seen = 0")
	case "read":
		where = append(where, "is_read = 1")
	}

	if filter.Before != "" {
		key, err := domain.DecodeCursor(filter.Before)
		if err != nil {
			return nil, err
		}
		where = append(where, "sort_key > ?")
		args = append(args, key)
	}
	if filter.After != "" {
		key, err := domain.DecodeCursor(filter.After)
		if err != nil {
			return nil, err
		}
		where = append(where, "sort_key < ?")
		args = append(args, key)
	}

	forward := filter.Before != "" && filter.After == ""
	order := "DESC"
	if forward {
		order = "ASC"
	}

	query := `SELECT body FROM messages WHERE ` + strings.Join(where, " AND ") + ` ORDER BY sort_key ` + order
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, filter.Limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	if forward {
		slices.Reverse(messages)
	}
	return messages, nil
}

// Count returns the badge counters of a feed. The status filter and the
// cursors are ignored.
func (r *MessageRepo) Count(ctx context.Context, filter domain.MessageFilter) (domain.FeedMetadata, error) {
	where, args := feedConditions(filter)

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_read = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_seen = 0 THEN 1 ELSE 0 END), 0)
		FROM messages WHERE ` + strings.Join(where, " AND ")

	var meta domain.FeedMetadata
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&meta.TotalCount, &meta.UnreadCount, &meta.UnseenCount)
	if err != nil {
		return domain.FeedMetadata{}, fmt.Errorf("failed to count messages: %w", err)
	}
	return meta, nil
}

// UpdateEach applies fn to the messages owned by userID in one transaction
func (r *MessageRepo) UpdateEach(ctx context.Context, userID string, ids []string, fn func(*domain.Message)) ([]*domain.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var updated []*domain.Message
	for _, id := range ids {
		msg, err := scanMessage(tx.QueryRowContext(ctx, `SELECT body FROM messages WHERE id = ? AND user_id = ?`, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get message: %w", err)
		}

		fn(msg)

		body, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET is_read = ?, is_seen = ?, is_archived = ?, body = ? WHERE id = ?`,
			boolInt(msg.IsRead()), boolInt(msg.IsSeen()), boolInt(msg.IsArchived()), string(body), id,
		); err != nil {
			return nil, fmt.Errorf("failed to update message: %w", err)
		}
		updated = append(updated, msg)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}

// feedConditions builds the feed, archived scope, source and tenant filters
func feedConditions(filter domain.MessageFilter) ([]string, []any) {
	where := []string{"user_id = ?", "feed_id = ?"}
	args := []any{filter.UserID, filter.FeedID}

	switch filter.Archived {
	case domain.ArchivedInclude:
	case domain.ArchivedOnly:
		where = append(where, "is_archived = 1")
	default:
		where = append(where, "is_archived = 0")
	}

	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Tenant != "" {
		where = append(where, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	return where, args
}
