package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// MessageRepo implements MessageRepository using BadgerDB.
//
// Keys:
//
//	message:id:<id>                          -> message JSON
//	message:feed:<user>:<feed>:<sort key>    -> id
type MessageRepo struct {
	db *DB
}

// NewMessageRepo creates a new BadgerDB-based message repository
func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func idKey(id string) []byte {
	return []byte(fmt.Sprintf("message:id:%s", id))
}

func feedPrefix(userID, feedID string) []byte {
	return []byte(fmt.Sprintf("message:feed:%s:%s:", userID, feedID))
}

// Create stores a new message and assigns its cursor
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	sortKey := domain.SortKey(msg.InsertedAt, msg.ID)
	msg.Cursor = domain.EncodeCursor(sortKey)

	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(idKey(msg.ID)); err == nil {
			return fmt.Errorf("%w: message %s already exists", domain.ErrInvalidInput, msg.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(idKey(msg.ID), data); err != nil {
			return err
		}

		indexKey := append(feedPrefix(msg.UserID, msg.FeedID), sortKey...)
		return txn.Set(indexKey, []byte(msg.ID))
	})
}

// GetByID retrieves a message by ID
func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg *domain.Message

	err := r.db.View(func(txn *badger.Txn) error {
		m, err := getMessage(txn, id)
		msg = m
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// List returns a page of a feed, newest first. With only a before cursor
// the page is the one right above the cursor, not the newest one.
func (r *MessageRepo) List(ctx context.Context, filter domain.MessageFilter) ([]*domain.Message, error) {
	prefix := feedPrefix(filter.UserID, filter.FeedID)

	var lower, upper []byte
	if filter.Before != "" {
		key, err := domain.DecodeCursor(filter.Before)
		if err != nil {
			return nil, err
		}
		lower = append(append([]byte{}, prefix...), key...)
	}
	if filter.After != "" {
		key, err := domain.DecodeCursor(filter.After)
		if err != nil {
			return nil, err
		}
		upper = append(append([]byte{}, prefix...), key...)
	}

	messages := make([]*domain.Message, 0, filter.Limit)
	forward := lower != nil && upper == nil

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = !forward // Newest first unless walking up from a before cursor
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		switch {
		case forward:
			seek = lower
		case upper != nil:
			seek = upper
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			key := it.Item().Key()
			if forward {
				if bytes.Compare(key, lower) <= 0 {
					continue
				}
			} else {
				if upper != nil && bytes.Compare(key, upper) >= 0 {
					continue
				}
				if lower != nil && bytes.Compare(key, lower) <= 0 {
					break
				}
			}

			msg, err := indexedMessage(txn, it.Item())
			if err != nil {
				continue
			}
			if !filter.Matches(msg) {
				continue
			}

			messages = append(messages, msg)
			if filter.Limit > 0 && len(messages) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if forward {
		slices.Reverse(messages)
	}
	return messages, nil
}

// Count returns the badge counters of a feed. The status filter and the
// cursors are ignored.
func (r *MessageRepo) Count(ctx context.Context, filter domain.MessageFilter) (domain.FeedMetadata, error) {
	filter.Status = ""
	prefix := feedPrefix(filter.UserID, filter.FeedID)

	var meta domain.FeedMetadata
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			msg, err := indexedMessage(txn, it.Item())
			if err != nil || !filter.Matches(msg) {
				continue
			}
			meta.TotalCount++
			if !msg.IsRead() {
				meta.UnreadCount++
			}
			if !msg.IsSeen() {
				meta.UnseenCount++
			}
		}
		return nil
	})

	return meta, err
}

// UpdateEach applies fn to the messages owned by userID in one transaction
func (r *MessageRepo) UpdateEach(ctx context.Context, userID string, ids []string, fn func(*domain.Message)) ([]*domain.Message, error) {
	var updated []*domain.Message

	err := r.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if msg.UserID != userID {
				continue
			}

			fn(msg)

			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(idKey(id), data); err != nil {
				return err
			}
			updated = append(updated, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func getMessage(txn *badger.Txn, id string) (*domain.Message, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		return nil, err
	}

	var msg domain.Message
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	}); err != nil {
		return nil, err
	}
	return &msg, nil
}

func indexedMessage(txn *badger.Txn, item *badger.Item) (*domain.Message, error) {
	var id string
	if err := item.Value(func(val []byte) error {
		id = string(val)
		return nil
	}); err != nil {
		return nil, err
	}
	return getMessage(txn, id)
}
