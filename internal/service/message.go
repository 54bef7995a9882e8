package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/repository"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// DefaultPageSize is used when a request does not ask for one
const DefaultPageSize = 50

// EventNewMessage is pushed on a feed topic after a message is created
const EventNewMessage = "new-message"

// Publisher pushes events to the subscribers of a topic
type Publisher interface {
	Publish(topic, event string, payload any) (int, error)
}

// MessageService handles feed message business logic of the reference server
type MessageService struct {
	repo      repository.MessageRepository
	publisher Publisher
	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
	logger    *logger.Logger
	now       func() time.Time
}

// NewMessageService creates a new message service. publisher may be nil.
func NewMessageService(repo repository.MessageRepository, publisher Publisher, log *logger.Logger) *MessageService {
	return &MessageService{
		repo:      repo,
		publisher: publisher,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.OrNop(log).WithComponent("message-service"),
		now:       time.Now,
	}
}

// ListFeed returns one page of a user's feed with its badge counters
func (s *MessageService) ListFeed(ctx context.Context, userID, feedID string, opts domain.FeedClientOptions) (*domain.FeedResponse, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	archived := opts.Archived
	if archived == "" {
		archived = domain.ArchivedExclude
	}

	filter := domain.MessageFilter{
		UserID:   userID,
		FeedID:   feedID,
		Status:   opts.Status,
		Source:   opts.Source,
		Tenant:   opts.Tenant,
		Archived: archived,
		Before:   opts.Before,
		After:    opts.After,
		Limit:    pageSize + 1,
	}

	msgs, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list feed", "user_id", userID, "feed_id", feedID, "error", err)
		return nil, err
	}

	// a before page is the run right above the cursor, so the extra row is
	// its newest one
	newer := opts.Before != "" && opts.After == ""
	hasMore := len(msgs) > pageSize
	if hasMore {
		if newer {
			msgs = msgs[len(msgs)-pageSize:]
		} else {
			msgs = msgs[:pageSize]
		}
	}

	meta, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to count feed", "user_id", userID, "feed_id", feedID, "error", err)
		return nil, err
	}

	resp := &domain.FeedResponse{
		Entries:  make([]domain.FeedItem, 0, len(msgs)),
		Meta:     meta,
		PageInfo: domain.PageInfo{PageSize: pageSize},
	}
	for _, m := range msgs {
		resp.Entries = append(resp.Entries, m.FeedItem)
	}

	if n := len(resp.Entries); n > 0 {
		switch {
		case newer:
			if hasMore {
				resp.PageInfo.Before = domain.StringPtr(resp.Entries[0].Cursor)
			}
		case hasMore:
			resp.PageInfo.After = domain.StringPtr(resp.Entries[n-1].Cursor)
		}
		if opts.After != "" {
			resp.PageInfo.Before = domain.StringPtr(resp.Entries[0].Cursor)
		}
	}

	return resp, nil
}

// Send creates a message from markdown and notifies the feed channel
func (s *MessageService) Send(ctx context.Context, userID, feedID string, req *domain.CreateMessageRequest) (*domain.Message, error) {
	rendered, err := s.render(req.Markdown)
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if req.Data != nil {
		if data, err = json.Marshal(req.Data); err != nil {
			return nil, fmt.Errorf("%w: data: %v", domain.ErrInvalidInput, err)
		}
	}

	now := s.now().UTC()
	recipient := domain.Recipient{ID: userID, UpdatedAt: now}
	activity := domain.Activity{
		ID:         uuid.New().String(),
		InsertedAt: now,
		UpdatedAt:  now,
		Recipient:  recipient,
		Data:       data,
	}

	msg := &domain.Message{
		FeedItem: domain.FeedItem{
			ID:         uuid.New().String(),
			Activities: []domain.Activity{activity},
			Blocks: []domain.ContentBlock{{
				Name:     "body",
				Type:     "markdown",
				Content:  req.Markdown,
				Rendered: rendered,
			}},
			Data:            data,
			Source:          domain.Source{Key: req.Source},
			TotalActivities: 1,
			InsertedAt:      now,
			UpdatedAt:       now,
		},
		FeedID: feedID,
		UserID: userID,
	}

	if req.Tenant != "" {
		msg.Tenant = domain.StringPtr(req.Tenant)
	}
	if req.ActorID != "" {
		actor := domain.Recipient{ID: req.ActorID, UpdatedAt: now}
		msg.Actors = []domain.Recipient{actor}
		msg.TotalActors = 1
		msg.Activities[0].Actor = &actor
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		s.logger.Error("Failed to store message", "message_id", msg.ID, "error", err)
		return nil, err
	}

	s.logger.Info("Message created", "message_id", msg.ID, "user_id", userID, "feed_id", feedID)
	s.notify(ctx, userID, feedID)

	return msg, nil
}

// UpdateStatus applies action to the messages in ids owned by userID. A
// single unknown id is reported as ErrMessageNotFound; unknown ids in a
// batch are skipped.
func (s *MessageService) UpdateStatus(ctx context.Context, userID string, ids []string, action domain.StatusAction) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no message ids", domain.ErrInvalidInput)
	}

	now := s.now().UTC()
	var value *time.Time
	if !action.IsUnset() {
		value = &now
	}

	updated, err := s.repo.UpdateEach(ctx, userID, ids, func(m *domain.Message) {
		switch action.Base() {
		case domain.ActionSeen:
			m.SeenAt = value
		case domain.ActionRead:
			m.ReadAt = value
		case domain.ActionArchived:
			m.ArchivedAt = value
		}
		m.UpdatedAt = now
	})
	if err != nil {
		s.logger.Error("Failed to update message status", "action", string(action), "error", err)
		return nil, err
	}

	if len(ids) == 1 && len(updated) == 0 {
		return nil, domain.ErrMessageNotFound
	}

	s.logger.Debug("Message status updated", "action", string(action), "requested", len(ids), "updated", len(updated))
	return updated, nil
}

func (s *MessageService) render(source string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return s.sanitizer.Sanitize(buf.String()), nil
}

func (s *MessageService) notify(ctx context.Context, userID, feedID string) {
	if s.publisher == nil {
		return
	}

	meta, err := s.repo.Count(ctx, domain.MessageFilter{UserID: userID, FeedID: feedID, Archived: domain.ArchivedExclude})
	if err != nil {
		s.logger.Warn("Failed to count feed for push", "error", err)
		return
	}

	topic := domain.FeedTopic(feedID, userID)
	if _, err := s.publisher.Publish(topic, EventNewMessage, domain.NewMessagePayload{Metadata: meta}); err != nil {
		s.logger.Warn("Failed to publish new message", "topic", topic, "error", err)
	}
}
