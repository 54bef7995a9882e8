// Package feed keeps a local, continuously reconciled copy of one user's
// notification feed. Page fetches and realtime pushes are merged into a
// single ordered list, status mutations are applied optimistically and every
// received page is re-broadcast to listeners.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/socket"
	"github.com/amiyamandal-dev/feedsync/internal/transport/rest"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// Requester issues feed API requests
type Requester interface {
	Do(ctx context.Context, req rest.Request) rest.Result
}

// PushSocket is the shared realtime connection
type PushSocket interface {
	IsConnected() bool
	Connect(ctx context.Context) error
}

// PushChannel is the per feed topic subscription on a PushSocket
type PushChannel interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
	On(event string, handler socket.Handler)
	Off(event string)
	State() socket.ChannelState
}

// Topic returns the push channel topic of a feed
func Topic(feedID, userID string) string {
	return domain.FeedTopic(feedID, userID)
}

// FetchStatus is the outcome of a fetch
type FetchStatus string

const (
	FetchOK    FetchStatus = "ok"
	FetchError FetchStatus = "error"
	// FetchSkipped means no request was issued, either because another one
	// was in flight or because there was nothing to fetch
	FetchSkipped FetchStatus = "skipped"
)

// FetchResult is returned by Fetch and FetchNextPage
type FetchResult struct {
	Status FetchStatus
	Data   *domain.FeedResponse
	Err    error
}

// FetchOptions are the per call fetch options
type FetchOptions struct {
	domain.FeedClientOptions

	// LoadingType is the status held while the request is in flight,
	// loading unless set
	LoadingType domain.NetworkStatus
	// Origin tags the emitted event, SourcePage unless set
	Origin Source
}

// Config identifies the feed a Controller synchronises
type Config struct {
	FeedID  string
	UserID  string
	Options domain.FeedClientOptions
	// Policy reconciles optimistic writes, FireAndForget when nil
	Policy ReconcilePolicy
}

// Controller is the feed reconciliation engine for one feed session
type Controller struct {
	feedID   string
	userID   string
	defaults domain.FeedClientOptions

	api     Requester
	socket  PushSocket
	channel PushChannel

	store  *Store
	events *Broadcaster
	policy ReconcilePolicy
	logger *logger.Logger
	now    func() time.Time
	closed atomic.Bool
}

// New creates a controller. sock and ch may be nil when realtime updates
// are not wanted.
func New(cfg Config, api Requester, sock PushSocket, ch PushChannel, log *logger.Logger) *Controller {
	log = logger.OrNop(log)

	policy := cfg.Policy
	if policy == nil {
		policy = FireAndForget{}
	}

	return &Controller{
		feedID:   cfg.FeedID,
		userID:   cfg.UserID,
		defaults: domain.DefaultFeedClientOptions().Merge(cfg.Options),
		api:      api,
		socket:   sock,
		channel:  ch,
		store:    NewStore(),
		events:   NewBroadcaster(log),
		policy:   policy,
		logger:   log.WithComponent("feed").WithFeed(cfg.FeedID, cfg.UserID),
		now:      time.Now,
	}
}

// FeedID returns the feed channel id
func (c *Controller) FeedID() string { return c.feedID }

// Options returns the options every fetch starts from
func (c *Controller) Options() domain.FeedClientOptions { return c.defaults }

// Store returns the underlying store, for subscribing to state changes
func (c *Controller) Store() *Store { return c.store }

// State returns a snapshot of the feed state
func (c *Controller) State() State { return c.store.State() }

// On registers handler for pattern
func (c *Controller) On(pattern Pattern, handler Handler) ListenerID {
	return c.events.On(pattern, handler)
}

// Off removes a registration made with On
func (c *Controller) Off(id ListenerID) bool {
	return c.events.Off(id)
}

// ListenForUpdates connects the shared socket if needed and joins the feed
// channel unless it is already joined or joining
func (c *Controller) ListenForUpdates(ctx context.Context) error {
	if c.closed.Load() {
		return domain.ErrFeedClosed
	}
	if c.socket == nil || c.channel == nil {
		return fmt.Errorf("%w: realtime updates are not configured", domain.ErrNotConnected)
	}

	if !c.socket.IsConnected() {
		if err := c.socket.Connect(ctx); err != nil {
			return err
		}
	}

	switch c.channel.State() {
	case socket.ChannelClosed, socket.ChannelErrored:
	default:
		return nil
	}

	c.channel.Off(socket.EventNewMessage)
	c.channel.On(socket.EventNewMessage, c.onPush)

	if err := c.channel.Join(ctx); err != nil {
		c.logger.Warn("Failed to join feed channel", "topic", Topic(c.feedID, c.userID), "error", err)
		return err
	}

	c.logger.Info("Listening for feed updates", "topic", Topic(c.feedID, c.userID))
	return nil
}

// Teardown leaves the feed channel and drops every listener and
// subscriber. Outstanding requests are not cancelled. A torn down feed
// cannot listen for updates again.
func (c *Controller) Teardown(ctx context.Context) error {
	c.closed.Store(true)

	var err error
	if c.channel != nil {
		c.channel.Off(socket.EventNewMessage)
		err = c.channel.Leave(ctx)
	}
	c.events.RemoveAllListeners()
	c.store.Destroy()

	c.logger.Debug("Feed torn down")
	return err
}

// Fetch requests a page and reconciles it into the store. A before cursor
// in opts prepends newer items, an after cursor appends an older page, and
// no cursor refreshes the list, whatever the feed defaults hold. It returns
// FetchSkipped while another request is in flight.
func (c *Controller) Fetch(ctx context.Context, opts FetchOptions) FetchResult {
	loadingType := opts.LoadingType
	if loadingType == "" {
		loadingType = domain.NetworkLoading
	}

	if !c.store.BeginRequest(loadingType) {
		c.logger.Debug("Fetch skipped, request in flight")
		return FetchResult{Status: FetchSkipped}
	}

	options := c.defaults.Merge(opts.FeedClientOptions)

	res := c.api.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/v1/users/%s/feeds/%s", c.userID, c.feedID),
		Params: options.QueryParams(),
	})

	resp, err := decodeFeedResponse(res)
	if err != nil {
		c.store.SetNetworkStatus(domain.NetworkError)
		c.logger.Warn("Feed fetch failed", "status", res.Status, "error", err)
		return FetchResult{Status: FetchError, Err: err}
	}

	switch {
	case opts.Before != "":
		c.store.SetResult(resp, ResultOptions{ShouldAppend: true, ShouldSetPage: false})
	case opts.After != "":
		c.store.SetResult(resp, ResultOptions{ShouldAppend: true, ShouldSetPage: true})
	default:
		c.store.SetResult(resp, DefaultResultOptions())
	}

	origin := opts.Origin
	if origin == 0 {
		origin = SourcePage
	}
	c.events.Emit(Event{
		Source:   origin,
		Items:    resp.Entries,
		Metadata: resp.Meta,
		Response: resp,
	})

	return FetchResult{Status: FetchOK, Data: &resp}
}

// FetchNextPage fetches the page after the current one. It returns
// FetchSkipped when no older page is known.
func (c *Controller) FetchNextPage(ctx context.Context) FetchResult {
	pageInfo := c.store.State().PageInfo
	if !pageInfo.HasNext() {
		return FetchResult{Status: FetchSkipped}
	}

	return c.Fetch(ctx, FetchOptions{
		FeedClientOptions: domain.FeedClientOptions{After: *pageInfo.After},
		LoadingType:       domain.NetworkFetchMore,
	})
}

// HandleNewMessage applies a push notification: the badge counts are
// written at once and the items newer than the current head are fetched.
func (c *Controller) HandleNewMessage(ctx context.Context, payload domain.NewMessagePayload) FetchResult {
	var before string
	if head, ok := c.store.State().Head(); ok {
		before = head.Cursor
	}

	c.store.SetMetadata(payload.Metadata)

	return c.Fetch(ctx, FetchOptions{
		FeedClientOptions: domain.FeedClientOptions{Before: before},
		Origin:            SourceRealtime,
	})
}

func (c *Controller) onPush(raw json.RawMessage) {
	var payload domain.NewMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("Dropping malformed push", "error", err)
		return
	}
	c.HandleNewMessage(context.Background(), payload)
}

// MarkAsSeen marks items seen
func (c *Controller) MarkAsSeen(ctx context.Context, items ...domain.FeedItem) rest.Result {
	return c.updateStatus(ctx, domain.ActionSeen, items)
}

// MarkAsUnseen clears the seen state of items
func (c *Controller) MarkAsUnseen(ctx context.Context, items ...domain.FeedItem) rest.Result {
	return c.updateStatus(ctx, domain.ActionUnseen, items)
}

// MarkAsRead marks items read
func (c *Controller) MarkAsRead(ctx context.Context, items ...domain.FeedItem) rest.Result {
	return c.updateStatus(ctx, domain.ActionRead, items)
}

// MarkAsUnread clears the read state of items
func (c *Controller) MarkAsUnread(ctx context.Context, items ...domain.FeedItem) rest.Result {
	return c.updateStatus(ctx, domain.ActionUnread, items)
}

// MarkAsArchived archives items. When the feed excludes archived items they
// are removed from the list and the badge counts drop accordingly.
func (c *Controller) MarkAsArchived(ctx context.Context, items ...domain.FeedItem) rest.Result {
	return c.updateStatus(ctx, domain.ActionArchived, items)
}

// MarkAsUnarchived clears the archived state of items
func (c *Controller) MarkAsUnarchived(ctx context.Context, items ...domain.FeedItem) rest.Result {
	return c.updateStatus(ctx, domain.ActionUnarchived, items)
}

func (c *Controller) updateStatus(ctx context.Context, action domain.StatusAction, items []domain.FeedItem) rest.Result {
	ids := uniqueIDs(items)
	if len(ids) == 0 {
		return rest.Result{StatusCode: rest.OutcomeOK}
	}

	before := c.store.State()
	m := Mutation{
		Action:         action,
		ItemIDs:        ids,
		Previous:       storedItems(before.Items, ids),
		MetadataBefore: before.Metadata,
	}

	if action == domain.ActionArchived && c.defaults.Archived == domain.ArchivedExclude {
		c.archiveExcluded(ids, items, before.Items)
	} else {
		c.applyOptimistic(action, ids)
	}
	m.MetadataAfter = c.store.State().Metadata

	res := c.writeStatus(ctx, action, ids)
	if !res.OK() {
		c.logger.Warn("Status update failed",
			"action", string(action),
			"items", len(ids),
			"status", res.Status,
			"error", res.Err,
		)
	}

	c.policy.Reconcile(c.store, m, res)
	return res
}

// applyOptimistic adjusts the badge count by the number of items and
// patches their status field
func (c *Controller) applyOptimistic(action domain.StatusAction, ids []string) {
	now := c.now()
	field := SetTime(now)
	if action.IsUnset() {
		field = ClearTime()
	}

	delta := -len(ids)
	if action.IsUnset() {
		delta = len(ids)
	}

	var attrs ItemAttrs
	switch action.Base() {
	case domain.ActionSeen:
		attrs.SeenAt = field
		c.store.UpdateMetadata(func(m domain.FeedMetadata) domain.FeedMetadata {
			m.UnseenCount += delta
			return m
		})
	case domain.ActionRead:
		attrs.ReadAt = field
		c.store.UpdateMetadata(func(m domain.FeedMetadata) domain.FeedMetadata {
			m.UnreadCount += delta
			return m
		})
	case domain.ActionArchived:
		attrs.ArchivedAt = field
	}

	c.store.SetItemAttrs(ids, attrs)
}

// archiveExcluded removes archived items from a feed that hides them. The
// unseen and unread counts drop by the number of affected items that were
// unseen or unread; the stored copy is consulted first.
func (c *Controller) archiveExcluded(ids []string, given, stored []domain.FeedItem) {
	lookup := make(map[string]domain.FeedItem, len(given))
	for _, item := range given {
		lookup[item.ID] = item
	}
	for _, item := range stored {
		if _, ok := lookup[item.ID]; ok {
			lookup[item.ID] = item
		}
	}

	var unseen, unread int
	for _, id := range ids {
		item := lookup[id]
		if !item.IsSeen() {
			unseen++
		}
		if !item.IsRead() {
			unread++
		}
	}

	c.store.RemoveItems(ids)
	c.store.UpdateMetadata(func(m domain.FeedMetadata) domain.FeedMetadata {
		m.TotalCount -= len(ids)
		m.UnseenCount -= unseen
		m.UnreadCount -= unread
		return m
	})
}

// writeStatus sends a single item update to the message endpoint and
// several through the batch endpoint
func (c *Controller) writeStatus(ctx context.Context, action domain.StatusAction, ids []string) rest.Result {
	if len(ids) == 1 {
		method := http.MethodPut
		if action.IsUnset() {
			method = http.MethodDelete
		}
		return c.api.Do(ctx, rest.Request{
			Method: method,
			Path:   fmt.Sprintf("/v1/messages/%s/%s", ids[0], action),
		})
	}

	return c.api.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/v1/messages/batch/%s", action),
		Data:   domain.BatchStatusRequest{MessageIDs: ids},
	})
}

func decodeFeedResponse(res rest.Result) (domain.FeedResponse, error) {
	var resp domain.FeedResponse
	if !res.OK() {
		if res.Err == nil {
			return resp, errors.New("feed request failed")
		}
		return resp, res.Err
	}
	if err := res.Decode(&resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func uniqueIDs(items []domain.FeedItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}
	return ids
}

func storedItems(items []domain.FeedItem, ids []string) []domain.FeedItem {
	wanted := toSet(ids)
	var out []domain.FeedItem
	for _, item := range items {
		if _, ok := wanted[item.ID]; ok {
			out = append(out, item.Clone())
		}
	}
	return out
}
