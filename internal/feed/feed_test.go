package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/socket"
	"github.com/amiyamandal-dev/feedsync/internal/transport/rest"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []rest.Request
	respond  func(rest.Request) rest.Result
	// block, when set, holds every request until it is closed
	block chan struct{}
}

func (f *fakeAPI) Do(ctx context.Context, req rest.Request) rest.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if respond == nil {
		return rest.Result{StatusCode: rest.OutcomeOK, Status: http.StatusNoContent}
	}
	return respond(req)
}

func (f *fakeAPI) calls() []rest.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Request(nil), f.requests...)
}

func okBody(t *testing.T, resp domain.FeedResponse) rest.Result {
	t.Helper()
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return rest.Result{StatusCode: rest.OutcomeOK, Status: http.StatusOK, Body: body}
}

func failed(status int) rest.Result {
	return rest.Result{
		StatusCode: rest.OutcomeError,
		Status:     status,
		Err:        &rest.StatusError{Status: status},
	}
}

type fakeSocket struct {
	connected bool
	connects  int
	err       error
}

func (s *fakeSocket) IsConnected() bool { return s.connected }

func (s *fakeSocket) Connect(context.Context) error {
	s.connects++
	if s.err != nil {
		return s.err
	}
	s.connected = true
	return nil
}

type fakeChannel struct {
	state    socket.ChannelState
	joins    int
	leaves   int
	handlers map[string]socket.Handler
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: socket.ChannelClosed, handlers: make(map[string]socket.Handler)}
}

func (c *fakeChannel) Join(context.Context) error {
	c.joins++
	c.state = socket.ChannelJoined
	return nil
}

func (c *fakeChannel) Leave(context.Context) error {
	c.leaves++
	c.state = socket.ChannelClosed
	return nil
}

func (c *fakeChannel) On(event string, h socket.Handler) { c.handlers[event] = h }
func (c *fakeChannel) Off(event string)                  { delete(c.handlers, event) }
func (c *fakeChannel) State() socket.ChannelState        { return c.state }

func (c *fakeChannel) push(t *testing.T, payload any) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	h, ok := c.handlers[socket.EventNewMessage]
	if !ok {
		t.Fatal("no new-message handler registered")
	}
	h(raw)
}

func newController(api *fakeAPI, opts domain.FeedClientOptions) *Controller {
	return New(Config{FeedID: "feed1", UserID: "user1", Options: opts}, api, nil, nil, nil)
}

func seed(t *testing.T, c *Controller, meta domain.FeedMetadata, items ...domain.FeedItem) {
	t.Helper()
	c.store.SetResult(domain.FeedResponse{Entries: items, Meta: meta, PageInfo: domain.PageInfo{PageSize: 50}}, DefaultResultOptions())
}

func TestFetchRefresh(t *testing.T) {
	api := &fakeAPI{}
	api.respond = func(rest.Request) rest.Result {
		return okBody(t, response(domain.FeedMetadata{TotalCount: 2, UnseenCount: 1}, "cur_a", item("a", 1), item("b", 2)))
	}
	c := newController(api, domain.FeedClientOptions{PageSize: 10, Status: "unread"})

	var events []Event
	c.On(AllEvents, func(e Event) error { events = append(events, e); return nil })

	res := c.Fetch(context.Background(), FetchOptions{})
	if res.Status != FetchOK || res.Data == nil {
		t.Fatalf("result = %+v", res)
	}

	calls := api.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	req := calls[0]
	if req.Method != http.MethodGet || req.Path != "/v1/users/user1/feeds/feed1" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Params.Get("archived") != "exclude" || req.Params.Get("page_size") != "10" || req.Params.Get("status") != "unread" {
		t.Errorf("params = %v", req.Params)
	}

	st := c.State()
	equalIDs(t, st.Items, "b", "a")
	if st.NetworkStatus != domain.NetworkIdle || st.Metadata.UnseenCount != 1 {
		t.Errorf("state = %+v", st)
	}

	if len(events) != 1 || events[0].Source != SourcePage || len(events[0].Response.Entries) != 2 {
		t.Errorf("events = %+v", events)
	}
}

func TestFetchError(t *testing.T) {
	tests := []struct {
		name   string
		result rest.Result
	}{
		{name: "transport error", result: failed(http.StatusInternalServerError)},
		{name: "missing body", result: rest.Result{StatusCode: rest.OutcomeOK, Status: http.StatusOK}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{respond: func(rest.Request) rest.Result { return tt.result }}
			c := newController(api, domain.FeedClientOptions{})
			emitted := 0
			c.On(AllEvents, func(Event) error { emitted++; return nil })

			res := c.Fetch(context.Background(), FetchOptions{})

			if res.Status != FetchError || res.Err == nil {
				t.Fatalf("result = %+v", res)
			}
			if got := c.State().NetworkStatus; got != domain.NetworkError {
				t.Errorf("status = %s, want error", got)
			}
			if emitted != 0 {
				t.Errorf("no event should be emitted on error")
			}
		})
	}
}

func TestFetchGuardSkipsWhileInFlight(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	api.respond = func(rest.Request) rest.Result {
		return okBody(t, response(domain.FeedMetadata{}, "", item("a", 1)))
	}
	c := newController(api, domain.FeedClientOptions{})

	done := make(chan FetchResult)
	go func() { done <- c.Fetch(context.Background(), FetchOptions{}) }()

	waitUntil(t, func() bool { return len(api.calls()) == 1 })

	if got := c.Fetch(context.Background(), FetchOptions{}); got.Status != FetchSkipped {
		t.Errorf("concurrent fetch = %s, want skipped", got.Status)
	}
	if got := c.State().NetworkStatus; got != domain.NetworkLoading {
		t.Errorf("status = %s, want loading", got)
	}

	close(api.block)
	if res := <-done; res.Status != FetchOK {
		t.Fatalf("first fetch = %+v", res)
	}
	if n := len(api.calls()); n != 1 {
		t.Errorf("transport calls = %d, want 1", n)
	}
}

func TestFetchBeforePrependsAndKeepsPage(t *testing.T) {
	api := &fakeAPI{respond: func(rest.Request) rest.Result {
		return okBody(t, response(domain.FeedMetadata{TotalCount: 3}, "newer", item("c", 3)))
	}}
	c := newController(api, domain.FeedClientOptions{})
	c.store.SetResult(response(domain.FeedMetadata{}, "page1", item("a", 1), item("b", 2)), DefaultResultOptions())

	res := c.Fetch(context.Background(), FetchOptions{FeedClientOptions: domain.FeedClientOptions{Before: "cur_b"}})
	if res.Status != FetchOK {
		t.Fatalf("result = %+v", res)
	}

	st := c.State()
	equalIDs(t, st.Items, "c", "b", "a")
	if *st.PageInfo.After != "page1" {
		t.Errorf("before fetch must keep the page, after = %s", *st.PageInfo.After)
	}
	if api.calls()[0].Params.Get("before") != "cur_b" {
		t.Errorf("params = %v", api.calls()[0].Params)
	}
}

func TestFetchRefreshesDespiteCursorDefaults(t *testing.T) {
	api := &fakeAPI{respond: func(rest.Request) rest.Result {
		return okBody(t, response(domain.FeedMetadata{TotalCount: 1}, "page2", item("c", 3)))
	}}
	c := newController(api, domain.FeedClientOptions{Before: "cur_z"})
	c.store.SetResult(response(domain.FeedMetadata{}, "page1", item("a", 1), item("b", 2)), DefaultResultOptions())

	if res := c.Fetch(context.Background(), FetchOptions{}); res.Status != FetchOK {
		t.Fatalf("result = %+v", res)
	}

	st := c.State()
	equalIDs(t, st.Items, "c")
	if *st.PageInfo.After != "page2" {
		t.Errorf("refresh should take the page of the response, after = %s", *st.PageInfo.After)
	}
}

func TestFetchNextPage(t *testing.T) {
	api := &fakeAPI{}
	c := newController(api, domain.FeedClientOptions{})

	if res := c.FetchNextPage(context.Background()); res.Status != FetchSkipped {
		t.Fatalf("no next page: %+v", res)
	}
	if len(api.calls()) != 0 {
		t.Fatal("no request expected without an after cursor")
	}

	c.store.SetResult(response(domain.FeedMetadata{}, "p1", item("b", 2)), DefaultResultOptions())

	var statusDuring domain.NetworkStatus
	api.respond = func(rest.Request) rest.Result {
		statusDuring = c.State().NetworkStatus
		return okBody(t, response(domain.FeedMetadata{}, "", item("a", 1)))
	}

	if res := c.FetchNextPage(context.Background()); res.Status != FetchOK {
		t.Fatalf("result = %+v", res)
	}
	if statusDuring != domain.NetworkFetchMore {
		t.Errorf("status during request = %s, want fetchMore", statusDuring)
	}
	if api.calls()[0].Params.Get("after") != "p1" {
		t.Errorf("params = %v", api.calls()[0].Params)
	}

	st := c.State()
	equalIDs(t, st.Items, "b", "a")
	if st.PageInfo.HasNext() {
		t.Error("page info should move to the last page")
	}
}

func TestHandleNewMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newController(api, domain.FeedClientOptions{})
	seed(t, c, domain.FeedMetadata{TotalCount: 1}, item("a", 1))

	var metaDuring domain.FeedMetadata
	api.respond = func(rest.Request) rest.Result {
		metaDuring = c.State().Metadata
		return okBody(t, response(domain.FeedMetadata{TotalCount: 2, UnseenCount: 1}, "", item("b", 2)))
	}

	var realtime []Event
	c.On(ItemsReceivedRealtime, func(e Event) error { realtime = append(realtime, e); return nil })

	res := c.HandleNewMessage(context.Background(), domain.NewMessagePayload{
		Metadata: domain.FeedMetadata{TotalCount: 2, UnseenCount: 1},
	})
	if res.Status != FetchOK {
		t.Fatalf("result = %+v", res)
	}

	if metaDuring.TotalCount != 2 {
		t.Errorf("metadata should be written before the fetch, got %+v", metaDuring)
	}
	if api.calls()[0].Params.Get("before") != "cur_a" {
		t.Errorf("expected fetch before the head cursor, params = %v", api.calls()[0].Params)
	}
	equalIDs(t, c.State().Items, "b", "a")
	if len(realtime) != 1 || realtime[0].Source != SourceRealtime {
		t.Errorf("realtime events = %+v", realtime)
	}
}

func TestHandleNewMessageEmptyFeedRefreshes(t *testing.T) {
	api := &fakeAPI{respond: func(rest.Request) rest.Result {
		return okBody(t, response(domain.FeedMetadata{TotalCount: 1}, "", item("a", 1)))
	}}
	c := newController(api, domain.FeedClientOptions{})

	c.HandleNewMessage(context.Background(), domain.NewMessagePayload{})

	if api.calls()[0].Params.Has("before") {
		t.Errorf("empty feed should refresh, params = %v", api.calls()[0].Params)
	}
	equalIDs(t, c.State().Items, "a")
}

func TestMarkAsSeenAndRead(t *testing.T) {
	tests := []struct {
		name       string
		mark       func(c *Controller, items ...domain.FeedItem) rest.Result
		meta       domain.FeedMetadata
		wantMeta   domain.FeedMetadata
		wantMethod string
		wantPath   string
		check      func(domain.FeedItem) bool
	}{
		{
			name:       "seen decrements unseen",
			mark:       func(c *Controller, it ...domain.FeedItem) rest.Result { return c.MarkAsSeen(context.Background(), it...) },
			meta:       domain.FeedMetadata{TotalCount: 2, UnseenCount: 2, UnreadCount: 2},
			wantMeta:   domain.FeedMetadata{TotalCount: 2, UnseenCount: 1, UnreadCount: 2},
			wantMethod: http.MethodPut,
			wantPath:   "/v1/messages/a/seen",
			check:      domain.FeedItem.IsSeen,
		},
		{
			name:       "unread increments unread",
			mark:       func(c *Controller, it ...domain.FeedItem) rest.Result { return c.MarkAsUnread(context.Background(), it...) },
			meta:       domain.FeedMetadata{TotalCount: 2, UnreadCount: 0},
			wantMeta:   domain.FeedMetadata{TotalCount: 2, UnreadCount: 1},
			wantMethod: http.MethodDelete,
			wantPath:   "/v1/messages/a/unread",
			check:      func(i domain.FeedItem) bool { return !i.IsRead() },
		},
		{
			name:       "read clamps at zero",
			mark:       func(c *Controller, it ...domain.FeedItem) rest.Result { return c.MarkAsRead(context.Background(), it...) },
			meta:       domain.FeedMetadata{TotalCount: 2, UnreadCount: 0},
			wantMeta:   domain.FeedMetadata{TotalCount: 2, UnreadCount: 0},
			wantMethod: http.MethodPut,
			wantPath:   "/v1/messages/a/read",
			check:      domain.FeedItem.IsRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			c := newController(api, domain.FeedClientOptions{})
			a := item("a", 1)
			seed(t, c, tt.meta, a, item("b", 2))

			res := tt.mark(c, a)
			if !res.OK() {
				t.Fatalf("result = %+v", res)
			}

			st := c.State()
			if st.Metadata != tt.wantMeta {
				t.Errorf("metadata = %+v, want %+v", st.Metadata, tt.wantMeta)
			}
			if !tt.check(st.Items[1]) {
				t.Errorf("item a not updated: %+v", st.Items[1])
			}

			calls := api.calls()
			if len(calls) != 1 || calls[0].Method != tt.wantMethod || calls[0].Path != tt.wantPath {
				t.Errorf("calls = %+v", calls)
			}
		})
	}
}

func TestStatusRoundTripRestoresCounts(t *testing.T) {
	ctx := context.Background()
	start := domain.FeedMetadata{TotalCount: 3, UnseenCount: 3, UnreadCount: 3}

	tests := []struct {
		name    string
		scope   domain.ArchivedScope
		set     func(*Controller, context.Context, ...domain.FeedItem) rest.Result
		unset   func(*Controller, context.Context, ...domain.FeedItem) rest.Result
		midMeta domain.FeedMetadata
		isSet   func(domain.FeedItem) bool
		paths   []string
	}{
		{
			name:    "read then unread",
			set:     (*Controller).MarkAsRead,
			unset:   (*Controller).MarkAsUnread,
			midMeta: domain.FeedMetadata{TotalCount: 3, UnseenCount: 3, UnreadCount: 0},
			isSet:   domain.FeedItem.IsRead,
			paths:   []string{"/v1/messages/batch/read", "/v1/messages/batch/unread"},
		},
		{
			name:    "seen then unseen",
			set:     (*Controller).MarkAsSeen,
			unset:   (*Controller).MarkAsUnseen,
			midMeta: domain.FeedMetadata{TotalCount: 3, UnseenCount: 0, UnreadCount: 3},
			isSet:   domain.FeedItem.IsSeen,
			paths:   []string{"/v1/messages/batch/seen", "/v1/messages/batch/unseen"},
		},
		{
			name:    "archived then unarchived with archived items shown",
			scope:   domain.ArchivedInclude,
			set:     (*Controller).MarkAsArchived,
			unset:   (*Controller).MarkAsUnarchived,
			midMeta: start,
			isSet:   domain.FeedItem.IsArchived,
			paths:   []string{"/v1/messages/batch/archived", "/v1/messages/batch/unarchived"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			c := newController(api, domain.FeedClientOptions{Archived: tt.scope})
			seed(t, c, start, item("a", 1), item("b", 2), item("c", 3))
			items := c.State().Items

			tt.set(c, ctx, items...)
			st := c.State()
			if st.Metadata != tt.midMeta {
				t.Errorf("after set: metadata = %+v, want %+v", st.Metadata, tt.midMeta)
			}
			for _, it := range st.Items {
				if !tt.isSet(it) {
					t.Errorf("after set: item %s not updated", it.ID)
				}
			}

			tt.unset(c, ctx, items...)
			st = c.State()
			if st.Metadata != start {
				t.Errorf("after unset: metadata = %+v, want %+v", st.Metadata, start)
			}
			equalIDs(t, st.Items, "c", "b", "a")
			for _, it := range st.Items {
				if tt.isSet(it) {
					t.Errorf("after unset: item %s still set", it.ID)
				}
			}

			calls := api.calls()
			if len(calls) != 2 || calls[0].Path != tt.paths[0] || calls[1].Path != tt.paths[1] {
				t.Errorf("calls = %+v", calls)
			}
		})
	}
}

func TestOptimisticWriteBeforeRemoteCall(t *testing.T) {
	api := &fakeAPI{}
	c := newController(api, domain.FeedClientOptions{})
	a := item("a", 1)
	seed(t, c, domain.FeedMetadata{UnreadCount: 1}, a)

	var seenDuring domain.FeedItem
	var metaDuring domain.FeedMetadata
	api.respond = func(rest.Request) rest.Result {
		st := c.State()
		seenDuring, metaDuring = st.Items[0], st.Metadata
		return failed(http.StatusInternalServerError)
	}

	res := c.MarkAsRead(context.Background(), a)

	if res.OK() {
		t.Fatal("remote failure should be returned as-is")
	}
	if !seenDuring.IsRead() || metaDuring.UnreadCount != 0 {
		t.Errorf("optimistic write should precede the remote call: %+v %+v", seenDuring, metaDuring)
	}
	if st := c.State(); !st.Items[0].IsRead() || st.Metadata.UnreadCount != 0 {
		t.Errorf("default policy must not roll back: %+v", st)
	}
}

func TestBatchStatusUpdate(t *testing.T) {
	var body domain.BatchStatusRequest
	api := &fakeAPI{}
	api.respond = func(req rest.Request) rest.Result {
		body = req.Data.(domain.BatchStatusRequest)
		return rest.Result{StatusCode: rest.OutcomeOK}
	}
	c := newController(api, domain.FeedClientOptions{})
	a, b := item("a", 1), item("b", 2)
	seed(t, c, domain.FeedMetadata{TotalCount: 2, UnseenCount: 2}, a, b)

	c.MarkAsSeen(context.Background(), a, b)

	calls := api.calls()
	if len(calls) != 1 || calls[0].Method != http.MethodPost || calls[0].Path != "/v1/messages/batch/seen" {
		t.Fatalf("calls = %+v", calls)
	}
	if len(body.MessageIDs) != 2 {
		t.Errorf("message_ids = %v", body.MessageIDs)
	}
	if got := c.State().Metadata.UnseenCount; got != 0 {
		t.Errorf("unseen = %d, want 0", got)
	}
}

func TestStatusUpdateEmptyIsNoop(t *testing.T) {
	api := &fakeAPI{}
	c := newController(api, domain.FeedClientOptions{})
	seed(t, c, domain.FeedMetadata{UnseenCount: 3})

	res := c.MarkAsSeen(context.Background())

	if !res.OK() {
		t.Errorf("empty update should succeed, got %+v", res)
	}
	if len(api.calls()) != 0 {
		t.Error("empty update must not call the API")
	}
	if c.State().Metadata.UnseenCount != 3 {
		t.Error("empty update must not touch metadata")
	}
}

func TestMarkAsArchived(t *testing.T) {
	seen := baseTime

	// a is unseen and unread, b is seen and unread
	fixture := func() (domain.FeedItem, domain.FeedItem, domain.FeedItem) {
		a, b, c := item("a", 1), item("b", 2), item("c", 3)
		b.SeenAt = &seen
		return a, b, c
	}
	meta := domain.FeedMetadata{TotalCount: 3, UnseenCount: 2, UnreadCount: 3}

	tests := []struct {
		scope     domain.ArchivedScope
		wantIDs   []string
		wantMeta  domain.FeedMetadata
		archivedN int
	}{
		{scope: domain.ArchivedExclude, wantIDs: []string{"c"}, wantMeta: domain.FeedMetadata{TotalCount: 1, UnseenCount: 1, UnreadCount: 1}},
		{scope: domain.ArchivedInclude, wantIDs: []string{"c", "b", "a"}, wantMeta: meta, archivedN: 2},
		{scope: domain.ArchivedOnly, wantIDs: []string{"c", "b", "a"}, wantMeta: meta, archivedN: 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			api := &fakeAPI{}
			c := newController(api, domain.FeedClientOptions{Archived: tt.scope})
			a, b, third := fixture()
			seed(t, c, meta, a, b, third)
			c.store.SetNetworkStatus(domain.NetworkLoading)

			c.MarkAsArchived(context.Background(), a, b)

			st := c.State()
			equalIDs(t, st.Items, tt.wantIDs...)
			if st.Metadata != tt.wantMeta {
				t.Errorf("metadata = %+v, want %+v", st.Metadata, tt.wantMeta)
			}
			archived := 0
			for _, it := range st.Items {
				if it.IsArchived() {
					archived++
				}
			}
			if archived != tt.archivedN {
				t.Errorf("archived items = %d, want %d", archived, tt.archivedN)
			}
			if st.NetworkStatus != domain.NetworkLoading {
				t.Errorf("archiving must not touch network status, got %s", st.NetworkStatus)
			}

			calls := api.calls()
			if len(calls) != 1 || calls[0].Path != "/v1/messages/batch/archived" {
				t.Errorf("calls = %+v", calls)
			}
		})
	}
}

func TestMarkAsArchivedClampsCounts(t *testing.T) {
	api := &fakeAPI{}
	c := newController(api, domain.FeedClientOptions{})
	a := item("a", 1)
	seed(t, c, domain.FeedMetadata{}, a)

	c.MarkAsArchived(context.Background(), a)

	if m := c.State().Metadata; m != (domain.FeedMetadata{}) {
		t.Errorf("metadata = %+v, want zero", m)
	}
}

func TestRollbackOnFailure(t *testing.T) {
	api := &fakeAPI{respond: func(rest.Request) rest.Result { return failed(http.StatusBadGateway) }}
	c := New(Config{FeedID: "feed1", UserID: "user1", Policy: RollbackOnFailure{}}, api, nil, nil, nil)
	a, b := item("a", 1), item("b", 2)
	meta := domain.FeedMetadata{TotalCount: 2, UnseenCount: 2, UnreadCount: 2}
	seed(t, c, meta, a, b)

	c.MarkAsRead(context.Background(), a)
	st := c.State()
	if st.Items[1].IsRead() || st.Metadata != meta {
		t.Errorf("read should be rolled back: %+v", st)
	}

	c.MarkAsArchived(context.Background(), a, b)
	st = c.State()
	equalIDs(t, st.Items, "b", "a")
	if st.Metadata != meta {
		t.Errorf("archive should be rolled back, metadata = %+v", st.Metadata)
	}
}

func TestListenForUpdates(t *testing.T) {
	api := &fakeAPI{respond: func(rest.Request) rest.Result {
		return okBody(t, response(domain.FeedMetadata{TotalCount: 1}, "", item("a", 1)))
	}}
	sock := &fakeSocket{}
	ch := newFakeChannel()
	c := New(Config{FeedID: "feed1", UserID: "user1"}, api, sock, ch, nil)

	if err := c.ListenForUpdates(context.Background()); err != nil {
		t.Fatalf("ListenForUpdates: %v", err)
	}
	if err := c.ListenForUpdates(context.Background()); err != nil {
		t.Fatalf("second ListenForUpdates: %v", err)
	}
	if sock.connects != 1 || ch.joins != 1 {
		t.Errorf("connects = %d joins = %d, want 1 and 1", sock.connects, ch.joins)
	}

	ch.push(t, domain.NewMessagePayload{Metadata: domain.FeedMetadata{TotalCount: 1}})
	equalIDs(t, c.State().Items, "a")

	ch.state = socket.ChannelErrored
	if err := c.ListenForUpdates(context.Background()); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if ch.joins != 2 {
		t.Errorf("errored channel should be rejoined, joins = %d", ch.joins)
	}
}

func TestListenForUpdatesConnectError(t *testing.T) {
	sock := &fakeSocket{err: errors.New("dial failed")}
	ch := newFakeChannel()
	c := New(Config{FeedID: "f", UserID: "u"}, &fakeAPI{}, sock, ch, nil)

	if err := c.ListenForUpdates(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if ch.joins != 0 {
		t.Error("channel must not be joined without a connection")
	}

	noPush := newController(&fakeAPI{}, domain.FeedClientOptions{})
	if err := noPush.ListenForUpdates(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestTeardown(t *testing.T) {
	sock := &fakeSocket{}
	ch := newFakeChannel()
	c := New(Config{FeedID: "f", UserID: "u"}, &fakeAPI{}, sock, ch, nil)
	c.ListenForUpdates(context.Background())
	c.On(AllEvents, func(Event) error { return nil })
	c.Store().Subscribe(func(State) { t.Error("subscriber should be dropped") })

	if err := c.Teardown(context.Background()); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	if ch.leaves != 1 || ch.State() != socket.ChannelClosed {
		t.Errorf("channel should be left, leaves = %d", ch.leaves)
	}
	if _, ok := ch.handlers[socket.EventNewMessage]; ok {
		t.Error("new-message handler should be removed")
	}
	if c.events.ListenerCount() != 0 {
		t.Error("listeners should be cleared")
	}
	c.store.SetLoading(true)

	if err := c.ListenForUpdates(context.Background()); !errors.Is(err, domain.ErrFeedClosed) {
		t.Errorf("expected ErrFeedClosed after teardown, got %v", err)
	}
	if ch.joins != 1 || sock.connects != 1 {
		t.Errorf("a torn down feed must not reconnect, joins = %d connects = %d", ch.joins, sock.connects)
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("feed1", "user1"); got != "feeds:feed1:user1" {
		t.Errorf("Topic = %q", got)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}
