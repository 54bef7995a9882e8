package feed

import (
	"slices"
	"sync"
	"time"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// DefaultPageSize is the page size a fresh store reports before any fetch
const DefaultPageSize = 50

// State is the aggregate root of a feed session
type State struct {
	Items         []domain.FeedItem
	Metadata      domain.FeedMetadata
	PageInfo      domain.PageInfo
	NetworkStatus domain.NetworkStatus
}

// Loading reports whether a request is outstanding
func (s State) Loading() bool {
	return s.NetworkStatus.InFlight()
}

// Head returns the newest item, if any
func (s State) Head() (domain.FeedItem, bool) {
	if len(s.Items) == 0 {
		return domain.FeedItem{}, false
	}
	return s.Items[0], true
}

func (s State) clone() State {
	out := s
	out.Items = make([]domain.FeedItem, len(s.Items))
	for i, item := range s.Items {
		out.Items[i] = item.Clone()
	}
	if s.PageInfo.Before != nil {
		out.PageInfo.Before = domain.StringPtr(*s.PageInfo.Before)
	}
	if s.PageInfo.After != nil {
		out.PageInfo.After = domain.StringPtr(*s.PageInfo.After)
	}
	return out
}

// ResultOptions control how a fetch response is written into the store
type ResultOptions struct {
	// ShouldAppend merges the entries with the existing items instead of
	// replacing them
	ShouldAppend bool
	// ShouldSetPage overwrites the page info from the response
	ShouldSetPage bool
}

// DefaultResultOptions replace the items and move the page frontier
func DefaultResultOptions() ResultOptions {
	return ResultOptions{ShouldAppend: false, ShouldSetPage: true}
}

// TimeField is an optional write to a nullable timestamp. The zero value
// leaves the field untouched.
type TimeField struct {
	Valid bool
	Time  *time.Time
}

// SetTime writes t into the field
func SetTime(t time.Time) TimeField {
	return TimeField{Valid: true, Time: &t}
}

// ClearTime writes null into the field
func ClearTime() TimeField {
	return TimeField{Valid: true}
}

// ItemAttrs is a shallow patch of the status fields of an item
type ItemAttrs struct {
	ReadAt     TimeField
	SeenAt     TimeField
	ArchivedAt TimeField
}

func (a ItemAttrs) apply(item *domain.FeedItem) {
	if a.ReadAt.Valid {
		item.ReadAt = a.ReadAt.Time
	}
	if a.SeenAt.Valid {
		item.SeenAt = a.SeenAt.Time
	}
	if a.ArchivedAt.Valid {
		item.ArchivedAt = a.ArchivedAt.Time
	}
}

// Store owns the state of one feed session. Every transition is
// synchronous, total and atomic with respect to the others.
type Store struct {
	mu    sync.Mutex
	state State

	subMu       sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

type subscriber struct {
	id int
	fn func(State)
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		state: State{
			Items:         []domain.FeedItem{},
			PageInfo:      domain.PageInfo{PageSize: DefaultPageSize},
			NetworkStatus: domain.NetworkIdle,
		},
	}
}

// State returns a copy of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with the new state after every
// transition. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscriber) bool {
			return sub.id == id
		})
	}
}

// Destroy drops every subscriber
func (s *Store) Destroy() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = nil
}

// SetLoading sets the status to loading, or back to idle
func (s *Store) SetLoading(loading bool) {
	status := domain.NetworkIdle
	if loading {
		status = domain.NetworkLoading
	}
	s.SetNetworkStatus(status)
}

// SetNetworkStatus sets the network status
func (s *Store) SetNetworkStatus(status domain.NetworkStatus) {
	s.update(func(st *State) bool {
		st.NetworkStatus = status
		return true
	})
}

// BeginRequest moves the store into status unless a request is already in
// flight. It reports whether the caller may issue the request.
func (s *Store) BeginRequest(status domain.NetworkStatus) bool {
	started := false
	s.update(func(st *State) bool {
		if st.NetworkStatus.InFlight() {
			return false
		}
		st.NetworkStatus = status
		started = true
		return true
	})
	return started
}

// SetResult writes a fetch response into the store and clears the network
// status to idle
func (s *Store) SetResult(resp domain.FeedResponse, opts ResultOptions) {
	s.update(func(st *State) bool {
		if opts.ShouldAppend {
			st.Items = mergeItems(st.Items, resp.Entries)
		} else {
			st.Items = SortItems(DedupeItems(resp.Entries))
		}
		if opts.ShouldSetPage {
			st.PageInfo = resp.PageInfo
		}
		st.Metadata = resp.Meta.Clamped()
		st.NetworkStatus = domain.NetworkIdle
		return true
	})
}

// SetMetadata replaces the badge counters
func (s *Store) SetMetadata(metadata domain.FeedMetadata) {
	s.update(func(st *State) bool {
		st.Metadata = metadata.Clamped()
		return true
	})
}

// UpdateMetadata replaces the badge counters with fn applied to the current
// ones, in one transition
func (s *Store) UpdateMetadata(fn func(domain.FeedMetadata) domain.FeedMetadata) {
	s.update(func(st *State) bool {
		st.Metadata = fn(st.Metadata).Clamped()
		return true
	})
}

// SetItemAttrs patches every item whose id is in ids. Unknown ids are
// ignored.
func (s *Store) SetItemAttrs(ids []string, attrs ItemAttrs) {
	if len(ids) == 0 {
		return
	}
	wanted := toSet(ids)

	s.update(func(st *State) bool {
		changed := false
		for i := range st.Items {
			if _, ok := wanted[st.Items[i].ID]; ok {
				attrs.apply(&st.Items[i])
				changed = true
			}
		}
		return changed
	})
}

// RemoveItems drops every item whose id is in ids and returns the removed
// items
func (s *Store) RemoveItems(ids []string) []domain.FeedItem {
	if len(ids) == 0 {
		return nil
	}
	wanted := toSet(ids)

	var removed []domain.FeedItem
	s.update(func(st *State) bool {
		st.Items = slices.DeleteFunc(st.Items, func(item domain.FeedItem) bool {
			if _, ok := wanted[item.ID]; ok {
				removed = append(removed, item.Clone())
				return true
			}
			return false
		})
		return len(removed) > 0
	})
	return removed
}

// UpsertItems merges items into the list without touching page info,
// metadata or network status. Given items replace stored ones with the same
// id.
func (s *Store) UpsertItems(items []domain.FeedItem) {
	if len(items) == 0 {
		return
	}
	s.update(func(st *State) bool {
		st.Items = mergeItems(st.Items, items)
		return true
	})
}

// update applies fn under the lock and, when fn reports a change, notifies
// subscribers outside the lock
func (s *Store) update(fn func(*State) bool) {
	s.mu.Lock()
	changed := fn(&s.state)
	var snapshot State
	if changed {
		snapshot = s.state.clone()
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	s.subMu.Lock()
	subs := slices.Clone(s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot)
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
