package feed

import (
	"fmt"
	"sync"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// Source tells where a received page came from
type Source int

const (
	// SourcePage is a fetch issued by the caller
	SourcePage Source = iota + 1
	// SourceRealtime is a fetch triggered by a push on the feed channel
	SourceRealtime
)

func (s Source) String() string {
	switch s {
	case SourcePage:
		return "page"
	case SourceRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// Event is emitted once per completed fetch. Every pattern is a projection
// of it: the legacy messages.new listeners read Response, the typed
// listeners read Items and Metadata.
type Event struct {
	Source   Source
	Items    []domain.FeedItem
	Metadata domain.FeedMetadata
	Response domain.FeedResponse
}

// Topic is the concrete topic name of the typed projection
func (e Event) Topic() string {
	return "items.received." + e.Source.String()
}

// Pattern selects which events a listener receives
type Pattern int

const (
	// MessagesNew is the legacy topic, fired for every received page
	MessagesNew Pattern = iota + 1
	// ItemsReceivedPage fires for caller issued fetches
	ItemsReceivedPage
	// ItemsReceivedRealtime fires for fetches triggered by a push
	ItemsReceivedRealtime
	// ItemsReceived matches items.received.*
	ItemsReceived
	// AllEvents matches everything
	AllEvents
)

var patternNames = map[Pattern]string{
	MessagesNew:           "messages.new",
	ItemsReceivedPage:     "items.received.page",
	ItemsReceivedRealtime: "items.received.realtime",
	ItemsReceived:         "items.received.*",
	AllEvents:             "*",
}

func (p Pattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// Matches reports whether a listener bound to p receives e
func (p Pattern) Matches(e Event) bool {
	switch p {
	case MessagesNew, ItemsReceived, AllEvents:
		return true
	case ItemsReceivedPage:
		return e.Source == SourcePage
	case ItemsReceivedRealtime:
		return e.Source == SourceRealtime
	default:
		return false
	}
}

// ParsePattern maps a topic string to a pattern. A trailing "*" segment
// matches every topic below the preceding segments.
func ParsePattern(s string) (Pattern, error) {
	switch s {
	case "items.*":
		return ItemsReceived, nil
	case "messages.*":
		return MessagesNew, nil
	}
	for p, name := range patternNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown event pattern %q", domain.ErrInvalidInput, s)
}

// Handler receives events. A returned error is logged and does not stop
// delivery to later listeners.
type Handler func(Event) error

// ListenerID identifies a registration for Off
type ListenerID uint64

type listener struct {
	id      ListenerID
	pattern Pattern
	handler Handler
}

// Broadcaster delivers feed events to listeners synchronously, in
// registration order
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []listener
	nextID    ListenerID
	logger    *logger.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		listeners: make([]listener, 0),
		logger:    logger.OrNop(log).WithComponent("feed-broadcaster"),
	}
}

// On registers handler for pattern
func (b *Broadcaster) On(pattern Pattern, handler Handler) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners = append(b.listeners, listener{id: b.nextID, pattern: pattern, handler: handler})
	return b.nextID
}

// Off removes a registration. It reports whether the id was registered.
func (b *Broadcaster) Off(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners drops every registration
func (b *Broadcaster) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make([]listener, 0)
}

// ListenerCount returns the number of registrations
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Emit delivers e to every matching listener
func (b *Broadcaster) Emit(e Event) {
	b.mu.RLock()
	listeners := make([]listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		if !l.pattern.Matches(e) {
			continue
		}
		b.deliver(l, e)
	}
}

func (b *Broadcaster) deliver(l listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Feed listener panicked", "pattern", l.pattern, "topic", e.Topic(), "panic", r)
		}
	}()

	if err := l.handler(e); err != nil {
		b.logger.Warn("Feed listener error", "pattern", l.pattern, "topic", e.Topic(), "error", err)
	}
}
