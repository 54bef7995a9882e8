package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/feed"
	"github.com/amiyamandal-dev/feedsync/internal/socket"
)

// Feeds creates feed controllers bound to the client session
type Feeds struct {
	client *Client

	mu      sync.Mutex
	entries []*feedEntry
}

type feedEntry struct {
	controller *feed.Controller
	sock       *socket.Socket
	channel    *socket.Channel
}

// Initialize validates opts and returns a controller for feedID. The
// controller shares the session transport and socket; its channel joins
// the feeds:<feed>:<user> topic when it listens for updates.
func (f *Feeds) Initialize(feedID string, opts domain.FeedClientOptions) (*feed.Controller, error) {
	if feedID == "" {
		return nil, fmt.Errorf("%w: feed id is required", domain.ErrInvalidInput)
	}
	if err := f.client.validator.Validate(opts); err != nil {
		return nil, err
	}

	api, err := f.client.API()
	if err != nil {
		return nil, err
	}
	sock, err := f.client.Socket()
	if err != nil {
		return nil, err
	}

	userID := f.client.UserID()
	ch := sock.Channel(feed.Topic(feedID, userID), domain.DefaultFeedClientOptions().Merge(opts))

	controller := feed.New(feed.Config{
		FeedID:  feedID,
		UserID:  userID,
		Options: opts,
		Policy:  f.client.policy,
	}, api, sock, ch, f.client.logger)

	f.mu.Lock()
	f.entries = append(f.entries, &feedEntry{controller: controller, sock: sock, channel: ch})
	f.mu.Unlock()

	return controller, nil
}

// Remove tears down controller and unregisters its channel
func (f *Feeds) Remove(ctx context.Context, controller *feed.Controller) error {
	f.mu.Lock()
	var entry *feedEntry
	for i, e := range f.entries {
		if e.controller == controller {
			entry = e
			f.entries = append(f.entries[:i:i], f.entries[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	if entry == nil {
		return nil
	}
	return entry.teardown(ctx)
}

// Count returns the number of initialized feeds
func (f *Feeds) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *Feeds) teardownAll(ctx context.Context) error {
	f.mu.Lock()
	entries := f.entries
	f.entries = nil
	f.mu.Unlock()

	var errs []error
	for _, e := range entries {
		errs = append(errs, e.teardown(ctx))
	}
	return errors.Join(errs...)
}

func (e *feedEntry) teardown(ctx context.Context) error {
	err := e.controller.Teardown(ctx)
	e.sock.Remove(e.channel)
	return err
}
