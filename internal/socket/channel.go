package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// ChannelState is the lifecycle state of a channel
type ChannelState string

const (
	ChannelClosed  ChannelState = "closed"
	ChannelJoining ChannelState = "joining"
	ChannelJoined  ChannelState = "joined"
	ChannelLeaving ChannelState = "leaving"
	ChannelErrored ChannelState = "errored"
)

// Handler receives the payload of a pushed event
type Handler func(payload json.RawMessage)

// Channel is a topic subscription on a Socket
type Channel struct {
	socket *Socket
	topic  string
	params json.RawMessage

	mu       sync.RWMutex
	state    ChannelState
	joinRef  string
	handlers map[string][]Handler

	// pushed events wait here for the dispatch goroutine, which runs only
	// while the queue is non-empty
	queue       []Message
	dispatching bool
}

func newChannel(s *Socket, topic string, params any) *Channel {
	raw, err := json.Marshal(params)
	if err != nil || params == nil {
		raw = json.RawMessage("{}")
	}
	return &Channel{
		socket:   s,
		topic:    topic,
		params:   raw,
		state:    ChannelClosed,
		handlers: make(map[string][]Handler),
	}
}

// Topic returns the channel topic
func (c *Channel) Topic() string {
	return c.topic
}

// State returns the current state
func (c *Channel) State() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Join subscribes to the topic and waits for the server reply. Joining an
// already joined channel is a no-op.
func (c *Channel) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ChannelJoined || c.state == ChannelJoining {
		c.mu.Unlock()
		return nil
	}
	ref := c.socket.makeRef()
	c.joinRef = ref
	c.state = ChannelJoining
	c.mu.Unlock()

	reply, err := c.socket.request(ctx, Message{
		JoinRef: ref,
		Ref:     ref,
		Topic:   c.topic,
		Event:   EventJoin,
		Payload: c.params,
	})
	if err != nil {
		c.setState(ChannelErrored)
		return err
	}
	if reply.Status != ReplyOK {
		c.setState(ChannelErrored)
		return fmt.Errorf("%w: %s: %s", domain.ErrChannelJoin, c.topic, string(reply.Response))
	}

	c.setState(ChannelJoined)
	c.socket.logger.Debug("Channel joined", "topic", c.topic)
	return nil
}

// Leave unsubscribes from the topic. Handlers stay registered.
func (c *Channel) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ChannelClosed {
		c.mu.Unlock()
		return nil
	}
	wasJoined := c.state == ChannelJoined
	joinRef := c.joinRef
	c.state = ChannelLeaving
	c.mu.Unlock()

	var err error
	if wasJoined && c.socket.IsConnected() {
		_, err = c.socket.request(ctx, Message{
			JoinRef: joinRef,
			Topic:   c.topic,
			Event:   EventLeave,
		})
	}

	c.setState(ChannelClosed)
	return err
}

// On registers handler for event
func (c *Channel) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Off removes every handler for event
func (c *Channel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

func (c *Channel) setState(state ChannelState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Channel) markErrored() {
	c.mu.Lock()
	if c.state != ChannelClosed {
		c.state = ChannelErrored
	}
	c.mu.Unlock()
}

// trigger is called on the socket read loop. Handlers run on a separate
// goroutine, one event at a time in arrival order, so a slow handler never
// holds up replies for other requests on the socket.
func (c *Channel) trigger(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.JoinRef != "" && msg.JoinRef != c.joinRef {
		return
	}
	switch msg.Event {
	case EventError:
		c.state = ChannelErrored
	case EventClose:
		c.state = ChannelClosed
	}
	if c.state != ChannelJoined || len(c.handlers[msg.Event]) == 0 {
		return
	}

	c.queue = append(c.queue, msg)
	if !c.dispatching {
		c.dispatching = true
		go c.dispatchLoop()
	}
}

func (c *Channel) dispatchLoop() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.dispatching = false
			c.mu.Unlock()
			return
		}
		msg := c.queue[0]
		c.queue[0] = Message{}
		c.queue = c.queue[1:]

		// Off or Leave since the event arrived drops it
		var handlers []Handler
		if c.state == ChannelJoined {
			handlers = append(handlers, c.handlers[msg.Event]...)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(msg.Payload)
		}
	}
}
