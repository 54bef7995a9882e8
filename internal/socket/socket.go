package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// ProtocolVersion is sent as the vsn parameter
const ProtocolVersion = "2.0.0"

// Config holds the socket settings
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/ws/v1/websocket
	URL               string
	Params            url.Values
	HeartbeatInterval time.Duration
	ReplyTimeout      time.Duration
}

// Socket is a multiplexed websocket connection shared by every channel of
// one authenticated session. It connects lazily and never reconnects on
// its own.
type Socket struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *logger.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{}
	channels map[string][]*Channel
	pending  map[string]chan Message

	writeMu   sync.Mutex
	connected atomic.Bool
	ref       atomic.Uint64
	wg        sync.WaitGroup
}

// New creates a disconnected socket
func New(cfg Config, log *logger.Logger) *Socket {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 10 * time.Second
	}

	return &Socket{
		cfg:      cfg,
		dialer:   websocket.DefaultDialer,
		logger:   logger.OrNop(log).WithComponent("socket"),
		channels: make(map[string][]*Channel),
		pending:  make(map[string]chan Message),
	}
}

// IsConnected reports whether the connection is open
func (s *Socket) IsConnected() bool {
	return s.connected.Load()
}

// Connect opens the connection if it is not already open
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect socket: %w", err)
	}

	s.conn = conn
	s.done = make(chan struct{})
	s.connected.Store(true)

	s.wg.Add(2)
	go s.readLoop(conn, s.done)
	go s.heartbeatLoop(s.done)

	s.logger.Info("Socket connected", "url", s.cfg.URL)
	return nil
}

// Disconnect closes the connection. Joined channels move to errored.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := conn.Close()
	s.wg.Wait()

	s.logger.Info("Socket disconnected")
	return err
}

// Channel returns a channel bound to topic. params are sent with every
// join.
func (s *Socket) Channel(topic string, params any) *Channel {
	ch := newChannel(s, topic, params)

	s.mu.Lock()
	s.channels[topic] = append(s.channels[topic], ch)
	s.mu.Unlock()

	return ch
}

// Remove unregisters ch so it no longer receives frames
func (s *Socket) Remove(ch *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.channels[ch.topic]
	for i, c := range list {
		if c == ch {
			s.channels[ch.topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.channels[ch.topic]) == 0 {
		delete(s.channels, ch.topic)
	}
}

func (s *Socket) makeRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

func (s *Socket) push(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// request pushes msg and waits for the reply carrying the same ref
func (s *Socket) request(ctx context.Context, msg Message) (ReplyPayload, error) {
	if msg.Ref == "" {
		msg.Ref = s.makeRef()
	}

	waiter := make(chan Message, 1)
	s.mu.Lock()
	s.pending[msg.Ref] = waiter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.Ref)
		s.mu.Unlock()
	}()

	if err := s.push(msg); err != nil {
		return ReplyPayload{}, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReplyTimeout)
		defer cancel()
	}

	select {
	case reply, ok := <-waiter:
		if !ok {
			return ReplyPayload{}, domain.ErrNotConnected
		}
		var payload ReplyPayload
		if err := json.Unmarshal(reply.Payload, &payload); err != nil {
			return ReplyPayload{}, fmt.Errorf("invalid reply payload: %w", err)
		}
		return payload, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ReplyPayload{}, fmt.Errorf("%w: %s %s", domain.ErrReplyTimeout, msg.Topic, msg.Event)
		}
		return ReplyPayload{}, ctx.Err()
	}
}

func (s *Socket) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				s.logger.Warn("Socket read failed, closing", "error", err)
				s.mu.Lock()
				if s.conn == conn {
					s.teardownLocked()
				}
				s.mu.Unlock()
				conn.Close()
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Socket) dispatch(msg Message) {
	s.mu.Lock()
	if msg.Event == EventReply {
		if waiter, ok := s.pending[msg.Ref]; ok {
			delete(s.pending, msg.Ref)
			s.mu.Unlock()
			waiter <- msg
			return
		}
	}
	channels := append([]*Channel(nil), s.channels[msg.Topic]...)
	s.mu.Unlock()

	// trigger only queues; no handler runs on the read loop, so Disconnect
	// and request are safe to call from handlers

	for _, ch := range channels {
		ch.trigger(msg)
	}
}

func (s *Socket) heartbeatLoop(done chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			msg := Message{Ref: s.makeRef(), Topic: TopicPhoenix, Event: EventHeartbeat}
			if err := s.push(msg); err != nil {
				s.logger.Warn("Heartbeat failed", "error", err)
			}
		case <-done:
			return
		}
	}
}

// teardownLocked resets the connection state. s.mu must be held.
func (s *Socket) teardownLocked() {
	close(s.done)
	s.conn = nil
	s.connected.Store(false)

	for ref, waiter := range s.pending {
		close(waiter)
		delete(s.pending, ref)
	}
	for _, list := range s.channels {
		for _, ch := range list {
			ch.markErrored()
		}
	}
}

func (s *Socket) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid socket URL: %w", err)
	}
	q := u.Query()
	for key, values := range s.cfg.Params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("vsn", ProtocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EndpointFromHost derives the websocket endpoint from an HTTP API host,
// e.g. https://api.example.com -> wss://api.example.com/ws/v1/websocket
func EndpointFromHost(host, path string) string {
	u, err := url.Parse(host)
	if err != nil {
		return host + path
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = path
	return u.String()
}
