package socket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// JoinAuthorizer decides whether the connection opened by r may join
// topic. A non-nil error is returned to the client as an error reply.
type JoinAuthorizer func(r *http.Request, topic string, payload json.RawMessage) error

// Hub is the server side of the push channel. It upgrades HTTP requests,
// answers joins, leaves and heartbeats, and fans published events out to
// every connection joined to a topic.
type Hub struct {
	upgrader  websocket.Upgrader
	authorize JoinAuthorizer
	logger    *logger.Logger

	mu     sync.RWMutex
	conns  map[*hubConn]struct{}
	topics map[string]map[*hubConn]string
}

type hubConn struct {
	ws   *websocket.Conn
	req  *http.Request
	send chan []byte
	once sync.Once
}

func (c *hubConn) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub. A nil authorize admits every join.
func NewHub(authorize JoinAuthorizer, log *logger.Logger) *Hub {
	if authorize == nil {
		authorize = func(*http.Request, string, json.RawMessage) error { return nil }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		authorize: authorize,
		logger:    logger.OrNop(log).WithComponent("socket-hub"),
		conns:     make(map[*hubConn]struct{}),
		topics:    make(map[string]map[*hubConn]string),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &hubConn{ws: ws, req: r, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// Publish sends event with payload to every connection joined to topic and
// returns the number of receivers
func (h *Hub) Publish(topic, event string, payload any) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c, joinRef := range h.topics[topic] {
		data, err := json.Marshal(Message{JoinRef: joinRef, Topic: topic, Event: event, Payload: raw})
		if err != nil {
			return delivered, fmt.Errorf("failed to encode frame: %w", err)
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("Dropping push for slow connection", "topic", topic, "event", event)
		}
	}

	if delivered > 0 {
		h.logger.Debug("Published event", "topic", topic, "event", event, "receivers", delivered)
	}
	return delivered, nil
}

// Subscribers returns the number of connections joined to topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every connection
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

func (h *Hub) readPump(c *hubConn) {
	defer h.unregister(c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket closed unexpectedly", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *hubConn, msg Message) {
	switch {
	case msg.Topic == TopicPhoenix && msg.Event == EventHeartbeat:
		h.reply(c, msg, ReplyOK, struct{}{})

	case msg.Event == EventJoin:
		if err := h.authorize(c.req, msg.Topic, msg.Payload); err != nil {
			h.logger.Info("Join rejected", "topic", msg.Topic, "error", err)
			h.reply(c, msg, ReplyError, map[string]string{"reason": err.Error()})
			return
		}
		h.subscribe(c, msg.Topic, msg.JoinRef)
		h.reply(c, msg, ReplyOK, struct{}{})

	case msg.Event == EventLeave:
		h.unsubscribe(c, msg.Topic)
		h.reply(c, msg, ReplyOK, struct{}{})

	default:
		h.reply(c, msg, ReplyError, map[string]string{"reason": "unmatched topic"})
	}
}

func (h *Hub) reply(c *hubConn, req Message, status string, response any) {
	reply, err := NewReply(req, status, response)
	if err != nil {
		h.logger.Error("Failed to build reply", "error", err)
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("Failed to encode reply", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Dropping reply for slow connection", "topic", req.Topic)
	}
}

func (h *Hub) writePump(c *hubConn) {
	defer c.ws.Close()

	for data := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("Websocket write failed", "error", err)
			return
		}
	}
	c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) subscribe(c *hubConn, topic, joinRef string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*hubConn]string)
		h.topics[topic] = subs
	}
	subs[c] = joinRef
}

func (h *Hub) unsubscribe(c *hubConn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) unregister(c *hubConn) {
	h.mu.Lock()
	delete(h.conns, c)
	for topic, subs := range h.topics {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()

	c.close()
}
