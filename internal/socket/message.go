// Package socket implements the feed push channel: a Phoenix style
// (vsn 2.0.0, JSON array frames) websocket protocol with topic channels,
// join/leave replies and heartbeats. It holds both the client Socket used
// by feeds and the server Hub used by the reference API.
package socket

import (
	"encoding/json"
	"fmt"
)

// Protocol events
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	// EventNewMessage is pushed on feed channels when new activity exists
	EventNewMessage = "new-message"

	// TopicPhoenix carries heartbeats
	TopicPhoenix = "phoenix"
)

// Reply statuses
const (
	ReplyOK    = "ok"
	ReplyError = "error"
)

// Message is one frame. On the wire it is the array
// [join_ref, ref, topic, event, payload].
type Message struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// MarshalJSON encodes the array form. Empty refs become null.
func (m Message) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{nullable(m.JoinRef), nullable(m.Ref), m.Topic, m.Event, payload})
}

// UnmarshalJSON decodes the array form
func (m *Message) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("invalid frame: expected 5 elements, got %d", len(parts))
	}

	var joinRef, ref *string
	if err := json.Unmarshal(parts[0], &joinRef); err != nil {
		return fmt.Errorf("invalid join_ref: %w", err)
	}
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return fmt.Errorf("invalid ref: %w", err)
	}
	if err := json.Unmarshal(parts[2], &m.Topic); err != nil {
		return fmt.Errorf("invalid topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &m.Event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	m.JoinRef = deref(joinRef)
	m.Ref = deref(ref)
	m.Payload = parts[4]
	return nil
}

// ReplyPayload is the payload of a phx_reply frame
type ReplyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// NewReply builds a reply to req
func NewReply(req Message, status string, response any) (Message, error) {
	resp, err := json.Marshal(response)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode reply: %w", err)
	}
	payload, err := json.Marshal(ReplyPayload{Status: status, Response: resp})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode reply: %w", err)
	}
	return Message{
		JoinRef: req.JoinRef,
		Ref:     req.Ref,
		Topic:   req.Topic,
		Event:   EventReply,
		Payload: payload,
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
