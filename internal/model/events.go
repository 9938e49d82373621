package model

import (
	"encoding/json"
	"fmt"
)

// EventKind names an event on the persistent connection.
type EventKind string

const (
	// Client -> Server
	EventJoinWorkspace  EventKind = "join_workspace"
	EventLeaveWorkspace EventKind = "leave_workspace"
	EventTypingStart    EventKind = "typing_start"
	EventTypingStop     EventKind = "typing_stop"

	// Server -> Client
	EventNewMessage        EventKind = "new_message"
	EventUserTyping        EventKind = "user_typing"
	EventUserStoppedTyping EventKind = "user_stopped_typing"
	EventError             EventKind = "error"

	// Local to the client, never on the wire.
	EventConnect         EventKind = "connect"
	EventDisconnect      EventKind = "disconnect"
	EventConnectError    EventKind = "connect_error"
	EventReconnectFailed EventKind = "reconnect_failed"
)

// Frame is the JSON envelope of every WebSocket text message.
type Frame struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload into a frame of the given kind.
func NewFrame(kind EventKind, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: kind}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return Frame{Event: kind, Data: data}, nil
}

// Event is what subscribers of a connection receive. Err is set for
// connect_error, reconnect_failed and error events.
type Event struct {
	Kind EventKind
	Data json.RawMessage
	Err  error
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Kind)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// WorkspaceRef is the payload of typing_start and typing_stop.
type WorkspaceRef struct {
	WorkspaceID string `json:"workspaceId"`
}

// NewMessagePayload is the payload of new_message.
type NewMessagePayload struct {
	ChatMessage Message `json:"chatMessage"`
}

// TypingPayload is the payload of user_typing and user_stopped_typing.
// UserName may be empty on user_stopped_typing.
type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// ErrorPayload is the payload of a server-pushed error.
type ErrorPayload struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}
