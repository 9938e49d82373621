package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDraft is returned when submitting a blank draft.
	ErrEmptyDraft = errors.New("message body is empty")

	// ErrSendInFlight is returned when submitting while a previous send is unresolved.
	ErrSendInFlight = errors.New("a message send is already in flight")

	// ErrComposerClosed is returned when submitting on a closed composer.
	ErrComposerClosed = errors.New("composer is closed")

	// ErrViewClosed is returned when selecting a workspace on a closed view.
	ErrViewClosed = errors.New("chat view is closed")

	// ErrNotConnected is returned when emitting on a connection that is not connected.
	ErrNotConnected = errors.New("connection is not established")

	// ErrReconnectExhausted is reported when every reconnection attempt failed.
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")

	// ErrWorkspaceRequired is returned when a workspace id is missing.
	ErrWorkspaceRequired = errors.New("workspace id is required")

	// ErrBodyTooLong is returned when a message body exceeds MaxBodyLength.
	ErrBodyTooLong = errors.New("message body is too long")

	// ErrMessageNotFound is returned when a message is not found.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUnauthorized is returned when a request carries no principal.
	ErrUnauthorized = errors.New("unauthorized")
)

// MaxBodyLength bounds the number of characters in a message body.
const MaxBodyLength = 4000

// IsValidationError reports whether err is a local validation rejection
// that never reaches the network.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyDraft) ||
		errors.Is(err, ErrSendInFlight) ||
		errors.Is(err, ErrWorkspaceRequired) ||
		errors.Is(err, ErrBodyTooLong)
}

// TransportError reports a failure of the persistent connection itself.
type TransportError struct {
	Op      string
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("transport %s (attempt %d): %v", e.Op, e.Attempt, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is an error notification pushed by the server.
type ServerError struct {
	Message string
	Code    string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}

// RequestError reports a failed request/response call.
type RequestError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s failed with status %d (%s): %s", e.Op, e.Status, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Message)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// SendError is a failed message send. Body is kept so the caller can retry.
type SendError struct {
	WorkspaceID string
	Body        string
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send message to workspace %s: %v", e.WorkspaceID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
