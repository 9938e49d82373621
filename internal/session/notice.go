package session

import (
	"time"
)

// NoticeKind classifies a notice.
type NoticeKind string

const (
	NoticeConnected       NoticeKind = "connected"
	NoticeDisconnected    NoticeKind = "disconnected"
	NoticeConnectError    NoticeKind = "connect_error"
	NoticeReconnectFailed NoticeKind = "reconnect_failed"
	NoticeServerError     NoticeKind = "server_error"
	NoticeRequestFailed   NoticeKind = "request_failed"
	NoticeSendFailed      NoticeKind = "send_failed"
)

// Notice is a user-facing status line: a connectivity change or an error
// that needs no further handling than being shown.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
	At      time.Time
}

// String formats the notice for display.
func (n Notice) String() string {
	if n.Err != nil {
		return n.Message + ": " + n.Err.Error()
	}
	return n.Message
}
