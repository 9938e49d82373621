package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Sender identifies the author of a message.
type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Message is a chat message as assigned by the server.
// Once observed, a message with a given ID never changes.
type Message struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Sender      Sender    `json:"sender"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Less reports whether a sorts before b in a message sequence:
// creation time ascending, identifier ascending for equal times.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Compare is the three-way form of Less, suitable for slices.SortFunc
// and slices.BinarySearchFunc.
func Compare(a, b Message) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

// Principal is the authenticated user a connection or request acts for.
type Principal struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Token  string `json:"-"`
}

// Valid reports whether the principal identifies a user.
func (p *Principal) Valid() bool {
	return p != nil && strings.TrimSpace(p.UserID) != ""
}

// HistoryPage is one page of stored messages returned by a history fetch.
type HistoryPage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes where a history page sits in the full history.
type Pagination struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// HasMore reports whether older pages exist after this one.
func (p Pagination) HasMore() bool {
	return p.PageNumber < p.TotalPages
}

// SendMessageRequest is the body of a message send request.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// SendMessageResponse echoes the accepted message.
type SendMessageResponse struct {
	ChatMessage Message `json:"chatMessage"`
}

// NormalizeBody trims body and checks it is neither blank nor longer than
// MaxBodyLength characters.
func NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyDraft
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", ErrBodyTooLong
	}
	return body, nil
}
