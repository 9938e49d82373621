package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/workspace-chat/backend/internal/conn"
	"github.com/workspace-chat/backend/internal/model"
)

var alice = &model.Principal{UserID: "u-alice", Name: "alice"}

type pipeConn struct {
	workspaceID string
	inbound     chan model.Frame
	written     chan model.Frame
	closed      chan struct{}
	once        sync.Once
}

func (c *pipeConn) ReadFrame() (model.Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.closed:
		return model.Frame{}, io.EOF
	}
}

func (c *pipeConn) WriteFrame(f model.Frame) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.written <- f:
		return nil
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// pipeTransport hands out in-memory connections and lets tests push frames.
type pipeTransport struct {
	mu    sync.Mutex
	conns []*pipeConn
}

func (t *pipeTransport) Dial(ctx context.Context, workspaceID string, principal *model.Principal) (conn.Conn, error) {
	c := &pipeConn{
		workspaceID: workspaceID,
		inbound:     make(chan model.Frame, 16),
		written:     make(chan model.Frame, 64),
		closed:      make(chan struct{}),
	}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *pipeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// nth waits for the n-th dialed connection.
func (t *pipeTransport) nth(tb testing.TB, n int) *pipeConn {
	tb.Helper()
	eventually(tb, func() bool { return t.count() > n }, "connection was never dialed")
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[n]
}

func (t *pipeTransport) push(tb testing.TB, n int, kind model.EventKind, payload any) {
	tb.Helper()
	f, err := model.NewFrame(kind, payload)
	if err != nil {
		tb.Fatal(err)
	}
	t.nth(tb, n).inbound <- f
}

type historyCall struct {
	workspaceID string
	page        int
}

// fakeHistory serves pages from a map keyed by workspace and page number.
type fakeHistory struct {
	mu    sync.Mutex
	pages map[string]map[int]model.HistoryPage
	calls []historyCall
	err   error
	gate  map[string]chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		pages: make(map[string]map[int]model.HistoryPage),
		gate:  make(map[string]chan struct{}),
	}
}

func (h *fakeHistory) set(workspaceID string, pageNumber, totalPages int, msgs ...model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pages[workspaceID] == nil {
		h.pages[workspaceID] = make(map[int]model.HistoryPage)
	}
	h.pages[workspaceID][pageNumber] = model.HistoryPage{
		Messages:   msgs,
		Pagination: model.Pagination{PageNumber: pageNumber, TotalPages: totalPages},
	}
}

func (h *fakeHistory) FetchHistory(ctx context.Context, workspaceID string, pageNumber, pageSize int) (model.HistoryPage, error) {
	h.mu.Lock()
	h.calls = append(h.calls, historyCall{workspaceID, pageNumber})
	gate, err := h.gate[workspaceID], h.err
	h.mu.Unlock()

	// A gated fetch ignores ctx to model a response that arrives late.
	if gate != nil {
		<-gate
	}
	if err != nil {
		return model.HistoryPage{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[workspaceID][pageNumber], nil
}

func (h *fakeHistory) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// echoSender accepts every message and delivers it back on the live
// stream, the way the relay broadcasts accepted messages.
type echoSender struct {
	mu        sync.Mutex
	transport *pipeTransport
	sent      []string
	at        time.Time
	fail      error
}

func (s *echoSender) SendMessage(ctx context.Context, workspaceID, body string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return model.Message{}, s.fail
	}
	s.sent = append(s.sent, workspaceID+":"+body)
	msg := model.Message{
		ID:          "sent-" + body,
		WorkspaceID: workspaceID,
		Sender:      model.Sender{ID: alice.UserID, Name: alice.Name},
		Body:        body,
		CreatedAt:   s.at,
	}
	s.transport.mu.Lock()
	c := s.transport.conns[len(s.transport.conns)-1]
	s.transport.mu.Unlock()
	f, _ := model.NewFrame(model.EventNewMessage, model.NewMessagePayload{ChatMessage: msg})
	c.inbound <- f
	return msg, nil
}

func eventually(tb testing.TB, cond func() bool, msg string) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatal(msg)
}

func nextFrame(tb testing.TB, c *pipeConn) model.Frame {
	tb.Helper()
	select {
	case f := <-c.written:
		return f
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for frame")
		return model.Frame{}
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

var errUnavailable = errors.New("history unavailable")
