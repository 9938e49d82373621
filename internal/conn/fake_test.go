package conn

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/workspace-chat/backend/internal/model"
)

var alice = &model.Principal{UserID: "u-alice", Name: "alice"}

// journal records writes across every connection of a transport in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

type fakeConn struct {
	workspaceID string
	journal     *journal
	inbound     chan model.Frame
	written     chan model.Frame
	closed      chan struct{}
	once        sync.Once

	// joinGate, when set, holds the join write until it is closed.
	joinGate chan struct{}
	joining  chan struct{}
}

func newFakeConn(workspaceID string, j *journal) *fakeConn {
	return &fakeConn{
		workspaceID: workspaceID,
		journal:     j,
		inbound:     make(chan model.Frame, 16),
		written:     make(chan model.Frame, 64),
		closed:      make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (model.Frame, error) {
	select {
	case f := <-c.inbound:
		if f.Event == "" {
			return model.Frame{}, ErrMalformedFrame
		}
		return f, nil
	case <-c.closed:
		return model.Frame{}, io.EOF
	}
}

func (c *fakeConn) WriteFrame(f model.Frame) error {
	if c.joinGate != nil && f.Event == model.EventJoinWorkspace {
		close(c.joining)
		<-c.joinGate
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.journal.add(c.workspaceID + ":" + string(f.Event))
	c.written <- f
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	mu      sync.Mutex
	failN   int // dials left to fail; negative fails forever
	dials   int
	conns   []*fakeConn
	journal *journal
	gate    chan struct{}
}

func newFakeTransport(failN int) *fakeTransport {
	return &fakeTransport{failN: failN, journal: &journal{}}
}

func (t *fakeTransport) Dial(ctx context.Context, workspaceID string, principal *model.Principal) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.failN != 0 {
		if t.failN > 0 {
			t.failN--
		}
		return nil, errors.New("connection refused")
	}
	c := newFakeConn(workspaceID, t.journal)
	if t.gate != nil {
		c.joinGate, c.joining = t.gate, make(chan struct{})
	}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) setFail(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failN = n
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) conn(tb testing.TB, i int) *fakeConn {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		if i < len(t.conns) {
			c := t.conns[i]
			t.mu.Unlock()
			return c
		}
		t.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("connection %d was never dialed", i)
	return nil
}

func collect(m *Manager, kind model.EventKind) chan model.Event {
	ch := make(chan model.Event, 32)
	m.Subscribe(kind, func(ev model.Event) { ch <- ev })
	return ch
}

func waitEvent(tb testing.TB, ch <-chan model.Event) model.Event {
	tb.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func nextFrame(tb testing.TB, c *fakeConn) model.Frame {
	tb.Helper()
	select {
	case f := <-c.written:
		return f
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for frame")
		return model.Frame{}
	}
}

func waitState(tb testing.TB, m *Manager, want State) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("expected state %s, got %s", want, m.State())
}

func mustFrame(tb testing.TB, kind model.EventKind, payload any) model.Frame {
	tb.Helper()
	f, err := model.NewFrame(kind, payload)
	if err != nil {
		tb.Fatalf("failed to build frame: %v", err)
	}
	return f
}
