package conn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
)

// Frame directions passed to a Recorder.
const (
	DirectionIn  = "i"
	DirectionOut = "o"
)

// Recorder observes every frame read from or written to the connection.
type Recorder interface {
	Record(direction string, frame model.Frame)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for reconnection delays.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithReconnectPolicy replaces DefaultReconnectPolicy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) { m.policy = p.normalized() }
}

// WithMetrics records connection metrics.
func WithMetrics(e *metrics.Engine) Option {
	return func(m *Manager) { m.metrics = e }
}

// WithRecorder attaches a frame recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

type stateListener struct {
	id uint64
	fn func(State)
}

// Manager owns at most one connection, scoped to one workspace.
type Manager struct {
	transport Transport
	clock     clockwork.Clock
	policy    ReconnectPolicy
	logger    *slog.Logger
	metrics   *metrics.Engine
	recorder  Recorder
	registry  *Registry

	// lifecycle serializes Open and Close so that a previous connection is
	// fully torn down, leave included, before the next one dials.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	state       State
	workspaceID string
	principal   *model.Principal
	conn        Conn
	joined      Conn
	cancel      context.CancelFunc
	done        chan struct{}
	listeners   []stateListener
	nextID      uint64
}

// NewManager creates a disconnected Manager.
func NewManager(transport Transport, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		clock:     clockwork.NewRealClock(),
		policy:    DefaultReconnectPolicy(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = NewRegistry(m.logger)
	return m
}

// Subscribe registers fn for events of kind. The returned function
// unsubscribes it.
func (m *Manager) Subscribe(kind model.EventKind, fn Handler) func() {
	return m.registry.Subscribe(kind, fn)
}

// OnStateChange registers fn for state transitions.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, stateListener{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connected reports whether the connection is established.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// WorkspaceID returns the workspace of the current or last connection.
func (m *Manager) WorkspaceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workspaceID
}

// Open connects to workspaceID on behalf of principal. It does nothing when
// either is missing, or when that workspace is already open for the same
// user. Any other open connection is closed first. Dialing happens in the
// background; progress is reported through state changes and events.
func (m *Manager) Open(workspaceID string, principal *model.Principal) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" || !principal.Valid() {
		m.logger.Debug("open skipped: workspace or principal missing")
		return
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	sameTarget := m.cancel != nil && m.state != StateDisconnected && m.workspaceID == workspaceID &&
		m.principal != nil && m.principal.UserID == principal.UserID
	m.mu.RUnlock()
	if sameTarget {
		return
	}

	m.closeLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p := *principal

	m.mu.Lock()
	m.workspaceID = workspaceID
	m.principal = &p
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	m.setState(StateConnecting)
	go m.run(ctx, workspaceID, &p, done)
}

// Close leaves the workspace if connected and tears the connection down.
// It is a no-op when nothing is open.
func (m *Manager) Close() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	joined, workspaceID := conn != nil && m.joined == conn, m.workspaceID
	m.cancel, m.done = nil, nil
	if cancel != nil {
		// Cancelling under mu stops run from attaching another connection.
		cancel()
	}
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	if joined {
		if err := m.write(conn, model.EventLeaveWorkspace, workspaceID); err != nil {
			m.logger.Warn("failed to leave workspace", "workspace_id", workspaceID, "err", err)
		}
	}
	if conn != nil {
		conn.Close()
	}
	<-done

	m.mu.Lock()
	m.conn, m.joined = nil, nil
	m.mu.Unlock()
	m.setState(StateDisconnected)
	m.logger.Debug("connection closed", "workspace_id", workspaceID)
}

// Emit writes an outbound event. It fails with model.ErrNotConnected unless
// the connection is established.
func (m *Manager) Emit(kind model.EventKind, payload any) error {
	m.mu.RLock()
	conn, state := m.conn, m.state
	m.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return model.ErrNotConnected
	}
	return m.write(conn, kind, payload)
}

func (m *Manager) write(conn Conn, kind model.EventKind, payload any) error {
	frame, err := model.NewFrame(kind, payload)
	if err != nil {
		return err
	}
	if err := conn.WriteFrame(frame); err != nil {
		return &model.TransportError{Op: "write " + string(kind), Err: err}
	}
	m.metrics.FrameSent(string(kind))
	if m.recorder != nil {
		m.recorder.Record(DirectionOut, frame)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, workspaceID string, principal *model.Principal, done chan struct{}) {
	defer close(done)

	logger := m.logger.With("workspace_id", workspaceID)
	b := m.policy.newBackOff()
	attempt := 0
	connectedBefore := false

	for {
		conn, err := m.transport.Dial(ctx, workspaceID, principal)
		m.metrics.DialAttempt(err != nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("connect failed", "attempt", attempt, "err", err)
			m.registry.Publish(model.Event{
				Kind: model.EventConnectError,
				Err:  &model.TransportError{Op: "dial", Attempt: attempt, Err: err},
			})
		} else {
			if !m.attach(ctx, conn, workspaceID) {
				conn.Close()
				return
			}
			if connectedBefore || attempt > 0 {
				m.metrics.Reconnected()
			}
			connectedBefore = true
			attempt = 0
			b.Reset()
			logger.Info("connected")
			m.registry.Publish(model.Event{Kind: model.EventConnect})

			readErr := m.readLoop(conn)
			m.detach(conn)
			if ctx.Err() != nil {
				return
			}
			logger.Warn("connection lost", "err", readErr)
			m.registry.Publish(model.Event{
				Kind: model.EventDisconnect,
				Err:  &model.TransportError{Op: "read", Err: readErr},
			})
		}

		if attempt >= m.policy.MaxAttempts {
			m.setState(StateDisconnected)
			logger.Error("giving up reconnecting", "attempts", attempt)
			m.registry.Publish(model.Event{
				Kind: model.EventReconnectFailed,
				Err:  &model.TransportError{Op: "reconnect", Attempt: attempt, Err: model.ErrReconnectExhausted},
			})
			return
		}

		attempt++
		delay := b.NextBackOff()
		m.setState(StateReconnecting)
		logger.Info("reconnecting", "attempt", attempt, "delay", delay)

		timer := m.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// attach installs conn as the current connection, joins the workspace and
// marks the manager connected. It fails once the run has been cancelled.
// The join is written under mu so a concurrent Close observes it and
// always follows it with a leave.
func (m *Manager) attach(ctx context.Context, conn Conn, workspaceID string) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	if err := m.write(conn, model.EventJoinWorkspace, workspaceID); err != nil {
		m.logger.Warn("failed to join workspace", "workspace_id", workspaceID, "err", err)
	} else {
		m.joined = conn
	}
	m.mu.Unlock()

	m.setState(StateConnected)
	return true
}

func (m *Manager) detach(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	if m.joined == conn {
		m.joined = nil
	}
	m.mu.Unlock()
	conn.Close()
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				m.logger.Warn("dropping malformed frame", "err", err)
				continue
			}
			return err
		}
		m.metrics.FrameReceived(string(frame.Event))
		if m.recorder != nil {
			m.recorder.Record(DirectionIn, frame)
		}
		m.dispatch(frame)
	}
}

func (m *Manager) dispatch(frame model.Frame) {
	ev := model.Event{Kind: frame.Event, Data: frame.Data}

	switch frame.Event {
	case model.EventConnect, model.EventDisconnect, model.EventConnectError, model.EventReconnectFailed:
		// Local kinds are never accepted from the wire.
		m.logger.Warn("dropping frame with reserved event", "event", frame.Event)
		return
	case model.EventError:
		var payload model.ErrorPayload
		if err := ev.Decode(&payload); err != nil {
			payload.Message = "unspecified server error"
		}
		ev.Err = &model.ServerError{Message: payload.Message, Code: payload.ErrorCode}
		m.logger.Warn("server reported error", "message", payload.Message, "code", payload.ErrorCode)
	}

	m.registry.Publish(ev)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	listeners := make([]stateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if prev == s {
		return
	}
	m.logger.Debug("connection state changed", "from", prev.String(), "to", s.String())
	for _, l := range listeners {
		l.fn(s)
	}
}
