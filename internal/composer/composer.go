// Package composer turns draft edits into typing signals and message sends.
package composer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/workspace-chat/backend/internal/model"
)

// DefaultDebounce is how long the draft may stay untouched before typing
// is considered stopped.
const DefaultDebounce = time.Second

// Signaler emits typing signals on the persistent connection.
// *conn.Manager satisfies it.
type Signaler interface {
	Connected() bool
	Emit(kind model.EventKind, payload any) error
}

// Sender performs the message send request. *client.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, workspaceID, body string) (model.Message, error)
}

// PendingSend is a message send that has been submitted but not resolved.
type PendingSend struct {
	WorkspaceID string
	Body        string
	SubmittedAt time.Time

	done chan struct{}
	msg  model.Message
	err  error
}

// Done is closed once the send has resolved.
func (p *PendingSend) Done() <-chan struct{} { return p.done }

// Err returns nil while unresolved or on success, and a *model.SendError on
// failure.
func (p *PendingSend) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Message returns the accepted message after a successful send.
func (p *PendingSend) Message() model.Message {
	select {
	case <-p.done:
		return p.msg
	default:
		return model.Message{}
	}
}

func (p *PendingSend) resolve(msg model.Message, err error) {
	p.msg, p.err = msg, err
	close(p.done)
}

// Option configures a Composer.
type Option func(*Composer)

// WithDebounce replaces DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithClock sets the clock driving the debounce timer.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Composer) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) { c.logger = logger }
}

// OnSendFailed registers fn for failed sends. It is not called for sends
// abandoned by Close.
func OnSendFailed(fn func(*model.SendError)) Option {
	return func(c *Composer) { c.onSendFailed = fn }
}

// OnSendSucceeded registers fn for accepted sends. It is not called for
// sends that complete after Close.
func OnSendSucceeded(fn func(model.Message)) Option {
	return func(c *Composer) { c.onSendSucceeded = fn }
}

// Composer holds the draft for one workspace.
type Composer struct {
	workspaceID  string
	signals      Signaler
	sender       Sender
	clock        clockwork.Clock
	debounce     time.Duration
	logger       *slog.Logger
	onSendFailed func(*model.SendError)

	onSendSucceeded func(model.Message)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu also serializes typing signals so start and stop never reorder.
	mu       sync.Mutex
	draft    string
	typing   bool
	pending  *PendingSend
	timer    clockwork.Timer
	timerGen uint64
	closed   bool
}

// New creates a composer bound to workspaceID.
func New(workspaceID string, signals Signaler, sender Sender, opts ...Option) *Composer {
	c := &Composer{
		workspaceID: workspaceID,
		signals:     signals,
		sender:      sender,
		clock:       clockwork.NewRealClock(),
		debounce:    DefaultDebounce,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("workspace_id", workspaceID)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// BodyChanged records a draft edit. The first non-blank edit while not
// typing emits typing_start; every edit restarts the debounce after which
// typing_stop is emitted.
func (c *Composer) BodyChanged(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.draft = text
	if !c.typing && strings.TrimSpace(text) != "" && c.signals.Connected() {
		c.typing = true
		c.emitLocked(model.EventTypingStart)
	}
	c.armLocked()
}

func (c *Composer) armLocked() {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.debounceElapsed(gen) })
}

// stopTimerLocked cancels the debounce. Bumping the generation also
// neutralizes a callback that already fired but has not run yet.
func (c *Composer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Composer) debounceElapsed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.timerGen {
		return
	}

	c.timer = nil
	if c.typing {
		c.typing = false
		c.emitLocked(model.EventTypingStop)
	}
}

func (c *Composer) emitLocked(kind model.EventKind) {
	if !c.signals.Connected() {
		return
	}
	if err := c.signals.Emit(kind, model.WorkspaceRef{WorkspaceID: c.workspaceID}); err != nil {
		c.logger.Debug("failed to emit typing signal", "event", kind, "err", err)
	}
}

// Submit sends the trimmed draft. Blank drafts, oversized drafts and
// submissions while a previous send is unresolved are rejected without
// touching the network. On acceptance the draft is cleared and typing_stop
// is emitted right away.
func (c *Composer) Submit() (*PendingSend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, model.ErrComposerClosed
	}
	if c.pending != nil {
		return nil, model.ErrSendInFlight
	}
	if c.workspaceID == "" {
		return nil, model.ErrWorkspaceRequired
	}
	body, err := model.NormalizeBody(c.draft)
	if err != nil {
		return nil, err
	}

	p := &PendingSend{
		WorkspaceID: c.workspaceID,
		Body:        body,
		SubmittedAt: c.clock.Now(),
		done:        make(chan struct{}),
	}
	c.pending = p
	c.draft = ""
	c.stopTimerLocked()
	c.typing = false
	c.emitLocked(model.EventTypingStop)

	c.wg.Add(1)
	go c.send(p)
	return p, nil
}

func (c *Composer) send(p *PendingSend) {
	defer c.wg.Done()

	msg, err := c.sender.SendMessage(c.ctx, p.WorkspaceID, p.Body)

	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	abandoned := c.closed
	c.mu.Unlock()

	if err == nil {
		p.resolve(msg, nil)
		if !abandoned && c.onSendSucceeded != nil {
			c.onSendSucceeded(msg)
		}
		return
	}

	sendErr := &model.SendError{WorkspaceID: p.WorkspaceID, Body: p.Body, Err: err}
	p.resolve(model.Message{}, sendErr)
	if abandoned {
		return
	}
	c.logger.Warn("message send failed", "err", err)
	if c.onSendFailed != nil {
		c.onSendFailed(sendErr)
	}
}

// WorkspaceID returns the workspace the composer sends to.
func (c *Composer) WorkspaceID() string { return c.workspaceID }

// Draft returns the current draft text.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Typing reports whether typing_start has been emitted without a matching stop.
func (c *Composer) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Pending returns the unresolved send, if any.
func (c *Composer) Pending() *PendingSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// CanSubmit reports whether Submit would currently be accepted.
func (c *Composer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending != nil || c.workspaceID == "" {
		return false
	}
	_, err := model.NormalizeBody(c.draft)
	return err == nil
}

// Close stops the debounce timer, abandons any in-flight send and waits
// for it to return. Later calls are ignored.
func (c *Composer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.typing = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
