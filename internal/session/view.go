// Package session ties the connection, presence, timeline and composer
// components together for one mounted chat view.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/workspace-chat/backend/internal/buffer"
	"github.com/workspace-chat/backend/internal/composer"
	"github.com/workspace-chat/backend/internal/conn"
	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
	"github.com/workspace-chat/backend/internal/presence"
	"github.com/workspace-chat/backend/internal/timeline"
)

const (
	// DefaultPageSize is the number of messages fetched per history page.
	DefaultPageSize = 100

	defaultNoticeCapacity = 50
)

// History fetches pages of a workspace's stored messages.
// *client.Client satisfies it.
type History interface {
	FetchHistory(ctx context.Context, workspaceID string, pageNumber, pageSize int) (model.HistoryPage, error)
}

// ViewConfig holds the collaborators and settings of a View.
type ViewConfig struct {
	Principal *model.Principal
	History   History
	Sender    composer.Sender
	Transport conn.Transport

	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Engine
	Recorder conn.Recorder

	PageSize       int
	TypingWindow   time.Duration
	TypingDebounce time.Duration
	Reconnect      conn.ReconnectPolicy
	NoticeCapacity int
}

// workspaceContext holds the runtime components of the selected workspace.
type workspaceContext struct {
	id       string
	conn     *conn.Manager
	tracker  *presence.Tracker
	composer *composer.Composer

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe []func()

	// Guarded by View.mu.
	oldestPage    int
	hasMore       bool
	connectedOnce bool
	refreshing    bool
	refreshAgain  bool
}

// View is one mounted chat view: at most one selected workspace with its
// own connection, typing tracker and composer, plus the message timeline.
type View struct {
	cfg     ViewConfig
	logger  *slog.Logger
	store   *timeline.Store
	notices *buffer.Ring[Notice]

	// lifecycle serializes Select and Close.
	lifecycle sync.Mutex
	wg        sync.WaitGroup

	mu       sync.Mutex
	active   *workspaceContext
	onUpdate func()
	closed   bool
}

// NewView creates a view with no workspace selected.
func NewView(cfg ViewConfig) *View {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = presence.DefaultWindow
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = composer.DefaultDebounce
	}
	if cfg.Reconnect == (conn.ReconnectPolicy{}) {
		cfg.Reconnect = conn.DefaultReconnectPolicy()
	}
	if cfg.NoticeCapacity <= 0 {
		cfg.NoticeCapacity = defaultNoticeCapacity
	}

	store := timeline.NewStore()
	store.SetMetrics(cfg.Metrics)

	return &View{
		cfg:     cfg,
		logger:  cfg.Logger,
		store:   store,
		notices: buffer.NewRing[Notice](cfg.NoticeCapacity),
	}
}

// OnUpdate registers fn to be called after any visible change: messages,
// typers, connection state or notices. fn must not block.
func (v *View) OnUpdate(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onUpdate = fn
}

// Select makes workspaceID the active workspace. The previous workspace is
// torn down first. The first history page is fetched in the background.
// Selecting the active workspace again does nothing.
func (v *View) Select(ctx context.Context, workspaceID string) error {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return model.ErrWorkspaceRequired
	}
	if !v.cfg.Principal.Valid() {
		return model.ErrUnauthorized
	}

	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return model.ErrViewClosed
	}
	prev := v.active
	if prev != nil && prev.id == workspaceID {
		v.mu.Unlock()
		return nil
	}
	v.active = nil
	v.mu.Unlock()

	if prev != nil {
		v.teardown(prev)
	}

	w := v.build(ctx, workspaceID)

	v.mu.Lock()
	v.store.Reset(workspaceID)
	v.active = w
	v.mu.Unlock()

	v.logger.Info("workspace selected", "workspace_id", workspaceID)
	w.conn.Open(workspaceID, v.cfg.Principal)
	go w.tracker.Run(w.ctx)

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.fetchPage(w.ctx, w, 1)
	}()

	v.changed()
	return nil
}

func (v *View) build(ctx context.Context, workspaceID string) *workspaceContext {
	logger := v.logger.With("workspace_id", workspaceID)
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	opts := []conn.Option{
		conn.WithClock(v.cfg.Clock),
		conn.WithLogger(v.logger),
		conn.WithReconnectPolicy(v.cfg.Reconnect),
		conn.WithMetrics(v.cfg.Metrics),
	}
	if v.cfg.Recorder != nil {
		opts = append(opts, conn.WithRecorder(v.cfg.Recorder))
	}

	w := &workspaceContext{
		id:      workspaceID,
		conn:    conn.NewManager(v.cfg.Transport, opts...),
		tracker: presence.NewTracker(v.cfg.Clock, v.cfg.TypingWindow),
		ctx:     wctx,
		cancel:  cancel,
	}
	w.composer = composer.New(workspaceID, w.conn, v.cfg.Sender,
		composer.WithClock(v.cfg.Clock),
		composer.WithDebounce(v.cfg.TypingDebounce),
		composer.WithLogger(v.logger),
		composer.OnSendFailed(func(err *model.SendError) {
			v.notice(NoticeSendFailed, "message could not be sent", err)
		}),
		composer.OnSendSucceeded(func(model.Message) { v.scheduleRefresh(w) }),
	)

	w.tracker.OnChange(func([]string) { v.changed() })
	w.unsubscribe = []func(){
		w.conn.OnStateChange(func(s conn.State) {
			logger.Debug("connection state", "state", s.String())
			v.changed()
		}),
		w.conn.Subscribe(model.EventNewMessage, func(ev model.Event) { v.handleNewMessage(w, ev) }),
		w.conn.Subscribe(model.EventUserTyping, func(ev model.Event) { v.handleTyping(w, ev, true) }),
		w.conn.Subscribe(model.EventUserStoppedTyping, func(ev model.Event) { v.handleTyping(w, ev, false) }),
		w.conn.Subscribe(model.EventError, func(ev model.Event) {
			v.notice(NoticeServerError, "server reported an error", ev.Err)
		}),
		w.conn.Subscribe(model.EventConnect, func(model.Event) { v.handleConnect(w) }),
		w.conn.Subscribe(model.EventDisconnect, func(ev model.Event) {
			v.notice(NoticeDisconnected, "connection lost, reconnecting", ev.Err)
		}),
		w.conn.Subscribe(model.EventConnectError, func(ev model.Event) {
			v.notice(NoticeConnectError, "could not connect", ev.Err)
		}),
		w.conn.Subscribe(model.EventReconnectFailed, func(ev model.Event) {
			v.notice(NoticeReconnectFailed, "gave up reconnecting", ev.Err)
		}),
	}
	return w
}

// teardown releases everything tied to w. Handlers are unsubscribed before
// the components they touch are closed.
func (v *View) teardown(w *workspaceContext) {
	w.cancel()
	for _, unsubscribe := range w.unsubscribe {
		unsubscribe()
	}
	w.composer.Close()
	w.tracker.Close()
	w.conn.Close()
	v.logger.Debug("workspace torn down", "workspace_id", w.id)
}

func (v *View) handleNewMessage(w *workspaceContext, ev model.Event) {
	var payload model.NewMessagePayload
	if err := ev.Decode(&payload); err != nil {
		v.logger.Warn("dropping invalid new_message", "workspace_id", w.id, "err", err)
		return
	}

	v.mu.Lock()
	changed := v.active == w && v.store.ApplyLiveEvent(payload.ChatMessage)
	v.mu.Unlock()

	if changed {
		v.changed()
	}
	if id := payload.ChatMessage.WorkspaceID; id == "" || id == w.id {
		v.scheduleRefresh(w)
	}
}

func (v *View) handleTyping(w *workspaceContext, ev model.Event, started bool) {
	var payload model.TypingPayload
	if err := ev.Decode(&payload); err != nil {
		v.logger.Warn("dropping invalid typing event", "workspace_id", w.id, "event", ev.Kind, "err", err)
		return
	}
	if !v.isActive(w) {
		return
	}
	// Another session of the same user still delivers our own signals.
	if payload.UserID != "" && payload.UserID == v.cfg.Principal.UserID {
		return
	}

	name := payload.UserName
	if strings.TrimSpace(name) == "" {
		name = payload.UserID
	}
	if started {
		w.tracker.TypingStarted(name)
	} else {
		w.tracker.TypingStopped(name)
	}
}

func (v *View) handleConnect(w *workspaceContext) {
	v.mu.Lock()
	if v.active != w {
		v.mu.Unlock()
		return
	}
	reconnected := w.connectedOnce
	w.connectedOnce = true
	v.mu.Unlock()

	v.notice(NoticeConnected, "connected", nil)
	if !reconnected {
		return
	}

	// Messages sent while the stream was down only reach us through history.
	v.scheduleRefresh(w)
}

// scheduleRefresh re-fetches page 1 of w in the background. Requests made
// while a refresh is running collapse into one follow-up fetch.
func (v *View) scheduleRefresh(w *workspaceContext) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active != w {
		return
	}
	if w.refreshing {
		w.refreshAgain = true
		return
	}
	w.refreshing = true
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for {
			v.fetchPage(w.ctx, w, 1)

			v.mu.Lock()
			again := w.refreshAgain && v.active == w
			w.refreshAgain = false
			if !again {
				w.refreshing = false
			}
			v.mu.Unlock()
			if !again {
				return
			}
		}
	}()
}

// fetchPage fetches one history page for w and merges it into the store.
// A result that arrives after w was deselected is discarded.
func (v *View) fetchPage(ctx context.Context, w *workspaceContext, pageNumber int) (int, error) {
	page, err := v.cfg.History.FetchHistory(ctx, w.id, pageNumber, v.cfg.PageSize)

	v.mu.Lock()
	if v.active != w {
		v.mu.Unlock()
		v.logger.Debug("discarding history for deselected workspace", "workspace_id", w.id, "page", pageNumber)
		return 0, nil
	}
	if err != nil {
		v.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			v.notice(NoticeRequestFailed, "could not load message history", err)
		}
		return 0, err
	}

	added := v.store.Seed(w.id, page.Messages)
	if pageNumber >= w.oldestPage {
		w.oldestPage = pageNumber
		w.hasMore = page.Pagination.HasMore()
	}
	v.mu.Unlock()

	v.logger.Debug("history merged", "workspace_id", w.id, "page", pageNumber, "added", added)
	v.changed()
	return added, nil
}

func (v *View) current() (*workspaceContext, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return nil, model.ErrWorkspaceRequired
	}
	return v.active, nil
}

func (v *View) isActive(w *workspaceContext) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active == w
}

// Refresh re-fetches the newest history page and merges it.
func (v *View) Refresh(ctx context.Context) error {
	w, err := v.current()
	if err != nil {
		return err
	}
	_, err = v.fetchPage(ctx, w, 1)
	return err
}

// LoadOlder fetches the next older history page and merges it. It returns
// the number of messages added; zero with a nil error means the history is
// exhausted.
func (v *View) LoadOlder(ctx context.Context) (int, error) {
	w, err := v.current()
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	next, more := w.oldestPage+1, w.hasMore || w.oldestPage == 0
	v.mu.Unlock()
	if !more {
		return 0, nil
	}
	return v.fetchPage(ctx, w, next)
}

// HasMore reports whether older history pages remain.
func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active != nil && v.active.hasMore
}

// WorkspaceID returns the selected workspace.
func (v *View) WorkspaceID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return ""
	}
	return v.active.id
}

// Messages returns a snapshot of the timeline.
func (v *View) Messages() []model.Message {
	return v.store.Snapshot()
}

// Version changes whenever the timeline changes.
func (v *View) Version() uint64 {
	return v.store.Version()
}

// Typers returns the sorted names of participants currently typing.
func (v *View) Typers() []string {
	w, err := v.current()
	if err != nil {
		return nil
	}
	return w.tracker.Typers()
}

// State returns the connection state of the selected workspace.
func (v *View) State() conn.State {
	w, err := v.current()
	if err != nil {
		return conn.StateDisconnected
	}
	return w.conn.State()
}

// Composer returns the composer of the selected workspace, or nil.
func (v *View) Composer() *composer.Composer {
	w, err := v.current()
	if err != nil {
		return nil
	}
	return w.composer
}

// Notices returns recent notices, oldest first.
func (v *View) Notices() []Notice {
	return v.notices.Items()
}

// Close tears the view down. Later calls are ignored.
func (v *View) Close() {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	w := v.active
	v.active = nil
	v.mu.Unlock()

	if w != nil {
		v.teardown(w)
	}
	v.wg.Wait()
	v.logger.Debug("view closed")
}

func (v *View) notice(kind NoticeKind, message string, err error) {
	n := Notice{Kind: kind, Message: message, Err: err, At: v.cfg.Clock.Now()}
	v.notices.Push(n)
	if err != nil {
		v.logger.Info(message, "notice", kind, "err", err)
	}
	v.changed()
}

func (v *View) changed() {
	v.mu.Lock()
	fn := v.onUpdate
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}
