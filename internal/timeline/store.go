// Package timeline reconciles a fetched message history with live
// message events into one deduplicated, ordered sequence per workspace.
package timeline

import (
	"slices"
	"sync"

	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
)

const (
	dropDuplicate        = "duplicate"
	dropForeignWorkspace = "foreign_workspace"
)

// Store holds the merged message sequence of the active workspace.
// Messages are kept sorted by model.Less and unique by ID.
type Store struct {
	mu          sync.RWMutex
	workspaceID string
	messages    []model.Message
	ids         map[string]struct{}
	version     uint64

	metrics *metrics.Engine
}

// NewStore creates an empty store with no active workspace.
func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// SetMetrics attaches engine metrics to the store.
func (s *Store) SetMetrics(m *metrics.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Reset discards every message and makes workspaceID the active workspace.
func (s *Store) Reset(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(workspaceID)
}

func (s *Store) resetLocked(workspaceID string) {
	s.workspaceID = workspaceID
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.version++
}

// Seed merges a history page. When workspaceID differs from the active
// workspace the store is replaced wholesale; otherwise the page is merged
// so messages already delivered by live events are not duplicated.
// It returns the number of messages inserted.
func (s *Store) Seed(workspaceID string, page []model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	if workspaceID != s.workspaceID {
		s.resetLocked(workspaceID)
		replaced = true
	}

	added := 0
	for _, msg := range page {
		if !s.acceptsLocked(msg) {
			s.metrics.MessageDropped(dropForeignWorkspace)
			continue
		}
		if _, ok := s.ids[msg.ID]; ok {
			s.metrics.MessageDropped(dropDuplicate)
			continue
		}
		s.ids[msg.ID] = struct{}{}
		s.messages = append(s.messages, msg)
		added++
	}
	if added > 0 {
		// A late page may hold timestamps older than buffered live events.
		slices.SortFunc(s.messages, model.Compare)
		s.version++
	} else if replaced {
		s.version++
	}
	s.metrics.MessageInserted(added)
	return added
}

// ApplyLiveEvent inserts a message received from the live stream at its
// ordered position. Messages already present or belonging to another
// workspace are ignored. It reports whether the sequence changed.
func (s *Store) ApplyLiveEvent(msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acceptsLocked(msg) {
		s.metrics.MessageDropped(dropForeignWorkspace)
		return false
	}
	if _, ok := s.ids[msg.ID]; ok {
		s.metrics.MessageDropped(dropDuplicate)
		return false
	}

	pos, _ := slices.BinarySearchFunc(s.messages, msg, model.Compare)
	s.messages = slices.Insert(s.messages, pos, msg)
	s.ids[msg.ID] = struct{}{}
	s.version++
	s.metrics.MessageInserted(1)
	return true
}

// acceptsLocked reports whether msg belongs to the active workspace.
// Messages without a workspace id are trusted to the connection's scope.
func (s *Store) acceptsLocked(msg model.Message) bool {
	if s.workspaceID == "" || msg.ID == "" {
		return false
	}
	return msg.WorkspaceID == "" || msg.WorkspaceID == s.workspaceID
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Contains reports whether a message with id is present.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of messages held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// WorkspaceID returns the active workspace.
func (s *Store) WorkspaceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceID
}

// Version increases every time the sequence or active workspace changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
