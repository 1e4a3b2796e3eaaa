package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/service/qa"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Manager is the registry of live conversations. Every conversation gets its
// own cache and history; nothing is shared between sessions.
type Manager struct {
	deps     Collaborators
	answerer qa.Answerer
	events   EventSink
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Conversation
}

// NewManager creates an empty registry. events may be nil.
func NewManager(deps Collaborators, answerer qa.Answerer, events EventSink) *Manager {
	return &Manager{
		deps:     deps,
		answerer: answerer,
		events:   events,
		log:      logging.WithComponent("session-manager"),
		sessions: make(map[string]*Conversation),
	}
}

// Create opens a new session.
func (m *Manager) Create() (string, *Conversation) {
	id := uuid.NewString()
	conv := NewConversation(id, m.deps, m.answerer, m.events)

	m.mu.Lock()
	m.sessions[id] = conv
	m.mu.Unlock()

	conv.metrics.RecordSessionOpened()
	m.log.Info().Str("session_id", id).Msg("Session created")
	return id, conv
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

// Delete resets and removes the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	conv, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	conv.Reset()
	conv.metrics.RecordSessionClosed()
	m.log.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close resets every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Conversation)
	m.mu.Unlock()

	for _, conv := range sessions {
		conv.Reset()
		conv.metrics.RecordSessionClosed()
	}
}
