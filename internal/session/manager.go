package session

import (
	"log/slog"
	"sync"

	"github.com/krishimitra/krishimitra/internal/attachment"
	"github.com/krishimitra/krishimitra/internal/history"
)

// Limits bounds a session's draft queue.
type Limits struct {
	MaxAttachmentsPerBatch int
	MaxAttachmentBytes     int64
}

// Manager keeps per-session state keyed by session id. Session state is
// never shared across sessions; concurrent sessions are independent.
type Manager struct {
	analyzer Analyzer
	advisor  Advisor
	store    history.Store
	limits   Limits
	language string
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(log *slog.Logger, analyzer Analyzer, adv Advisor, store history.Store, limits Limits, defaultLanguage string) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		analyzer: analyzer,
		advisor:  adv,
		store:    store,
		limits:   limits,
		language: defaultLanguage,
		logger:   log,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	queue := attachment.NewQueue(m.limits.MaxAttachmentsPerBatch, m.limits.MaxAttachmentBytes)
	s := NewSession(m.logger, id, m.language, queue, m.analyzer, m.advisor, m.store)
	m.sessions[id] = s
	return s
}

// Get returns the session for id, if it exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}
