package history

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps turn history in process memory. Used in tests and
// when Postgres is not configured.
type MemoryStore struct {
	mu     sync.Mutex
	turns  map[string][]Turn
	sizes  map[string]int64
	budget int64
}

// NewMemoryStore creates an in-memory store with a per-session byte
// budget. A non-positive budget falls back to 16 MiB.
func NewMemoryStore(budget int64) *MemoryStore {
	if budget <= 0 {
		budget = 16 * 1024 * 1024
	}
	return &MemoryStore{
		turns:  make(map[string][]Turn),
		sizes:  make(map[string]int64),
		budget: budget,
	}
}

func (s *MemoryStore) Append(ctx context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := turn.Size()
	if s.sizes[turn.SessionID]+size > s.budget {
		return fmt.Errorf("%w: budget %d bytes", ErrSessionFull, s.budget)
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	s.sizes[turn.SessionID] += size
	return nil
}

func (s *MemoryStore) List(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	delete(s.sizes, sessionID)
	return nil
}
