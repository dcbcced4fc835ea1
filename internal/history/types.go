// Package history records completed conversation turns per session.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/krishimitra/krishimitra/internal/analysis"
)

// ErrSessionFull indicates the session's history budget is exhausted and
// a new session must be started.
var ErrSessionFull = errors.New("session history budget exceeded")

// Turn is one completed exchange. It references only fully resolved
// analysis results and is never mutated after creation.
type Turn struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Kind        string            `json:"kind"`
	UserText    string            `json:"user_text"`
	Attachments []analysis.Result `json:"attachments,omitempty"`
	Reply       string            `json:"reply"`
	Language    string            `json:"language"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Size approximates the turn's contribution to the session budget.
func (t Turn) Size() int64 {
	size := int64(len(t.UserText) + len(t.Reply))
	for _, a := range t.Attachments {
		size += int64(len(a.Err) + len(a.Warning))
		for _, l := range a.Labels {
			size += int64(len(l.Name)) + 8
		}
		if a.Document != nil {
			size += int64(len(a.Document.Text) + len(a.Document.AISummary))
		}
	}
	return size
}

// Store persists completed turns.
type Store interface {
	// Append records a completed turn. Returns ErrSessionFull when the
	// session's budget is exhausted.
	Append(ctx context.Context, turn Turn) error
	// List returns the session's turns in creation order.
	List(ctx context.Context, sessionID string) ([]Turn, error)
	// Clear drops the session's turns.
	Clear(ctx context.Context, sessionID string) error
}
