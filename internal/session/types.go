// Package session owns the per-session conversation state: the draft
// queue, the carried-over analysis context, and the single-flight turn
// orchestrator.
package session

import (
	"context"
	"time"

	"github.com/krishimitra/krishimitra/internal/advisor"
	"github.com/krishimitra/krishimitra/internal/analysis"
	"github.com/krishimitra/krishimitra/internal/attachment"
)

// State is the orchestrator's lifecycle position. Exactly one turn may be
// in flight per session; submissions while non-idle are rejected.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingAnalysis State = "awaiting_analysis"
	StateAwaitingReply    State = "awaiting_reply"
)

// TurnKind is the classification of a submitted turn.
type TurnKind string

const (
	// TurnNewMedia carries at least one newly submitted attachment.
	TurnNewMedia TurnKind = "new_media"
	// TurnFollowUp reuses the stored analysis context with fresh text.
	TurnFollowUp TurnKind = "follow_up"
	// TurnPlain is free text with no media context.
	TurnPlain TurnKind = "plain"
)

// PendingContext remembers the most recent analysis batch so the next
// plain-text turn can reference it without resubmission. At most one
// exists per session; it is replaced whole, never merged.
type PendingContext struct {
	Analyses   []analysis.Result `json:"analyses"`
	SourceKind TurnKind          `json:"source_kind"`
	CapturedAt time.Time         `json:"captured_at"`
}

// TurnInput is one user action submitted to the orchestrator. Attachments
// are taken from the session's draft queue, not carried here.
type TurnInput struct {
	Text     string
	Language string
}

// Analyzer resolves an attachment batch into ordered results.
type Analyzer interface {
	Analyze(ctx context.Context, batch []attachment.Attachment) []analysis.Result
}

// Advisor streams conversational replies.
type Advisor interface {
	StreamChat(ctx context.Context, req advisor.Request) (<-chan advisor.Event, <-chan error)
}
