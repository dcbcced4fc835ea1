package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krishimitra/krishimitra/internal/advisor"
	"github.com/krishimitra/krishimitra/internal/analysis"
	"github.com/krishimitra/krishimitra/internal/attachment"
	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/stream"
)

// Session is one farmer's conversation state. All collaborator calls run
// inside SubmitTurn; the mutex only guards the state fields, never an
// outbound call.
type Session struct {
	ID       string
	Language string

	analyzer Analyzer
	advisor  Advisor
	store    history.Store
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	queue     *attachment.Queue
	pending   *PendingContext
	assembler *stream.Assembler
	cancel    context.CancelFunc
}

// NewSession creates an idle session.
func NewSession(log *slog.Logger, id, language string, queue *attachment.Queue, analyzer Analyzer, adv Advisor, store history.Store) *Session {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(language) == "" {
		language = "en"
	}
	return &Session{
		ID:       id,
		Language: language,
		analyzer: analyzer,
		advisor:  adv,
		store:    store,
		logger:   log.With(slog.String("service", "session"), slog.String("session_id", id)),
		state:    StateIdle,
		queue:    queue,
	}
}

// Queue exposes the draft queue for attachment handling.
func (s *Session) Queue() *attachment.Queue {
	return s.queue
}

// State reports the orchestrator state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns a copy of the carried-over analysis context, if any.
func (s *Session) Pending() *PendingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	cp := *s.pending
	cp.Analyses = append([]analysis.Result(nil), s.pending.Analyses...)
	return &cp
}

// StreamSnapshot returns the current streaming reply view. The second
// return is false when no turn has streamed yet.
func (s *Session) StreamSnapshot() (stream.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assembler == nil {
		return stream.Snapshot{}, false
	}
	return s.assembler.Snapshot(), true
}

// History lists the session's completed turns.
func (s *Session) History(ctx context.Context) ([]history.Turn, error) {
	return s.store.List(ctx, s.ID)
}

// ClearAttachments drops queued drafts and the carried-over context.
// Idempotent.
func (s *Session) ClearAttachments() {
	s.queue.Clear()
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// CancelCurrentTurn cancels the in-flight turn, if any. The cancelled
// turn resolves with ErrTurnCancelled and is not recorded.
func (s *Session) CancelCurrentTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.assembler == nil {
		return false
	}
	s.assembler.Cancel()
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// SubmitTurn runs one conversation turn to completion and returns the
// recorded turn. Exactly one may be in flight; a submission while the
// session is not idle fails immediately with ErrBusy. The session always
// returns to idle, whatever the outcome.
func (s *Session) SubmitTurn(ctx context.Context, input TurnInput) (history.Turn, error) {
	text := strings.TrimSpace(input.Text)
	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = s.Language
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return history.Turn{}, ErrBusy
	}

	// Classification precedence: new media, then follow-up, then plain.
	var kind TurnKind
	var batch []attachment.Attachment
	switch {
	case s.queue.Len() > 0:
		kind = TurnNewMedia
		batch = s.queue.Drain()
		s.state = StateAwaitingAnalysis
	case s.pending != nil && text != "":
		kind = TurnFollowUp
		s.state = StateAwaitingReply
	case text != "":
		kind = TurnPlain
		s.state = StateAwaitingReply
	default:
		s.mu.Unlock()
		return history.Turn{}, ErrEmptyTurn
	}

	turnID := uuid.NewString()
	asm := stream.New(turnID)
	turnCtx, cancel := context.WithCancel(ctx)
	s.assembler = asm
	s.cancel = cancel
	prior := s.pending
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.state = StateIdle
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.logger.Info("turn started",
		slog.String("turn_id", turnID),
		slog.String("kind", string(kind)),
		slog.Int("attachments", len(batch)),
	)

	var results []analysis.Result
	var req advisor.Request
	switch kind {
	case TurnNewMedia:
		results = s.analyzer.Analyze(turnCtx, batch)
		if asm.Snapshot().Cancelled {
			return history.Turn{}, ErrTurnCancelled
		}
		s.setState(StateAwaitingReply)
		req = advisor.BuildMediaRequest(text, language, results)
	case TurnFollowUp:
		results = prior.Analyses
		req = advisor.BuildFollowUpRequest(text, language, results)
	default:
		req = advisor.BuildPlainRequest(text, language)
	}

	eventCh, errCh := s.advisor.StreamChat(turnCtx, req)
	reply, err := asm.Consume(turnCtx, eventCh, errCh)
	if err != nil {
		if errors.Is(err, stream.ErrCancelled) {
			s.logger.Info("turn cancelled", slog.String("turn_id", turnID))
			return history.Turn{}, ErrTurnCancelled
		}
		s.logger.Error("turn failed", slog.String("turn_id", turnID), slog.Any("error", err))
		return history.Turn{}, fmt.Errorf("reply stream: %w", err)
	}

	turn := history.Turn{
		ID:          turnID,
		SessionID:   s.ID,
		Kind:        string(kind),
		UserText:    text,
		Attachments: results,
		Reply:       reply,
		Language:    language,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Append(ctx, turn); err != nil {
		s.logger.Error("turn persist failed", slog.String("turn_id", turnID), slog.Any("error", err))
		return history.Turn{}, err
	}

	// A completed new-media turn replaces the carry-over context whole;
	// follow-ups leave it untouched for further questions.
	if kind == TurnNewMedia && len(results) > 0 {
		s.mu.Lock()
		s.pending = &PendingContext{
			Analyses:   append([]analysis.Result(nil), results...),
			SourceKind: kind,
			CapturedAt: time.Now().UTC(),
		}
		s.mu.Unlock()
	}

	s.logger.Info("turn completed", slog.String("turn_id", turnID), slog.Int("reply_len", len(reply)))
	return turn, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
