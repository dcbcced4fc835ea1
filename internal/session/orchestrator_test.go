package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/krishimitra/krishimitra/internal/advisor"
	"github.com/krishimitra/krishimitra/internal/analysis"
	"github.com/krishimitra/krishimitra/internal/attachment"
	"github.com/krishimitra/krishimitra/internal/history"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	results []analysis.Result
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, batch []attachment.Attachment) []analysis.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.results != nil {
		return f.results
	}
	out := make([]analysis.Result, 0, len(batch))
	for i, item := range batch {
		out = append(out, analysis.Result{
			AttachmentID: item.ID,
			Ordinal:      i,
			Kind:         item.Kind,
			DisplayName:  item.DisplayName,
			Success:      true,
			Labels:       []analysis.Label{{Name: "Tomato_Late_Blight", Confidence: 0.92}},
		})
	}
	return out
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAdvisor struct {
	mu       sync.Mutex
	requests []advisor.Request
	events   []advisor.Event
	err      error
	// release, when non-nil, holds the stream open until closed.
	release chan struct{}
}

func (f *fakeAdvisor) StreamChat(ctx context.Context, req advisor.Request) (<-chan advisor.Event, <-chan error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	events := f.events
	streamErr := f.err
	release := f.release
	f.mu.Unlock()

	eventCh := make(chan advisor.Event)
	errCh := make(chan error, 1)
	go func() {
		defer close(eventCh)
		defer close(errCh)
		for _, event := range events {
			select {
			case eventCh <- event:
			case <-ctx.Done():
				return
			}
		}
		if release != nil {
			select {
			case <-release:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			errCh <- streamErr
		}
	}()
	return eventCh, errCh
}

func (f *fakeAdvisor) lastRequest() advisor.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return advisor.Request{}
	}
	return f.requests[len(f.requests)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completedReply(text string) []advisor.Event {
	return []advisor.Event{
		{Accumulated: text[:len(text)/2]},
		{Accumulated: text},
		{Complete: true, FullResponse: text},
	}
}

func newTestSession(t *testing.T, analyzer *fakeAnalyzer, adv *fakeAdvisor) (*Session, *history.MemoryStore) {
	t.Helper()
	store := history.NewMemoryStore(1 << 20)
	queue := attachment.NewQueue(8, 1<<20)
	s := NewSession(testLogger(), "session-1", "en", queue, analyzer, adv, store)
	return s, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEmptyTurnRejectedLocally(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{events: completedReply("hello")}
	s, store := newTestSession(t, analyzer, adv)

	_, err := s.SubmitTurn(context.Background(), TurnInput{Text: "   "})
	if !errors.Is(err, ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state moved on empty turn: %s", s.State())
	}
	if analyzer.callCount() != 0 || len(adv.requests) != 0 {
		t.Fatal("collaborators called on empty turn")
	}
	turns, _ := store.List(context.Background(), "session-1")
	if len(turns) != 0 {
		t.Fatal("empty turn recorded in history")
	}
}

func TestNewMediaTurnRecordsAndSetsPendingContext(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{events: completedReply("Late blight treatment: spray mancozeb.")}
	s, store := newTestSession(t, analyzer, adv)

	if _, err := s.Queue().Add(attachment.KindImage, "leaf.jpg", "image/jpeg", []byte("img")); err != nil {
		t.Fatalf("queue add: %v", err)
	}

	turn, err := s.SubmitTurn(context.Background(), TurnInput{Text: "How do I treat this?"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if turn.Kind != string(TurnNewMedia) {
		t.Fatalf("expected new-media turn, got %s", turn.Kind)
	}
	if len(turn.Attachments) != 1 || turn.Attachments[0].Labels[0].Name != "Tomato_Late_Blight" {
		t.Fatalf("turn does not reference the analysis: %+v", turn.Attachments)
	}
	if turn.Reply != "Late blight treatment: spray mancozeb." {
		t.Fatalf("unexpected reply: %q", turn.Reply)
	}

	pending := s.Pending()
	if pending == nil || len(pending.Analyses) != 1 {
		t.Fatalf("pending context not set: %+v", pending)
	}
	if pending.Analyses[0].Labels[0].Name != "Tomato_Late_Blight" || pending.Analyses[0].Labels[0].Confidence != 0.92 {
		t.Fatalf("pending context differs from analysis: %+v", pending.Analyses[0])
	}
	if s.Queue().Len() != 0 {
		t.Fatal("queue not drained by submission")
	}
	if s.State() != StateIdle {
		t.Fatalf("state not idle after turn: %s", s.State())
	}

	turns, _ := store.List(context.Background(), "session-1")
	if len(turns) != 1 {
		t.Fatalf("expected 1 recorded turn, got %d", len(turns))
	}

	req := adv.lastRequest()
	if !strings.Contains(req.Prompt, "Tomato_Late_Blight") {
		t.Fatalf("prompt does not embed analysis summary: %q", req.Prompt)
	}
}

func TestFollowUpReusesContextWithoutReanalysis(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{events: completedReply("Yes, it spreads through spores.")}
	s, _ := newTestSession(t, analyzer, adv)

	s.Queue().Add(attachment.KindImage, "leaf.jpg", "image/jpeg", []byte("img"))
	if _, err := s.SubmitTurn(context.Background(), TurnInput{Text: "How do I treat this?"}); err != nil {
		t.Fatalf("media turn: %v", err)
	}
	before := s.Pending()

	turn, err := s.SubmitTurn(context.Background(), TurnInput{Text: "Is it contagious?"})
	if err != nil {
		t.Fatalf("follow-up turn: %v", err)
	}
	if turn.Kind != string(TurnFollowUp) {
		t.Fatalf("expected follow-up turn, got %s", turn.Kind)
	}
	if analyzer.callCount() != 1 {
		t.Fatalf("analyzer re-invoked on follow-up: %d calls", analyzer.callCount())
	}
	if !strings.Contains(adv.lastRequest().Prompt, "Tomato_Late_Blight") {
		t.Fatal("follow-up prompt does not reuse stored context")
	}

	after := s.Pending()
	if after == nil || len(after.Analyses) != len(before.Analyses) || !after.CapturedAt.Equal(before.CapturedAt) {
		t.Fatalf("follow-up mutated pending context: before=%+v after=%+v", before, after)
	}
}

func TestPlainTurnWithoutContext(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{events: completedReply("Sow wheat in November.")}
	s, _ := newTestSession(t, analyzer, adv)

	turn, err := s.SubmitTurn(context.Background(), TurnInput{Text: "When should I sow wheat?"})
	if err != nil {
		t.Fatalf("plain turn: %v", err)
	}
	if turn.Kind != string(TurnPlain) {
		t.Fatalf("expected plain turn, got %s", turn.Kind)
	}
	if analyzer.callCount() != 0 {
		t.Fatal("analyzer invoked without attachments")
	}
	if s.Pending() != nil {
		t.Fatal("plain turn created a pending context")
	}
}

func TestSingleFlightRejection(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{
		events:  []advisor.Event{{Accumulated: "thinking"}},
		release: release,
	}
	s, _ := newTestSession(t, analyzer, adv)

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), TurnInput{Text: "first question"})
		firstDone <- err
	}()

	waitFor(t, "first turn in flight", func() bool { return s.State() != StateIdle })

	_, err := s.SubmitTurn(context.Background(), TurnInput{Text: "second question"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state not idle after resolution: %s", s.State())
	}

	// Idle again: the next submission is accepted.
	if _, err := s.SubmitTurn(context.Background(), TurnInput{Text: "third question"}); err != nil {
		t.Fatalf("third turn after idle: %v", err)
	}
}

func TestCancellationRecordsNothing(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{
		events:  []advisor.Event{{Accumulated: "partial reply"}},
		release: release,
	}
	s, store := newTestSession(t, analyzer, adv)

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), TurnInput{Text: "long question"})
		done <- err
	}()

	waitFor(t, "stream to start", func() bool {
		snap, ok := s.StreamSnapshot()
		return ok && snap.Text != ""
	})

	if !s.CancelCurrentTurn() {
		t.Fatal("cancel reported no active turn")
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrTurnCancelled) {
			t.Fatalf("expected ErrTurnCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not resolve after cancellation")
	}

	if s.State() != StateIdle {
		t.Fatalf("state not idle after cancellation: %s", s.State())
	}
	turns, _ := store.List(context.Background(), "session-1")
	if len(turns) != 0 {
		t.Fatal("cancelled turn recorded in history")
	}
	if s.Pending() != nil {
		t.Fatal("cancelled turn mutated pending context")
	}
}

func TestReplyFailureReturnsToIdle(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{
		events: []advisor.Event{{Accumulated: "partial"}},
		err:    errors.New("gateway timeout"),
	}
	s, store := newTestSession(t, analyzer, adv)

	_, err := s.SubmitTurn(context.Background(), TurnInput{Text: "question"})
	if err == nil {
		t.Fatal("expected reply failure")
	}
	if s.State() != StateIdle {
		t.Fatalf("state stuck after failure: %s", s.State())
	}
	turns, _ := store.List(context.Background(), "session-1")
	if len(turns) != 0 {
		t.Fatal("failed turn recorded in history")
	}
}

func TestAnalysisFailuresShownVerbatim(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{results: []analysis.Result{
		{AttachmentID: "a", Ordinal: 0, Kind: attachment.KindImage, DisplayName: "ok.jpg", Success: true,
			Labels: []analysis.Label{{Name: "Potato_Early_Blight", Confidence: 0.41}}, Warning: "low confidence"},
		{AttachmentID: "b", Ordinal: 1, Kind: attachment.KindImage, DisplayName: "blurry.jpg", Err: "blurred image"},
	}}
	adv := &fakeAdvisor{events: completedReply("Here is what I can tell.")}
	s, _ := newTestSession(t, analyzer, adv)

	s.Queue().Add(attachment.KindImage, "ok.jpg", "image/jpeg", []byte("a"))
	s.Queue().Add(attachment.KindImage, "blurry.jpg", "image/jpeg", []byte("b"))

	turn, err := s.SubmitTurn(context.Background(), TurnInput{Text: ""})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(turn.Attachments) != 2 {
		t.Fatalf("expected both results on the turn, got %d", len(turn.Attachments))
	}

	prompt := adv.lastRequest().Prompt
	if !strings.Contains(prompt, "low confidence") {
		t.Fatalf("low-confidence flag suppressed from prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "analysis failed (blurred image)") {
		t.Fatalf("failed item suppressed from prompt: %q", prompt)
	}
}

func TestClearAttachmentsIdempotentAndDropsContext(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{events: completedReply("done")}
	s, _ := newTestSession(t, analyzer, adv)

	s.Queue().Add(attachment.KindImage, "leaf.jpg", "image/jpeg", []byte("img"))
	if _, err := s.SubmitTurn(context.Background(), TurnInput{Text: "what is this"}); err != nil {
		t.Fatalf("media turn: %v", err)
	}
	if s.Pending() == nil {
		t.Fatal("pending context missing before clear")
	}

	s.Queue().Add(attachment.KindImage, "second.jpg", "image/jpeg", []byte("img"))
	s.ClearAttachments()
	s.ClearAttachments()
	if s.Queue().Len() != 0 || s.Pending() != nil {
		t.Fatal("clear did not reset drafts and context")
	}

	// With context cleared the next text turn is plain, not follow-up.
	turn, err := s.SubmitTurn(context.Background(), TurnInput{Text: "and now?"})
	if err != nil {
		t.Fatalf("plain turn: %v", err)
	}
	if turn.Kind != string(TurnPlain) {
		t.Fatalf("expected plain turn after clear, got %s", turn.Kind)
	}
}

func TestManagerIsolatesSessions(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	adv := &fakeAdvisor{events: completedReply("reply")}
	store := history.NewMemoryStore(1 << 20)
	m := NewManager(testLogger(), analyzer, adv, store, Limits{MaxAttachmentsPerBatch: 8, MaxAttachmentBytes: 1 << 20}, "en")

	a := m.GetOrCreate("farmer-a")
	b := m.GetOrCreate("farmer-b")
	if a == b {
		t.Fatal("distinct ids must get distinct sessions")
	}
	if again := m.GetOrCreate("farmer-a"); again != a {
		t.Fatal("same id must return the same session")
	}

	a.Queue().Add(attachment.KindImage, "leaf.jpg", "image/jpeg", []byte("img"))
	if _, err := a.SubmitTurn(context.Background(), TurnInput{Text: "?"}); err != nil {
		t.Fatalf("turn on a: %v", err)
	}
	if b.Pending() != nil || b.Queue().Len() != 0 {
		t.Fatal("session state leaked across sessions")
	}
}
