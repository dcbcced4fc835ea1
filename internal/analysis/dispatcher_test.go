package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/krishimitra/krishimitra/internal/attachment"
)

type fakeClassifier struct {
	calls   int
	failOn  map[int]error
	results Classification
}

func (f *fakeClassifier) Classify(ctx context.Context, payload []byte, mime string) (Classification, error) {
	call := f.calls
	f.calls++
	if err, ok := f.failOn[call]; ok {
		return Classification{}, err
	}
	return f.results, nil
}

type fakeExtractor struct {
	calls int
	doc   DocumentData
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, payload []byte, displayName string) (DocumentData, error) {
	f.calls++
	if f.err != nil {
		return DocumentData{}, f.err
	}
	return f.doc, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func imageDraft(name string) attachment.Attachment {
	return attachment.Attachment{ID: "att-" + name, Kind: attachment.KindImage, DisplayName: name, Payload: []byte("img")}
}

func docDraft(name string) attachment.Attachment {
	return attachment.Attachment{ID: "att-" + name, Kind: attachment.KindDocument, DisplayName: name, Payload: []byte("doc")}
}

func TestAnalyzePreservesOrderAndLength(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{
		results: Classification{Labels: []Label{{Name: "Tomato_Late_Blight", Confidence: 0.92}}},
	}
	extractor := &fakeExtractor{doc: DocumentData{Text: "soil report", WordCount: 2}}
	d := NewDispatcher(testLogger(), classifier, extractor, time.Second)

	batch := []attachment.Attachment{imageDraft("a.jpg"), docDraft("b.pdf"), imageDraft("c.jpg")}
	results := d.Analyze(context.Background(), batch)

	if len(results) != len(batch) {
		t.Fatalf("expected %d results, got %d", len(batch), len(results))
	}
	for i, r := range results {
		if r.Ordinal != i {
			t.Fatalf("result %d has ordinal %d", i, r.Ordinal)
		}
		if r.AttachmentID != batch[i].ID {
			t.Fatalf("result %d out of submission order: %s", i, r.AttachmentID)
		}
		if !r.Success {
			t.Fatalf("result %d unexpectedly failed: %s", i, r.Err)
		}
	}
	if results[1].Document == nil || results[1].Document.WordCount != 2 {
		t.Fatalf("document result not carried: %+v", results[1])
	}
}

func TestAnalyzeFailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{
		failOn:  map[int]error{1: errors.New("blurred image")},
		results: Classification{Labels: []Label{{Name: "Potato_Early_Blight", Confidence: 0.81}}},
	}
	d := NewDispatcher(testLogger(), classifier, &fakeExtractor{}, time.Second)

	batch := []attachment.Attachment{imageDraft("a.jpg"), imageDraft("b.jpg"), imageDraft("c.jpg")}
	results := d.Analyze(context.Background(), batch)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly 1 failure, got %d", failures)
	}
	if results[1].Success || results[1].Err == "" {
		t.Fatalf("failed item not recorded verbatim: %+v", results[1])
	}
	if !results[2].Success {
		t.Fatal("item after a failure was not processed")
	}
	if classifier.calls != 3 {
		t.Fatalf("expected 3 classifier calls, got %d", classifier.calls)
	}
}

func TestAnalyzeMissingCollaborator(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(testLogger(), nil, nil, time.Second)
	results := d.Analyze(context.Background(), []attachment.Attachment{imageDraft("a.jpg"), docDraft("b.pdf")})
	for _, r := range results {
		if r.Success {
			t.Fatalf("expected failure without collaborator, got %+v", r)
		}
	}
}

func TestResultSummaryShowsFailuresAndWarnings(t *testing.T) {
	t.Parallel()

	failed := Result{Ordinal: 0, DisplayName: "leaf.jpg", Err: "timeout"}
	if got := failed.Summary(); got != "1. leaf.jpg: analysis failed (timeout)" {
		t.Fatalf("unexpected failure summary: %q", got)
	}

	low := Result{
		Ordinal:     1,
		DisplayName: "leaf2.jpg",
		Kind:        attachment.KindImage,
		Success:     true,
		Labels:      []Label{{Name: "Tomato_Leaf_Spot", Confidence: 0.41}},
		Warning:     "low confidence",
	}
	if got := low.Summary(); got != "2. leaf2.jpg: Tomato_Leaf_Spot (41%) [low confidence]" {
		t.Fatalf("low-confidence summary must stay verbatim with flag: %q", got)
	}
}
