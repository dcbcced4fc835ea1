// Package analysis runs submitted attachment batches through the
// classification and extraction collaborators and collects ordered results.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/krishimitra/krishimitra/internal/attachment"
)

// Label is one ranked classifier prediction.
type Label struct {
	Name       string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classification is the classifier collaborator's output for one image.
type Classification struct {
	Labels []Label `json:"labels"`
	// Warning flags low-confidence results. They are shown verbatim to
	// the farmer, never hidden.
	Warning string `json:"warning,omitempty"`
}

// TopLabel returns the highest-ranked label, if any.
func (c Classification) TopLabel() (Label, bool) {
	if len(c.Labels) == 0 {
		return Label{}, false
	}
	return c.Labels[0], true
}

// DocumentData is the extractor collaborator's output for one document.
type DocumentData struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	AISummary string `json:"ai_summary,omitempty"`
}

// Result is the immutable per-attachment outcome of a batch analysis.
type Result struct {
	AttachmentID string          `json:"attachment_id"`
	Ordinal      int             `json:"ordinal"`
	Kind         attachment.Kind `json:"kind"`
	DisplayName  string          `json:"display_name"`
	Success      bool            `json:"success"`
	Labels       []Label         `json:"labels,omitempty"`
	Warning      string          `json:"warning,omitempty"`
	Document     *DocumentData   `json:"document,omitempty"`
	Err          string          `json:"error,omitempty"`
	AnalyzedAt   time.Time       `json:"analyzed_at"`
}

// Summary renders the result as one line for prompt embedding and for
// inline display. Failures are reported alongside successes.
func (r Result) Summary() string {
	switch {
	case !r.Success:
		return fmt.Sprintf("%d. %s: analysis failed (%s)", r.Ordinal+1, r.DisplayName, r.Err)
	case r.Kind == attachment.KindImage:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d. %s:", r.Ordinal+1, r.DisplayName)
		for i, l := range r.Labels {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %s (%.0f%%)", l.Name, l.Confidence*100)
		}
		if r.Warning != "" {
			fmt.Fprintf(&sb, " [%s]", r.Warning)
		}
		return sb.String()
	default:
		if r.Document == nil {
			return fmt.Sprintf("%d. %s: empty document", r.Ordinal+1, r.DisplayName)
		}
		if r.Document.AISummary != "" {
			return fmt.Sprintf("%d. %s (%d words): %s", r.Ordinal+1, r.DisplayName, r.Document.WordCount, r.Document.AISummary)
		}
		return fmt.Sprintf("%d. %s (%d words)", r.Ordinal+1, r.DisplayName, r.Document.WordCount)
	}
}

// Classifier is the disease-classification collaborator contract.
type Classifier interface {
	Classify(ctx context.Context, payload []byte, mime string) (Classification, error)
}

// Extractor is the document-extraction collaborator contract.
type Extractor interface {
	Extract(ctx context.Context, payload []byte, displayName string) (DocumentData, error)
}
