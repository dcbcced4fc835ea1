package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krishimitra/krishimitra/internal/attachment"
)

// Dispatcher submits attachment batches to the matching collaborator.
// Items are processed strictly sequentially: ordinals stay deterministic
// and at most one outbound analysis call is in flight per session.
type Dispatcher struct {
	classifier Classifier
	extractor  Extractor
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher with a per-item timeout.
func NewDispatcher(log *slog.Logger, classifier Classifier, extractor Extractor, timeout time.Duration) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		classifier: classifier,
		extractor:  extractor,
		timeout:    timeout,
		logger:     log.With(slog.String("service", "analysis_dispatcher")),
	}
}

// Analyze resolves every attachment in the batch, in submission order.
// A failing item is recorded with Success=false and never aborts the
// rest of the batch; the returned slice always has len(batch) entries.
func (d *Dispatcher) Analyze(ctx context.Context, batch []attachment.Attachment) []Result {
	results := make([]Result, 0, len(batch))
	for i, item := range batch {
		results = append(results, d.analyzeOne(ctx, i, item))
	}
	return results
}

func (d *Dispatcher) analyzeOne(ctx context.Context, ordinal int, item attachment.Attachment) Result {
	result := Result{
		AttachmentID: item.ID,
		Ordinal:      ordinal,
		Kind:         item.Kind,
		DisplayName:  item.DisplayName,
		AnalyzedAt:   time.Now().UTC(),
	}

	itemCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch item.Kind {
	case attachment.KindImage:
		if d.classifier == nil {
			result.Err = "classifier unavailable"
			return result
		}
		classification, err := d.classifier.Classify(itemCtx, item.Payload, item.Mime)
		if err != nil {
			d.logger.Warn("image classification failed",
				slog.String("attachment_id", item.ID),
				slog.Int("ordinal", ordinal),
				slog.Any("error", err),
			)
			result.Err = err.Error()
			return result
		}
		result.Success = true
		result.Labels = classification.Labels
		result.Warning = classification.Warning
	case attachment.KindDocument:
		if d.extractor == nil {
			result.Err = "extractor unavailable"
			return result
		}
		doc, err := d.extractor.Extract(itemCtx, item.Payload, item.DisplayName)
		if err != nil {
			d.logger.Warn("document extraction failed",
				slog.String("attachment_id", item.ID),
				slog.Int("ordinal", ordinal),
				slog.Any("error", err),
			)
			result.Err = err.Error()
			return result
		}
		result.Success = true
		result.Document = &doc
	default:
		result.Err = fmt.Sprintf("unsupported attachment kind %q", item.Kind)
	}
	return result
}
