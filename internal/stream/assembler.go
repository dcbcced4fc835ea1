// Package stream assembles a reply from the advisor's delta stream into
// a monotonically growing, cancellable result.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/krishimitra/krishimitra/internal/advisor"
)

// ErrCancelled indicates the consumer cancelled the stream mid-reply.
var ErrCancelled = errors.New("reply stream cancelled")

// Snapshot is a point-in-time view of the assembling reply. Text only
// ever grows between snapshots of the same turn.
type Snapshot struct {
	TurnID    string `json:"turn_id"`
	Text      string `json:"text"`
	Complete  bool   `json:"complete"`
	Cancelled bool   `json:"cancelled"`
}

// Assembler owns the accumulating reply text for one turn until it is
// finalized.
//
// The upstream protocol is snapshot-based: every delta carries the whole
// reply so far, so the buffer is replaced with the latest snapshot rather
// than appended to. Appending snapshots would duplicate text.
type Assembler struct {
	mu        sync.Mutex
	turnID    string
	text      string
	complete  bool
	cancelled bool
}

// New creates an assembler for the given turn.
func New(turnID string) *Assembler {
	return &Assembler{turnID: turnID}
}

// Cancel marks the stream cancelled. Consume checks the flag between
// delta deliveries and stops promptly; cancellation is cooperative.
func (a *Assembler) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.complete {
		a.cancelled = true
	}
}

// Snapshot returns the current view of the reply.
func (a *Assembler) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		TurnID:    a.turnID,
		Text:      a.text,
		Complete:  a.complete,
		Cancelled: a.cancelled,
	}
}

// Consume drains the advisor stream until completion, terminal error, or
// cancellation, and returns the final reply text. A closed event channel
// without an error is treated as completion with the text received so far.
func (a *Assembler) Consume(ctx context.Context, eventCh <-chan advisor.Event, errCh <-chan error) (string, error) {
	for {
		if a.isCancelled() {
			return "", ErrCancelled
		}

		select {
		case <-ctx.Done():
			a.Cancel()
			return "", ErrCancelled
		case err, ok := <-errCh:
			if ok && err != nil {
				return "", fmt.Errorf("%w: %v", advisor.ErrStreamFailed, err)
			}
			if !ok {
				errCh = nil
				continue
			}
		case event, ok := <-eventCh:
			if !ok {
				// The producer may have parked a terminal error before
				// closing; a closed event channel alone is not success.
				if errCh != nil {
					select {
					case err, ok := <-errCh:
						if ok && err != nil {
							return "", fmt.Errorf("%w: %v", advisor.ErrStreamFailed, err)
						}
					default:
					}
				}
				return a.finalize(), nil
			}
			if a.isCancelled() {
				return "", ErrCancelled
			}
			a.apply(event)
			if event.Complete {
				return a.finalize(), nil
			}
		}
	}
}

func (a *Assembler) apply(event advisor.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case event.Complete && event.FullResponse != "":
		a.text = event.FullResponse
	case event.Accumulated != "":
		// Snapshot replacement, never concatenation.
		a.text = event.Accumulated
	}
}

func (a *Assembler) finalize() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.complete = true
	return a.text
}

func (a *Assembler) isCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}
