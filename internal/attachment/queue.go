package attachment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue holds the drafts for one session in insertion order. Queue
// mutation never touches analyzed context: drafts only become context
// once a batch has been submitted and analyzed.
type Queue struct {
	mu       sync.Mutex
	items    []Attachment
	maxItems int
	maxBytes int64
}

// NewQueue creates a draft queue bounded to maxItems entries of at most
// maxBytes each. Non-positive bounds fall back to 8 items of 16 MiB.
func NewQueue(maxItems int, maxBytes int64) *Queue {
	if maxItems <= 0 {
		maxItems = 8
	}
	if maxBytes <= 0 {
		maxBytes = 16 * 1024 * 1024
	}
	return &Queue{maxItems: maxItems, maxBytes: maxBytes}
}

// Add appends a draft and returns it with its assigned id. Duplicate
// display names are allowed; ids disambiguate.
func (q *Queue) Add(kind Kind, displayName, mime string, payload []byte) (Attachment, error) {
	if len(payload) == 0 {
		return Attachment{}, ErrEmptyPayload
	}
	if int64(len(payload)) > q.maxBytes {
		return Attachment{}, fmt.Errorf("%w: %q is %d bytes, max %d", ErrTooLarge, displayName, len(payload), q.maxBytes)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxItems {
		return Attachment{}, fmt.Errorf("%w: max %d per batch", ErrBatchFull, q.maxItems)
	}
	item := Attachment{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		DisplayName: displayName,
		Mime:        mime,
		SizeBytes:   int64(len(payload)),
		AddedAt:     time.Now().UTC(),
	}
	q.items = append(q.items, item)
	return item, nil
}

// Remove deletes the draft with the given id. Unknown ids are ignored.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all drafts. Safe to call on an already-empty queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// List returns the drafts in insertion order.
func (q *Queue) List() []Attachment {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Attachment, len(q.items))
	copy(out, q.items)
	return out
}

// Drain returns the drafts in insertion order and empties the queue.
// Used when a batch is submitted with a turn.
func (q *Queue) Drain() []Attachment {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of queued drafts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
