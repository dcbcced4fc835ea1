// Package attachment holds the pre-submission draft queue for media a
// farmer has selected but not yet sent with a turn.
package attachment

import "time"

// Kind classifies a draft attachment.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Attachment is one selected media item awaiting submission.
type Attachment struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Payload     []byte    `json:"-"`
	DisplayName string    `json:"display_name"`
	Mime        string    `json:"mime,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	AddedAt     time.Time `json:"added_at"`
}
