package attachment

import "errors"

var (
	// ErrTooLarge indicates the payload exceeds the configured max attachment size.
	ErrTooLarge = errors.New("attachment too large")
	// ErrBatchFull indicates the draft queue already holds the maximum batch size.
	ErrBatchFull = errors.New("attachment batch is full")
	// ErrEmptyPayload indicates an attachment was added without any bytes.
	ErrEmptyPayload = errors.New("attachment payload is empty")
)
