package session

import "errors"

var (
	// ErrEmptyTurn indicates a submission with no text and no attachments.
	// Rejected locally: no state transition, no collaborator call.
	ErrEmptyTurn = errors.New("turn has no text and no attachments")
	// ErrBusy indicates a turn is already in flight. Submissions are never
	// queued.
	ErrBusy = errors.New("a turn is already in flight")
	// ErrTurnCancelled indicates the in-flight turn was cancelled; nothing
	// is recorded for it.
	ErrTurnCancelled = errors.New("turn cancelled")
	// ErrNoSession indicates an unknown session id.
	ErrNoSession = errors.New("session not found")
)
