// Package advisor is the client for the conversational-AI collaborator.
package advisor

import "errors"

// Request is one prompt submission to the advisor.
type Request struct {
	Prompt string `json:"prompt"`
	// ContextSummary carries prior media analysis lines the reply should
	// take into account, verbatim.
	ContextSummary []string `json:"context_summary,omitempty"`
	Language       string   `json:"language,omitempty"`
}

// Reply is the advisor's non-streaming output.
type Reply struct {
	Text     string `json:"response"`
	Language string `json:"language,omitempty"`
}

// Event is one element of the advisor's reply stream.
//
// Protocol invariant: Accumulated is a prefix-complete snapshot of the
// whole reply so far, not a diff. Consumers must replace their buffer
// with the latest snapshot; concatenating snapshots duplicates text.
type Event struct {
	Accumulated  string `json:"accumulated,omitempty"`
	Complete     bool   `json:"complete,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ErrStreamFailed wraps terminal reply-stream failures.
var ErrStreamFailed = errors.New("reply stream failed")
