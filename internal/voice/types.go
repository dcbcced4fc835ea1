// Package voice layers a hands-free capture loop over a conversation
// session. Transcripts route through the same turn orchestrator as typed
// text, so voice and text share one in-flight turn slot.
package voice

import (
	"context"
	"errors"
)

// State is the capture loop's position. Exactly one state holds at a time.
type State string

const (
	// StateIdle accepts a new capture.
	StateIdle State = "idle"
	// StateListening accumulates interim transcripts.
	StateListening State = "listening"
	// StateProcessing has routed a final transcript into the session.
	StateProcessing State = "processing"
	// StateSpeaking is reading the reply back to the farmer.
	StateSpeaking State = "speaking"
	// StateError is reported to clients when a capture or playback
	// breaks; the machine itself recovers to idle immediately and keeps
	// the failure in LastError.
	StateError State = "error"
)

var (
	// ErrBusy indicates a capture start while a voice interaction is
	// already underway.
	ErrBusy = errors.New("voice interaction already in progress")
	// ErrCaptureFailed indicates the client-side capture broke.
	ErrCaptureFailed = errors.New("voice capture failed")
	// ErrNotListening indicates a transcript arrived outside a capture.
	ErrNotListening = errors.New("no capture in progress")
)

// TranscriptEvent is one recognition update from the capture transport.
// Interim events refine the preview; the final event closes the capture
// and becomes the turn text.
type TranscriptEvent struct {
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SpeechConfig is the per-language synthesis tuning served to clients.
type SpeechConfig struct {
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// speechConfigs keys on the two-letter reply language codes.
var speechConfigs = map[string]SpeechConfig{
	"en": {Lang: "en-US", Voice: "Google US English", Rate: 1.0, Pitch: 1.0, Volume: 1.0},
	"hi": {Lang: "hi-IN", Voice: "Google हिन्दी", Rate: 0.9, Pitch: 1.0, Volume: 1.0},
	"mr": {Lang: "mr-IN", Voice: "Google मराठी", Rate: 0.9, Pitch: 1.0, Volume: 1.0},
	"pa": {Lang: "pa-IN", Voice: "Google ਪੰਜਾਬੀ", Rate: 0.9, Pitch: 1.0, Volume: 1.0},
	"ml": {Lang: "ml-IN", Voice: "Google മലയാളം", Rate: 0.9, Pitch: 1.0, Volume: 1.0},
}

// SpeechConfigFor returns the synthesis tuning for a language code,
// falling back to English for unconfigured languages.
func SpeechConfigFor(language string) SpeechConfig {
	if cfg, ok := speechConfigs[language]; ok {
		return cfg
	}
	return speechConfigs["en"]
}

// SpeechConfigs returns the full per-language table.
func SpeechConfigs() map[string]SpeechConfig {
	out := make(map[string]SpeechConfig, len(speechConfigs))
	for k, v := range speechConfigs {
		out[k] = v
	}
	return out
}

// Speaker requests that a reply be read out loud. Playback runs on the
// client side of the websocket, so Speak only dispatches the request;
// the client reports the outcome back through SpeakDone or SpeakFailed
// on the machine.
type Speaker interface {
	Speak(ctx context.Context, text string, cfg SpeechConfig) error
}
