package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/session"
)

// Conversation is the slice of the session orchestrator the voice loop
// drives.
type Conversation interface {
	SubmitTurn(ctx context.Context, input session.TurnInput) (history.Turn, error)
}

// Machine sequences one session's voice interaction. It owns no audio;
// the capture transport pushes transcript events in and the Speaker, if
// any, reads replies back out.
type Machine struct {
	conv      Conversation
	speaker   Speaker
	autoSpeak bool
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	language string
	preview  string
	lastErr  error
}

// NewMachine creates an idle voice machine. A nil speaker disables
// read-back regardless of autoSpeak.
func NewMachine(log *slog.Logger, conv Conversation, speaker Speaker, autoSpeak bool) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		conv:      conv,
		speaker:   speaker,
		autoSpeak: autoSpeak,
		logger:    log.With(slog.String("service", "voice")),
		state:     StateIdle,
	}
}

// State reports the current capture state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Preview returns the latest interim transcript.
func (m *Machine) Preview() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preview
}

// LastError returns the most recent capture or turn failure.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// StartCapture opens a capture in the given language. Rejected while a
// capture, turn, or read-back is underway; a prior error does not block.
func (m *Machine) StartCapture(language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateListening, StateProcessing, StateSpeaking:
		return fmt.Errorf("%w: state %s", ErrBusy, m.state)
	}
	if strings.TrimSpace(language) == "" {
		language = "en"
	}
	m.state = StateListening
	m.language = language
	m.preview = ""
	m.lastErr = nil
	return nil
}

// StopCapture abandons the capture without submitting a turn. Interim
// text is discarded.
func (m *Machine) StopCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateListening {
		m.state = StateIdle
		m.preview = ""
	}
}

// CaptureFailed records a broken capture and recovers straight to idle,
// so the next StartCapture is admitted immediately. The failure stays
// observable through LastError.
func (m *Machine) CaptureFailed(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.preview = ""
	m.lastErr = fmt.Errorf("%w: %v", ErrCaptureFailed, cause)
	m.logger.Warn("voice capture failed", slog.Any("error", cause))
}

// SpeakDone reports that the client finished playing the reply.
func (m *Machine) SpeakDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateSpeaking {
		m.state = StateIdle
	}
}

// SpeakFailed reports broken playback. The turn is already recorded, so
// the failure is only retained for inspection.
func (m *Machine) SpeakFailed(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSpeaking {
		return
	}
	m.lastErr = cause
	m.state = StateIdle
	m.logger.Warn("reply read-back failed", slog.Any("error", cause))
}

// StopSpeaking cuts playback short on the farmer's request.
func (m *Machine) StopSpeaking() {
	m.SpeakDone()
}

// HandleTranscript applies one recognition update. Interim events only
// refresh the preview. The final event closes the capture, submits the
// transcript as a turn, and returns the recorded turn. With auto-speak
// the machine stays in the speaking state until the playback side calls
// SpeakDone, SpeakFailed, or StopSpeaking; captures started in between
// are rejected with ErrBusy.
func (m *Machine) HandleTranscript(ctx context.Context, event TranscriptEvent) (history.Turn, bool, error) {
	m.mu.Lock()
	if m.state != StateListening {
		m.mu.Unlock()
		return history.Turn{}, false, ErrNotListening
	}
	if !event.IsFinal {
		m.preview = event.Transcript
		m.mu.Unlock()
		return history.Turn{}, false, nil
	}
	m.state = StateProcessing
	m.preview = event.Transcript
	language := m.language
	m.mu.Unlock()

	turn, err := m.conv.SubmitTurn(ctx, session.TurnInput{Text: event.Transcript, Language: language})
	if err != nil {
		// A failed turn recovers straight to idle so the farmer can
		// retry; the failure stays observable via LastError.
		m.mu.Lock()
		m.lastErr = err
		m.state = StateIdle
		m.mu.Unlock()
		return history.Turn{}, false, err
	}

	if m.autoSpeak && m.speaker != nil && turn.Reply != "" {
		m.setState(StateSpeaking)
		if err := m.speaker.Speak(ctx, turn.Reply, SpeechConfigFor(turn.Language)); err != nil {
			// The turn already succeeded; a failed read-back request
			// only logs.
			m.logger.Warn("reply read-back dispatch failed", slog.Any("error", err))
			m.mu.Lock()
			m.lastErr = err
			m.state = StateIdle
			m.mu.Unlock()
			return turn, true, nil
		}
		// Speaking holds until the playback side reports back.
		return turn, true, nil
	}

	m.setState(StateIdle)
	return turn, true, nil
}

func (m *Machine) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
