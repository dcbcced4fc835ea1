package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/session"
	"github.com/krishimitra/krishimitra/internal/voice"
)

type VoiceHandler struct {
	manager   *session.Manager
	autoSpeak bool
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func NewVoiceHandler(log *slog.Logger, manager *session.Manager, autoSpeak bool) *VoiceHandler {
	return &VoiceHandler{
		manager:   manager,
		autoSpeak: autoSpeak,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		logger:    log.With(slog.String("handler", "voice")),
	}
}

func (h *VoiceHandler) Register(e *echo.Echo) {
	e.GET("/voice/tts-config", h.SpeechConfig)
	e.GET("/sessions/:session/voice/ws", h.Connect)
}

// SpeechConfig serves the per-language synthesis table clients use for
// read-back.
func (h *VoiceHandler) SpeechConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, voice.SpeechConfigs())
}

// voiceClientMessage is one inbound websocket frame. The client owns
// capture, recognition, and playback; the server owns sequencing.
type voiceClientMessage struct {
	Type       string  `json:"type"` // start | transcript | stop | capture_error | speak_done | speak_error | stop_speaking
	Language   string  `json:"language,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type voiceServerMessage struct {
	Type    string              `json:"type"` // state | turn | speak | error
	State   voice.State         `json:"state,omitempty"`
	Preview string              `json:"preview,omitempty"`
	Turn    *history.Turn       `json:"turn,omitempty"`
	Text    string              `json:"text,omitempty"`
	Config  *voice.SpeechConfig `json:"config,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// wsConn serializes websocket writes; gorilla allows one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(msg voiceServerMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// wsSpeaker asks the client to read a reply aloud. The frame only
// starts playback; the machine stays speaking until the client sends
// speak_done, speak_error, or stop_speaking.
type wsSpeaker struct {
	conn *wsConn
}

func (s *wsSpeaker) Speak(ctx context.Context, text string, cfg voice.SpeechConfig) error {
	return s.conn.send(voiceServerMessage{Type: "speak", Text: text, Config: &cfg})
}

// Connect upgrades to a websocket and runs the capture loop for one
// session. One machine per connection; turn exclusivity still comes from
// the session itself, so a typed turn and a voice turn never overlap.
func (h *VoiceHandler) Connect(c echo.Context) error {
	s := h.manager.GetOrCreate(c.Param("session"))

	raw, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer raw.Close()

	conn := &wsConn{conn: raw}
	machine := voice.NewMachine(h.logger, s, &wsSpeaker{conn: conn}, h.autoSpeak)
	ctx := c.Request().Context()

	sendState := func() {
		_ = conn.send(voiceServerMessage{Type: "state", State: machine.State(), Preview: machine.Preview()})
	}
	sendState()

	for {
		var msg voiceClientMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("voice socket closed", slog.String("session_id", s.ID), slog.Any("error", err))
			}
			return nil
		}

		switch msg.Type {
		case "start":
			if err := machine.StartCapture(msg.Language); err != nil {
				_ = conn.send(voiceServerMessage{Type: "error", Error: err.Error()})
				continue
			}
			sendState()
		case "transcript":
			turn, recorded, err := machine.HandleTranscript(ctx, voice.TranscriptEvent{
				Transcript: msg.Transcript,
				IsFinal:    msg.IsFinal,
				Confidence: msg.Confidence,
			})
			if err != nil {
				if !errors.Is(err, voice.ErrNotListening) {
					h.logger.Warn("voice turn failed", slog.String("session_id", s.ID), slog.Any("error", err))
				}
				_ = conn.send(voiceServerMessage{Type: "error", Error: err.Error()})
				sendState()
				continue
			}
			if recorded {
				_ = conn.send(voiceServerMessage{Type: "turn", Turn: &turn})
			}
			sendState()
		case "stop":
			machine.StopCapture()
			sendState()
		case "speak_done":
			machine.SpeakDone()
			sendState()
		case "speak_error":
			machine.SpeakFailed(errors.New(msg.Error))
			_ = conn.send(voiceServerMessage{Type: "state", State: voice.StateError, Error: msg.Error})
			sendState()
		case "stop_speaking":
			machine.StopSpeaking()
			sendState()
		case "capture_error":
			machine.CaptureFailed(errors.New(msg.Error))
			_ = conn.send(voiceServerMessage{Type: "state", State: voice.StateError, Error: msg.Error})
			sendState()
		default:
			_ = conn.send(voiceServerMessage{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}
