package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/session"
)

type ChatHandler struct {
	manager *session.Manager
	logger  *slog.Logger
}

func NewChatHandler(log *slog.Logger, manager *session.Manager) *ChatHandler {
	return &ChatHandler{
		manager: manager,
		logger:  log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/sessions/:session/chat")
	group.POST("", h.Chat)
	group.POST("/stream", h.StreamChat)
	group.POST("/cancel", h.Cancel)
	group.GET("/snapshot", h.Snapshot)
}

type chatRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// streamFrame is one SSE payload: progressive frames carry the full
// accumulated text so far, the terminal frame carries the whole reply.
type streamFrame struct {
	Accumulated  string `json:"accumulated,omitempty"`
	IsComplete   bool   `json:"is_complete"`
	Complete     bool   `json:"complete,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
	TurnID       string `json:"turn_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (h *ChatHandler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s := h.manager.GetOrCreate(c.Param("session"))
	turn, err := s.SubmitTurn(c.Request().Context(), session.TurnInput{Text: req.Text, Language: req.Language})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, turn)
}

func (h *ChatHandler) StreamChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s := h.manager.GetOrCreate(c.Param("session"))

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)

	type turnResult struct {
		turn history.Turn
		err  error
	}
	resultCh := make(chan turnResult, 1)
	go func() {
		turn, err := s.SubmitTurn(c.Request().Context(), session.TurnInput{Text: req.Text, Language: req.Language})
		resultCh <- turnResult{turn: turn, err: err}
	}()

	emit := func(frame streamFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		writer.WriteString(fmt.Sprintf("data: %s\n\n", data))
		writer.Flush()
		flusher.Flush()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastSent string
	for {
		select {
		case res := <-resultCh:
			if res.err != nil {
				emit(streamFrame{Error: res.err.Error()})
				return nil
			}
			emit(streamFrame{Complete: true, IsComplete: true, FullResponse: res.turn.Reply, TurnID: res.turn.ID})
			writer.WriteString("data: [DONE]\n\n")
			writer.Flush()
			flusher.Flush()
			return nil
		case <-ticker.C:
			snap, ok := s.StreamSnapshot()
			if ok && snap.Text != "" && snap.Text != lastSent {
				lastSent = snap.Text
				emit(streamFrame{Accumulated: snap.Text})
			}
		case <-c.Request().Context().Done():
			// Client went away; the orchestrator's context cancels the
			// turn and nothing is recorded.
			return nil
		}
	}
}

// Cancel aborts the in-flight turn. 404 when the session is idle or
// unknown.
func (h *ChatHandler) Cancel(c echo.Context) error {
	s, ok := h.manager.Get(c.Param("session"))
	if !ok {
		return httpError(session.ErrNoSession)
	}
	if !s.CancelCurrentTurn() {
		return echo.NewHTTPError(http.StatusNotFound, "no turn in flight")
	}
	h.logger.Info("turn cancel requested", slog.String("session_id", s.ID))
	return c.NoContent(http.StatusAccepted)
}

// Snapshot returns the latest streaming view, for clients that poll
// instead of holding the SSE connection.
func (h *ChatHandler) Snapshot(c echo.Context) error {
	s, ok := h.manager.Get(c.Param("session"))
	if !ok {
		return httpError(session.ErrNoSession)
	}
	snap, ok := s.StreamSnapshot()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no turn has streamed yet")
	}
	return c.JSON(http.StatusOK, snap)
}
