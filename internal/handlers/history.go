package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/session"
)

type HistoryHandler struct {
	manager *session.Manager
	store   history.Store
	logger  *slog.Logger
}

func NewHistoryHandler(log *slog.Logger, manager *session.Manager, store history.Store) *HistoryHandler {
	return &HistoryHandler{
		manager: manager,
		store:   store,
		logger:  log.With(slog.String("handler", "history")),
	}
}

func (h *HistoryHandler) Register(e *echo.Echo) {
	group := e.Group("/sessions/:session/history")
	group.GET("", h.List)
	group.DELETE("", h.Clear)
}

func (h *HistoryHandler) List(c echo.Context) error {
	turns, err := h.store.List(c.Request().Context(), c.Param("session"))
	if err != nil {
		return httpError(err)
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	return c.JSON(http.StatusOK, map[string]any{"turns": turns})
}

func (h *HistoryHandler) Clear(c echo.Context) error {
	sessionID := c.Param("session")
	if err := h.store.Clear(c.Request().Context(), sessionID); err != nil {
		return httpError(err)
	}
	// Dropping history also drops the carried analysis context; the next
	// text turn starts clean.
	if s, ok := h.manager.Get(sessionID); ok {
		s.ClearAttachments()
	}
	h.logger.Info("history cleared", slog.String("session_id", sessionID))
	return c.NoContent(http.StatusNoContent)
}
