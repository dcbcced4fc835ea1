package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/krishimitra/krishimitra/internal/attachment"
	"github.com/krishimitra/krishimitra/internal/session"
)

type AttachmentsHandler struct {
	manager *session.Manager
	logger  *slog.Logger
}

func NewAttachmentsHandler(log *slog.Logger, manager *session.Manager) *AttachmentsHandler {
	return &AttachmentsHandler{
		manager: manager,
		logger:  log.With(slog.String("handler", "attachments")),
	}
}

func (h *AttachmentsHandler) Register(e *echo.Echo) {
	group := e.Group("/sessions/:session/attachments")
	group.POST("", h.Add)
	group.GET("", h.List)
	group.DELETE("/:id", h.Remove)
	group.DELETE("", h.Clear)
}

type addAttachmentRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=image document"`
	DisplayName string `json:"display_name" validate:"required"`
	Mime        string `json:"mime"`
	// Data is base64 in the JSON body.
	Data []byte `json:"data" validate:"required"`
}

type attachmentView struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	Mime        string `json:"mime"`
	SizeBytes   int64  `json:"size_bytes"`
}

func viewOf(a attachment.Attachment) attachmentView {
	return attachmentView{
		ID:          a.ID,
		Kind:        string(a.Kind),
		DisplayName: a.DisplayName,
		Mime:        a.Mime,
		SizeBytes:   a.SizeBytes,
	}
}

func (h *AttachmentsHandler) Add(c echo.Context) error {
	var req addAttachmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s := h.manager.GetOrCreate(c.Param("session"))
	item, err := s.Queue().Add(attachment.Kind(req.Kind), req.DisplayName, req.Mime, req.Data)
	if err != nil {
		return httpError(err)
	}
	h.logger.Info("attachment queued",
		slog.String("session_id", s.ID),
		slog.String("attachment_id", item.ID),
		slog.Int64("size_bytes", item.SizeBytes),
	)
	return c.JSON(http.StatusCreated, viewOf(item))
}

func (h *AttachmentsHandler) List(c echo.Context) error {
	s := h.manager.GetOrCreate(c.Param("session"))
	items := s.Queue().List()
	views := make([]attachmentView, 0, len(items))
	for _, item := range items {
		views = append(views, viewOf(item))
	}
	return c.JSON(http.StatusOK, map[string]any{"attachments": views})
}

func (h *AttachmentsHandler) Remove(c echo.Context) error {
	s, ok := h.manager.Get(c.Param("session"))
	if !ok {
		return httpError(session.ErrNoSession)
	}
	if !s.Queue().Remove(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear drops queued drafts and the analysis context carried from the
// last batch. Safe to repeat.
func (h *AttachmentsHandler) Clear(c echo.Context) error {
	s, ok := h.manager.Get(c.Param("session"))
	if ok {
		s.ClearAttachments()
	}
	return c.NoContent(http.StatusNoContent)
}
