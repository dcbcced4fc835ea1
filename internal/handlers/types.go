package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/krishimitra/krishimitra/internal/attachment"
	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/session"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// httpError maps domain errors onto HTTP status codes. Unknown errors
// surface as 500.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, session.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrEmptyTurn):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrTurnCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNoSession):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, attachment.ErrTooLarge), errors.Is(err, attachment.ErrBatchFull), errors.Is(err, attachment.ErrEmptyPayload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, history.ErrSessionFull):
		return echo.NewHTTPError(http.StatusInsufficientStorage, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
