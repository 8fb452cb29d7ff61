// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"haulbook/internal/modules/booking"
	"haulbook/internal/modules/fleet"
	"haulbook/internal/modules/matching"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps domain sentinels to status codes. Anything unknown
// is logged and hidden behind a generic 500.
func writeServiceError(c *gin.Context, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, fleet.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrValidation), errors.Is(err, fleet.ErrBadRequest), errors.Is(err, matching.ErrBadRequest):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrNotAllowed), errors.Is(err, fleet.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrNotAvailable), errors.Is(err, booking.ErrConflict),
		errors.Is(err, fleet.ErrInUse), errors.Is(err, fleet.ErrDuplicate):
		writeError(c, http.StatusConflict, err.Error())
	default:
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
