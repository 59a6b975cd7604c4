package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdispatch/internal/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

// respondJobError maps queue errors onto HTTP statuses. A job owned by
// another restaurant is reported exactly like a missing one.
func respondJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "not_found", "print job not found")
	case errors.Is(err, core.ErrInvalidTransition):
		respondError(c, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, core.ErrInvalidJob):
		respondError(c, http.StatusBadRequest, "invalid_job", err.Error())
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
