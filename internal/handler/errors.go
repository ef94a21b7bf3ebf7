package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/backtest-service/internal/model"
)

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	var verr *model.ConfigValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid backtest configuration", "fields": verr.Fields})
	case errors.Is(err, model.ErrTooManyCombos):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrExecutionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
	case errors.Is(err, model.ErrResultReleased):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrResultNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
