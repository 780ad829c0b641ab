package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/auth"
	"github.com/david/recovery-match/internal/catalog"
	"github.com/david/recovery-match/internal/db"
	"github.com/david/recovery-match/internal/models"
	"github.com/david/recovery-match/internal/workflow"
)

// errorStatus maps domain errors to HTTP status codes. Unknown errors map to
// 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation),
		errors.Is(err, models.ErrInvalidCriterion),
		errors.Is(err, catalog.ErrInvalidOpportunity),
		errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.JSON(status, map[string]string{"error": "Internal Server Error"})
	}

	body := map[string]string{"error": err.Error()}
	switch {
	case errors.Is(err, workflow.ErrConcurrentModification):
		body["retry"] = "refetch"
	case workflow.Retryable(err):
		body["retry"] = "retry"
		s.Logger.Warn("storage unavailable", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, body)
}
