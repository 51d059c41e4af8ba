package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/medicore/opd-api/internal/handler"
	apperrors "github.com/medicore/opd-api/pkg/errors"
)

// ErrorHandler turns errors attached to the context into the error envelope.
// Application errors keep their code and mapped status; anything else is a
// plain 500 so internals never leak to clients.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("request error")
		}

		lastErr := c.Errors.Last().Err

		code := apperrors.CodeOf(lastErr)
		status := http.StatusInternalServerError
		message := "internal server error"

		if sc, ok := lastErr.(interface{ StatusCode() int }); ok {
			status = sc.StatusCode()
			message = lastErr.Error()
		} else if code != apperrors.ErrInternal {
			// Wrapped AppError: recover status from the code mapping.
			status = (&apperrors.AppError{Code: code}).StatusCode()
			message = lastErr.Error()
		}

		resp := handler.NewErrorResponse(code, message)

		// The conflict payload lets the client offer a forced override.
		var inProgress *apperrors.HasInProgressError
		if errors.As(lastErr, &inProgress) {
			resp.Data = gin.H{"conflicting_visit_id": inProgress.ConflictingVisitID}
		}

		c.JSON(status, resp)
	}
}
