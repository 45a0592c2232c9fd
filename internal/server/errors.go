package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	assignmentdomain "github.com/planfence/planfence/internal/assignment/domain"
	enforcementdomain "github.com/planfence/planfence/internal/enforcement/domain"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
	usagedomain "github.com/planfence/planfence/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrNotFound        = errors.New("not_found")
	ErrTooManyRequests = errors.New("too_many_requests")
)

// ErrorHandlingMiddleware converts errors attached to the context into a
// JSON error response after the handler chain runs.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, owner.ErrInvalidRef),
		errors.Is(err, enforcementdomain.ErrInvalidAmount),
		errors.Is(err, usagedomain.ErrInvalidAmount),
		errors.Is(err, assignmentdomain.ErrUnknownSource):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, plan.ErrFeatureNotAvailable):
		return http.StatusForbidden, errorPayload{
			Type:    "feature_not_available",
			Message: err.Error(),
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "rate limit exceeded",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
