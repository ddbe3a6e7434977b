// Package apierr maps service errors onto HTTP responses.
package apierr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/domain/intake"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, domainagent.ErrNotFound), errors.Is(err, domaintask.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainagent.ErrDuplicateEmail), errors.Is(err, domainagent.ErrLastActiveAgent):
		return http.StatusConflict
	case errors.Is(err, intake.ErrInvalidFile),
		errors.Is(err, intake.ErrTooManyRecords),
		errors.Is(err, intake.ErrNoRecords),
		errors.Is(err, intake.ErrValidation),
		errors.Is(err, distribution.ErrNoAgents),
		errors.Is(err, distribution.ErrAllAgentsAtCapacity),
		errors.Is(err, domaintask.ErrInvalidStatus),
		errors.Is(err, domainagent.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, portlocker.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write renders err as {"error": ...} plus whatever detail the error carries:
// the failing rows of a batch, file problems, or capacity warnings.
func Write(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}

	var (
		batchErr *intake.BatchError
		fileErr  *intake.FileError
		inelErr  *distribution.IneligibleError
	)
	switch {
	case errors.As(err, &batchErr):
		body["error"] = intake.ErrValidation.Error()
		body["errors"] = []string{intake.ErrValidation.Error()}
		body["failedRecords"] = batchErr.FailedRecords
		body["warnings"] = nonNil(batchErr.Warnings)
	case errors.As(err, &fileErr):
		body["error"] = intake.ErrInvalidFile.Error()
		body["errors"] = fileErr.Errors
	case errors.Is(err, intake.ErrNoRecords):
		body["errors"] = []string{"No tasks found in file"}
	case errors.As(err, &inelErr):
		body["errors"] = []string{inelErr.Err.Error()}
		body["warnings"] = nonNil(inelErr.Warnings)
	}

	c.JSON(status, body)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
