// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/sonicsight/server/internal/models"
	"github.com/sonicsight/server/internal/web"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// respondWithFailure is the one place a pipeline error kind becomes a
// response. Fragments are sent with 200 so htmx swaps them into the page.
func respondWithFailure(c echo.Context, perr *models.PipelineError) error {
	if perr.Kind == models.KindMissingFile {
		return c.Render(http.StatusOK, web.TemplateNotice, web.MessageView{
			Kind:    perr.Kind,
			Message: perr.Message,
		})
	}

	return c.Render(http.StatusOK, web.TemplateError, web.MessageView{
		Kind:    perr.Kind,
		Message: perr.Error(),
	})
}

// NewErrorHandler returns the echo error handler. Requests made by htmx get
// an error fragment; everything else gets JSON.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(logger, false)
func NewErrorHandler(logger *log.Logger, showDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError

		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if showDetails {
				apiErr.Details = err.Error()
			}
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "err", err)
		}

		var respErr error
		if isHTMXRequest(c) {
			respErr = respondWithFailure(c, fragmentError(apiErr))
		} else {
			respErr = c.JSON(apiErr.Status, apiErr)
		}
		if respErr != nil {
			logger.Error("failed to write error response", "err", respErr)
		}
	}
}

// fragmentError maps a framework-level error onto the closest pipeline kind.
func fragmentError(apiErr *APIError) *models.PipelineError {
	switch apiErr.Status {
	case http.StatusRequestEntityTooLarge:
		return models.NewPipelineError(models.KindFileTooLarge, "File size exceeds the upload limit", nil)
	default:
		return models.NewPipelineError(models.KindSpoolFailure, apiErr.Message, nil)
	}
}

func isHTMXRequest(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}
