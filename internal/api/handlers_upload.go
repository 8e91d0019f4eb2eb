// handlers_upload.go - Audio preview and analysis handlers
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/sonicsight/server/internal/media"
	"github.com/sonicsight/server/internal/models"
	"github.com/sonicsight/server/internal/web"
)

// AudioHandlerImpl implements the AudioHandler interface
type AudioHandlerImpl struct {
	analyzer       Analyzer
	maxUploadBytes int64
	logger         *log.Logger
}

// NewAudioHandler creates a new audio handler instance
func NewAudioHandler(analyzer Analyzer, maxUploadBytes int64, logger *log.Logger) AudioHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &AudioHandlerImpl{
		analyzer:       analyzer,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandlePreviewUpload renders the uploaded audio as an embeddable player
func (h *AudioHandlerImpl) HandlePreviewUpload(c echo.Context) error {
	file, err := formFile(c, "audio")
	if err != nil {
		return err
	}

	preview, perr := media.BuildPreview(file, h.maxUploadBytes)
	if perr != nil {
		h.logger.Debug("preview rejected", "kind", perr.Kind, "err", perr)
		return respondWithFailure(c, perr)
	}

	return c.Render(http.StatusOK, web.TemplatePreview, web.NewPreviewView(preview))
}

// HandleAnalyze classifies the uploaded audio and renders the result
func (h *AudioHandlerImpl) HandleAnalyze(c echo.Context) error {
	file, err := formFile(c, "audio", "file")
	if err != nil {
		return err
	}

	result := h.analyzer.Analyze(c.Request().Context(), file)
	if perr := result.Err(); perr != nil {
		return respondWithFailure(c, perr)
	}

	prediction, _ := result.Prediction()
	return c.Render(http.StatusOK, web.TemplateAnalysis, web.NewAnalysisView(prediction))
}

// Helper functions

// formFile returns the first file found under fields, or nil when the form
// carries none. Body-limit errors are passed through to the error handler.
func formFile(c echo.Context, fields ...string) (*models.UploadedFile, error) {
	for _, field := range fields {
		fh, err := c.FormFile(field)
		if err == nil {
			return models.FromFileHeader(fh), nil
		}

		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			return nil, httpErr
		case errors.Is(err, http.ErrMissingFile):
			continue
		case errors.Is(err, http.ErrNotMultipart):
			return nil, nil
		default:
			return nil, NewBadRequestError("invalid multipart form", err)
		}
	}
	return nil, nil
}
