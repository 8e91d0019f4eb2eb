// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/sonicsight/server/internal/models"
)

// PageHandler serves the full page
type PageHandler interface {
	HandleIndex(c echo.Context) error
}

// AudioHandler handles preview uploads and analysis requests
type AudioHandler interface {
	HandlePreviewUpload(c echo.Context) error
	HandleAnalyze(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Analyzer runs the analysis pipeline.
// This allows mocking in tests
type Analyzer interface {
	Analyze(ctx context.Context, file *models.UploadedFile) models.AnalysisResult
}
