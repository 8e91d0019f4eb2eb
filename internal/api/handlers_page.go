// handlers_page.go - Full page handler
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sonicsight/server/internal/web"
)

// PageHandlerImpl implements the PageHandler interface
type PageHandlerImpl struct {
	maxUploadBytes int64
}

// NewPageHandler creates a new page handler
func NewPageHandler(maxUploadBytes int64) PageHandler {
	return &PageHandlerImpl{maxUploadBytes: maxUploadBytes}
}

// HandleIndex renders the upload form, preview area and results area
func (h *PageHandlerImpl) HandleIndex(c echo.Context) error {
	return c.Render(http.StatusOK, web.TemplateIndex, web.NewIndexView(h.maxUploadBytes))
}
