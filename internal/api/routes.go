// routes.go - Route registration helpers
// This file provides a clean way to register all routes and middleware
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sonicsight/server/internal/web"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Analyzer       Analyzer
	MaxUploadBytes int64
	Version        string
	Logger         *log.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Page   PageHandler
	Audio  AudioHandler
	Health HealthHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Page:   NewPageHandler(deps.MaxUploadBytes),
		Audio:  NewAudioHandler(deps.Analyzer, deps.MaxUploadBytes, deps.Logger),
		Health: NewHealthHandler(deps.Version),
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Page
	e.GET("/", handlers.Page.HandleIndex)

	// Fragments
	e.POST("/upload", handlers.Audio.HandlePreviewUpload)
	e.POST("/analyze", handlers.Audio.HandleAnalyze)

	// Health check
	e.GET("/health", handlers.Health.HandleHealth)
}

// MiddlewareOptions configures SetupMiddleware
type MiddlewareOptions struct {
	Logger            *log.Logger
	RequestLogging    bool
	BodyLimit         string
	EnableCompression bool
	CompressionLevel  int
	EnableCORS        bool
	AllowOrigins      string
	ShowErrorDetails  bool
}

// SetupMiddleware configures the renderer, error handler and common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) error {
	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}
	e.Renderer = renderer
	e.HTTPErrorHandler = NewErrorHandler(opts.Logger, opts.ShowErrorDetails)

	logger := opts.Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !opts.RequestLogging || c.Request().URL.Path == "/health" ||
				strings.HasPrefix(c.Request().URL.Path, "/static/")
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Millisecond),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, "err", v.Error)...)
			} else {
				logger.Info("request", fields...)
			}
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", "path", c.Request().URL.Path, "err", err, "stack", string(stack))
			return err
		},
	}))

	if opts.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: opts.CompressionLevel,
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.EnableCORS {
		origins := strings.Split(opts.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{
				echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
				"HX-Request", "HX-Target", "HX-Trigger", "HX-Current-URL",
			},
		}))
	}

	return nil
}
