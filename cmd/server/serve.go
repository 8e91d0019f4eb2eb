package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/sonicsight/server/internal/api"
	"github.com/sonicsight/server/internal/web"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, opts)
		},
	}
}

func serve(cmd *cobra.Command, opts *rootOptions) error {
	a, err := newApp(opts.configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return a.serve(cmd.Context(), cmd.OutOrStdout())
}

// newEcho builds the configured echo instance with all routes registered.
func (a *app) newEcho() (*echo.Echo, error) {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if err := api.SetupMiddleware(e, api.MiddlewareOptions{
		Logger:            a.logger,
		RequestLogging:    cfg.Advanced.EnableRequestLogging,
		BodyLimit:         cfg.Server.BodyLimit,
		EnableCompression: cfg.Server.EnableCompression,
		CompressionLevel:  cfg.Server.CompressionLevel,
		EnableCORS:        cfg.Server.EnableCORS,
		AllowOrigins:      cfg.Server.AllowOrigins,
		ShowErrorDetails:  a.logger.GetLevel() == log.DebugLevel,
	}); err != nil {
		return nil, fmt.Errorf("failed to set up middleware: %w", err)
	}

	if err := web.RegisterStaticRoutes(e); err != nil {
		return nil, fmt.Errorf("failed to register static routes: %w", err)
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Analyzer:       a.pipeline,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Version:        Version,
		Logger:         a.logger,
	}))

	return e, nil
}

// serve runs the HTTP server until ctx is cancelled.
func (a *app) serve(ctx context.Context, out io.Writer) error {
	cfg := a.cfg

	e, err := a.newEcho()
	if err != nil {
		return err
	}

	maxAge := time.Duration(cfg.Upload.SpoolMaxAgeMinutes) * time.Minute
	interval := time.Duration(cfg.Upload.SweepIntervalMinutes) * time.Minute
	go a.uploads.RunSweeper(ctx, maxAge, interval, a.logger)
	go a.downloads.RunSweeper(ctx, maxAge, interval, a.logger)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	a.printBanner(out)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

func (a *app) printBanner(out io.Writer) {
	cfg := a.cfg

	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(out, "║           SonicSight Server                               ║\n")
	fmt.Fprintf(out, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(out, "║  Version:    %-45s║\n", Version)
	fmt.Fprintf(out, "║  Build Time: %-45s║\n", BuildTime)
	fmt.Fprintf(out, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(out, "║  Config:    %-46s║\n", a.configPath)
	fmt.Fprintf(out, "║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Fprintf(out, "║  Space:     %-46s║\n", cfg.SpaceURL())
	fmt.Fprintf(out, "║  Shape:     %-46s║\n", cfg.Inference.ResponseShape)
	fmt.Fprintf(out, "║  Max File:  %-46s║\n", cfg.Upload.MaxUploadSize)
	fmt.Fprintf(out, "╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
}
