package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/sonicsight/server/internal/analysis"
	"github.com/sonicsight/server/internal/config"
	"github.com/sonicsight/server/internal/inference"
	"github.com/sonicsight/server/internal/logging"
	"github.com/sonicsight/server/internal/spool"
	"github.com/spf13/afero"
)

// app is the wiring shared by serve and classify.
type app struct {
	configPath string
	cfg        *config.AppConfig
	logger     *log.Logger
	fs         afero.Fs
	uploads    *spool.Spool
	downloads  *spool.Spool
	pipeline   *analysis.Pipeline
}

// newApp loads the configuration once and builds everything from it.
func newApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logOut, cfg.Advanced.LogLevel)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()

	uploads, err := spool.New(fs, cfg.Upload.SpoolDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize spool: %w", err)
	}
	downloads, err := spool.New(fs, cfg.Inference.DownloadDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize download directory: %w", err)
	}

	shape, err := inference.ParseShape(cfg.Inference.ResponseShape)
	if err != nil {
		return nil, err
	}

	classifier, err := inference.NewGradioClient(inference.GradioOptions{
		BaseURL:    cfg.SpaceURL(),
		APIName:    cfg.Inference.APIName,
		Token:      cfg.Inference.Token,
		Shape:      shape,
		Fs:         fs,
		Downloads:  downloads,
		HTTPClient: &http.Client{},
		Logger:     logger.WithPrefix("gradio"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inference client: %w", err)
	}

	return &app{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		fs:         fs,
		uploads:    uploads,
		downloads:  downloads,
		pipeline:   analysis.NewPipeline(uploads, classifier, cfg.MaxUploadBytes(), logger),
	}, nil
}
