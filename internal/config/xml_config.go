// Package config provides XML-based configuration with environment overrides.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Known inference response shapes.
const (
	ShapePath   = "path"
	ShapeInline = "inline"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"SonicSight"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Upload and spool configuration
	Upload UploadConfig `xml:"Upload"`

	// Remote inference service
	Inference InferenceConfig `xml:"Inference"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port              int    `xml:"Port"`
	BindAddress       string `xml:"BindAddress"`
	EnableCORS        bool   `xml:"EnableCORS"`
	AllowOrigins      string `xml:"AllowOrigins"`
	ReadTimeout       int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout      int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout       int    `xml:"IdleTimeoutSeconds"`
	BodyLimit         string `xml:"BodyLimit"`
	EnableCompression bool   `xml:"EnableCompression"`
	CompressionLevel  int    `xml:"CompressionLevel"`
}

// UploadConfig contains upload validation and spool settings
type UploadConfig struct {
	MaxUploadSize        string `xml:"MaxUploadSize"`
	SpoolDirectory       string `xml:"SpoolDirectory"`
	SpoolMaxAgeMinutes   int    `xml:"SpoolMaxAgeMinutes"`
	SweepIntervalMinutes int    `xml:"SweepIntervalMinutes"`
}

// InferenceConfig describes the hosted classifier.
// Token is never persisted to disk; it comes from HF_TOKEN.
type InferenceConfig struct {
	Space             string `xml:"Space"`
	BaseURL           string `xml:"BaseURL,omitempty"`
	APIName           string `xml:"APIName"`
	ResponseShape     string `xml:"ResponseShape"`
	DownloadDirectory string `xml:"DownloadDirectory"`
	Token             string `xml:"-"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// envOverrides lists every variable that may override the file.
type envOverrides struct {
	Token         string `env:"HF_TOKEN"`
	Port          int    `env:"PORT"`
	MaxUploadSize string `env:"SONICSIGHT_MAX_UPLOAD_SIZE"`
	Space         string `env:"SONICSIGHT_SPACE"`
	BaseURL       string `env:"SONICSIGHT_BASE_URL"`
	ResponseShape string `env:"SONICSIGHT_RESPONSE_SHAPE"`
	LogLevel      string `env:"SONICSIGHT_LOG_LEVEL"`
	SpoolDir      string `env:"SONICSIGHT_SPOOL_DIR"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	tmp := os.TempDir()
	return &AppConfig{
		Server: ServerConfig{
			Port:              3000,
			BindAddress:       "0.0.0.0",
			EnableCORS:        false,
			AllowOrigins:      "*",
			ReadTimeout:       60,
			WriteTimeout:      0,
			IdleTimeout:       120,
			BodyLimit:         "64M",
			EnableCompression: true,
			CompressionLevel:  5,
		},
		Upload: UploadConfig{
			MaxUploadSize:        "10MiB",
			SpoolDirectory:       filepath.Join(tmp, "sonicsight", "spool"),
			SpoolMaxAgeMinutes:   60,
			SweepIntervalMinutes: 10,
		},
		Inference: InferenceConfig{
			Space:             "khoaHyh/cat-meow-vs-dog-bork",
			APIName:           "/predict_audio",
			ResponseShape:     ShapePath,
			DownloadDirectory: filepath.Join(tmp, "sonicsight", "downloads"),
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from an XML file, creating it with defaults
// when missing, then applies .env and environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	var cfg *AppConfig

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		cfg = DefaultConfig()
		if err := xml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.resolvePaths(filepath.Dir(configPath))
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- SonicSight Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.Token != "" {
		c.Inference.Token = o.Token
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.MaxUploadSize != "" {
		c.Upload.MaxUploadSize = o.MaxUploadSize
	}
	if o.Space != "" {
		c.Inference.Space = o.Space
	}
	if o.BaseURL != "" {
		c.Inference.BaseURL = o.BaseURL
	}
	if o.ResponseShape != "" {
		c.Inference.ResponseShape = o.ResponseShape
	}
	if o.LogLevel != "" {
		c.Advanced.LogLevel = o.LogLevel
	}
	if o.SpoolDir != "" {
		c.Upload.SpoolDirectory = o.SpoolDir
	}

	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Upload.SpoolDirectory) {
		c.Upload.SpoolDirectory = filepath.Join(configDir, c.Upload.SpoolDirectory)
	}
	if !filepath.IsAbs(c.Inference.DownloadDirectory) {
		c.Inference.DownloadDirectory = filepath.Join(configDir, c.Inference.DownloadDirectory)
	}
}

// Validate checks values that cannot be fixed up silently.
func (c *AppConfig) Validate() error {
	maxUpload, err := humanize.ParseBytes(c.Upload.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid MaxUploadSize %q: %w", c.Upload.MaxUploadSize, err)
	}
	if maxUpload == 0 {
		return errors.New("MaxUploadSize must be positive")
	}

	bodyLimit, err := humanize.ParseBytes(c.Server.BodyLimit)
	if err != nil {
		return fmt.Errorf("invalid BodyLimit %q: %w", c.Server.BodyLimit, err)
	}
	// The body limit must leave room for an oversize upload to reach the
	// handler so it can be reported as a fragment.
	if bodyLimit <= maxUpload {
		return fmt.Errorf("BodyLimit (%s) must be larger than MaxUploadSize (%s)",
			c.Server.BodyLimit, c.Upload.MaxUploadSize)
	}

	switch c.Inference.ResponseShape {
	case ShapePath, ShapeInline:
	default:
		return fmt.Errorf("unknown ResponseShape %q (want %q or %q)",
			c.Inference.ResponseShape, ShapePath, ShapeInline)
	}

	if c.Inference.Space == "" && c.Inference.BaseURL == "" {
		return errors.New("either Inference.Space or Inference.BaseURL must be set")
	}

	return nil
}

// MaxUploadBytes returns the parsed upload ceiling. Validate must have passed.
func (c *AppConfig) MaxUploadBytes() int64 {
	n, _ := humanize.ParseBytes(c.Upload.MaxUploadSize)
	return int64(n)
}

// SpaceURL returns the root URL of the inference Space. Hugging Face serves
// "owner/name" at https://owner-name.hf.space.
func (c *AppConfig) SpaceURL() string {
	if c.Inference.BaseURL != "" {
		return strings.TrimRight(c.Inference.BaseURL, "/")
	}
	host := strings.ToLower(c.Inference.Space)
	host = strings.NewReplacer("/", "-", "_", "-", ".", "-").Replace(host)
	return "https://" + host + ".hf.space"
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Upload.SpoolDirectory,
		c.Inference.DownloadDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
