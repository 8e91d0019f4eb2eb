// Package web provides the embedded page templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/sonicsight/server/internal/models"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static/*
var staticFiles embed.FS

// Template names.
const (
	TemplateIndex    = "index"
	TemplatePreview  = "preview"
	TemplateNotice   = "notice"
	TemplateError    = "error"
	TemplateAnalysis = "analysis"
)

// Renderer implements echo.Renderer over the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: t}, nil
}

// Render executes the named template.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// GetFileSystem returns the embedded static filesystem with static/ as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "static")
}

// RegisterStaticRoutes serves the embedded assets under /static/.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
	e.GET("/static/*", echo.WrapHandler(fileServer))

	return nil
}

// IndexView is the data for the full page.
type IndexView struct {
	Title         string
	MaxUploadSize string
}

// NewIndexView describes the page for the given upload ceiling.
func NewIndexView(maxBytes int64) IndexView {
	return IndexView{
		Title:         "SonicSight - Audio Classifier",
		MaxUploadSize: humanize.IBytes(uint64(maxBytes)),
	}
}

// PreviewView is the data for the audio preview fragment.
type PreviewView struct {
	Filename string
	Size     string
	Src      template.URL
}

// NewPreviewView adapts a preview for rendering.
func NewPreviewView(p *models.Preview) PreviewView {
	return PreviewView{
		Filename: p.Filename,
		Size:     humanize.Bytes(uint64(p.Size)),
		Src:      trustedDataURI(p.DataURI),
	}
}

// AnalysisView is the data for the result fragment.
type AnalysisView struct {
	Spectrogram template.URL
	Label       string
	Confidence  string
}

// NewAnalysisView adapts a prediction for rendering.
func NewAnalysisView(p models.Prediction) AnalysisView {
	return AnalysisView{
		Spectrogram: trustedDataURI(p.SpectrogramDataURI),
		Label:       p.Label,
		Confidence:  strconv.FormatFloat(p.Confidence, 'f', -1, 64),
	}
}

// MessageView is the data for notice and error fragments.
type MessageView struct {
	Kind    models.ErrorKind
	Message string
}

// trustedDataURI marks a data URI safe for src attributes. html/template
// would otherwise replace data: URLs. Only base64 data URIs are passed
// through; anything else renders as an empty source.
func trustedDataURI(uri string) template.URL {
	if !strings.HasPrefix(uri, "data:") || !strings.Contains(uri, ";base64,") {
		return ""
	}
	return template.URL(uri)
}
