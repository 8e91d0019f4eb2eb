// Package analysis implements the upload to inference to result pipeline.
package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sonicsight/server/internal/inference"
	"github.com/sonicsight/server/internal/media"
	"github.com/sonicsight/server/internal/models"
	"github.com/sonicsight/server/internal/spool"
	"github.com/spf13/afero"
)

// Pipeline classifies one uploaded file per call. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	spool      *spool.Spool
	classifier inference.Classifier
	maxBytes   int64
	logger     *log.Logger
}

// NewPipeline creates a pipeline. By-reference spectrograms returned by the
// classifier are read from the spool's filesystem.
func NewPipeline(sp *spool.Spool, classifier inference.Classifier, maxBytes int64, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Pipeline{
		spool:      sp,
		classifier: classifier,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Analyze spools file, classifies it and returns a complete success or a
// complete failure. The spool file is removed before Analyze returns.
func (p *Pipeline) Analyze(ctx context.Context, file *models.UploadedFile) models.AnalysisResult {
	if file == nil {
		return models.Failed(models.NewPipelineError(models.KindMissingFile, "Audio file not found", nil))
	}
	if perr := media.ValidateAudio(file, p.maxBytes); perr != nil {
		return models.Failed(perr)
	}

	src, err := file.Open()
	if err != nil {
		return models.Failed(models.NewPipelineError(models.KindSpoolFailure, "Failed to read uploaded file", err))
	}
	defer src.Close()

	start := time.Now()
	var result models.AnalysisResult
	err = p.spool.With(file.Filename, src, func(path string) error {
		p.logger.Debug("spooled upload", "file", file.Filename, "path", path)

		out, err := p.classifier.Classify(ctx, path)
		if err != nil {
			return classifyError(err)
		}

		prediction, perr := p.normalize(out)
		if perr != nil {
			return perr
		}
		result = models.Succeeded(*prediction)
		return nil
	})

	var perr *models.PipelineError
	switch {
	case errors.As(err, &perr):
		p.logger.Warn("analysis failed", "file", file.Filename, "kind", perr.Kind, "err", perr)
		return models.Failed(perr)
	case err != nil && result.OK():
		// Prediction is complete; only the cleanup failed.
		p.logger.Error("failed to remove spool file", "file", file.Filename, "err", err)
	case err != nil:
		p.logger.Warn("analysis failed", "file", file.Filename, "kind", models.KindSpoolFailure, "err", err)
		return models.Failed(models.NewPipelineError(models.KindSpoolFailure, "Failed to spool uploaded file", err))
	}

	prediction, _ := result.Prediction()
	p.logger.Info("analysis complete",
		"file", file.Filename,
		"label", prediction.Label,
		"confidence", prediction.Confidence,
		"took", time.Since(start).Round(time.Millisecond))

	return result
}

func classifyError(err error) *models.PipelineError {
	if errors.Is(err, inference.ErrMalformedOutput) {
		return models.NewPipelineError(models.KindMalformedOutput, "Failed to process audio", err)
	}
	return models.NewPipelineError(models.KindInferenceCall, "Failed to process audio", err)
}

func (p *Pipeline) normalize(out *inference.Output) (*models.Prediction, *models.PipelineError) {
	if out == nil {
		return nil, models.NewPipelineError(models.KindMalformedOutput, "Failed to process audio",
			fmt.Errorf("%w: classifier returned no output", inference.ErrMalformedOutput))
	}
	if out.Label == "" {
		return nil, models.NewPipelineError(models.KindMalformedOutput, "Failed to process audio",
			fmt.Errorf("%w: empty label", inference.ErrMalformedOutput))
	}

	var raw []byte
	switch out.Spectrogram.Kind {
	case inference.SpectrogramPath:
		data, perr := p.readSpectrogram(out.Spectrogram.Path)
		if perr != nil {
			return nil, perr
		}
		raw = data
	case inference.SpectrogramInline:
		encoded := out.Spectrogram.Base64
		if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i >= 0 {
			encoded = encoded[i+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, models.NewPipelineError(models.KindMalformedOutput, "Failed to decode spectrogram", err)
		}
		raw = data
	default:
		return nil, models.NewPipelineError(models.KindMalformedOutput, "Failed to process audio",
			fmt.Errorf("%w: no spectrogram returned", inference.ErrMalformedOutput))
	}

	uri, err := media.SpectrogramDataURI(raw)
	if err != nil {
		return nil, models.NewPipelineError(models.KindMalformedOutput, "Failed to decode spectrogram", err)
	}

	return &models.Prediction{
		SpectrogramDataURI: uri,
		Label:              out.Label,
		Confidence:         out.Confidence,
	}, nil
}

// readSpectrogram reads and then removes a by-reference spectrogram.
func (p *Pipeline) readSpectrogram(path string) ([]byte, *models.PipelineError) {
	fs := p.spool.Fs()

	exists, err := afero.Exists(fs, path)
	if err != nil || !exists || path == "" {
		return nil, models.NewPipelineError(models.KindMalformedOutput,
			fmt.Sprintf("Spectrogram file not found at %s", path), err)
	}
	defer func() {
		if err := fs.Remove(path); err != nil {
			p.logger.Warn("failed to remove downloaded spectrogram", "path", path, "err", err)
		}
	}()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, models.NewPipelineError(models.KindSpoolFailure, "Failed to read spectrogram", err)
	}
	return data, nil
}
