package media

import (
	"fmt"
	"mime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sonicsight/server/internal/models"
)

const audioPrefix = "audio/"

// BaseMediaType strips parameters from a declared Content-Type.
func BaseMediaType(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mt
}

// ValidateAudio applies the advisory checks shared by preview and analysis:
// the file must be present, declare an audio/* type and fit the ceiling.
// Only the declared metadata is inspected; content is never read.
func ValidateAudio(file *models.UploadedFile, maxBytes int64) *models.PipelineError {
	if file == nil {
		return models.NewPipelineError(models.KindMissingFile, "No file selected", nil)
	}

	if !strings.HasPrefix(BaseMediaType(file.MediaType), audioPrefix) {
		return models.NewPipelineError(models.KindInvalidMediaType,
			"File must be an audio file", nil)
	}

	if maxBytes > 0 && file.Size > maxBytes {
		return tooLarge(maxBytes)
	}

	return nil
}

func tooLarge(maxBytes int64) *models.PipelineError {
	return models.NewPipelineError(models.KindFileTooLarge,
		fmt.Sprintf("File size exceeds the %s limit", humanize.IBytes(uint64(maxBytes))), nil)
}
