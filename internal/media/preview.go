package media

import (
	"io"

	"github.com/sonicsight/server/internal/models"
)

// BuildPreview validates an upload and, if it passes, embeds the whole file
// as a data URI for in-browser playback.
func BuildPreview(file *models.UploadedFile, maxBytes int64) (*models.Preview, *models.PipelineError) {
	if perr := ValidateAudio(file, maxBytes); perr != nil {
		return nil, perr
	}

	src, err := file.Open()
	if err != nil {
		return nil, models.NewPipelineError(models.KindSpoolFailure, "Failed to read uploaded file", err)
	}
	defer src.Close()

	// The declared size is client supplied; never read past the ceiling.
	var r io.Reader = src
	if maxBytes > 0 {
		r = io.LimitReader(src, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, models.NewPipelineError(models.KindSpoolFailure, "Failed to read uploaded file", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, tooLarge(maxBytes)
	}

	mediaType := BaseMediaType(file.MediaType)
	return &models.Preview{
		Filename:  file.Filename,
		MediaType: mediaType,
		Size:      int64(len(data)),
		DataURI:   EncodeDataURI(mediaType, data),
	}, nil
}
