package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedImage is returned for spectrogram payloads that are not a
// decodable PNG, JPEG or GIF.
var ErrUnsupportedImage = errors.New("unsupported spectrogram image")

// SpectrogramPNG returns the image re-encoded as PNG. PNG input is checked
// and passed through unchanged.
func SpectrogramPNG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/png"):
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		return data, nil
	case mt.Is("image/jpeg"), mt.Is("image/gif"):
	default:
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mt.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// SpectrogramDataURI normalises the image to PNG and embeds it.
func SpectrogramDataURI(data []byte) (string, error) {
	pngData, err := SpectrogramPNG(data)
	if err != nil {
		return "", err
	}
	return EncodeDataURI("image/png", pngData), nil
}
