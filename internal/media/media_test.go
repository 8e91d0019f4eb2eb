package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/sonicsight/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenMiB = 10 * 1024 * 1024

func TestDataURI_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("RIFF....WAVEfmt "),
		{0x00, 0xff, 0x10, 0x80, 0x7f},
		bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 4097),
	}

	for _, in := range inputs {
		uri := EncodeDataURI("audio/wav", in)
		assert.True(t, strings.HasPrefix(uri, "data:audio/wav;base64,"))

		mediaType, out, err := DecodeDataURI(uri)
		require.NoError(t, err)
		assert.Equal(t, "audio/wav", mediaType)
		assert.True(t, bytes.Equal(in, out))
	}
}

func TestDecodeDataURI_Rejects(t *testing.T) {
	for _, uri := range []string{
		"http://example.com/a.png",
		"data:image/png,plain",
		"data:image/png;base64",
	} {
		_, _, err := DecodeDataURI(uri)
		assert.ErrorIs(t, err, ErrNotDataURI, uri)
	}

	_, _, err := DecodeDataURI("data:image/png;base64,!!!")
	assert.Error(t, err)
}

func TestValidateAudio(t *testing.T) {
	tests := []struct {
		name     string
		file     *models.UploadedFile
		wantKind models.ErrorKind
	}{
		{name: "missing", file: nil, wantKind: models.KindMissingFile},
		{name: "image", file: models.FromBytes("photo.png", "image/png", []byte("x")), wantKind: models.KindInvalidMediaType},
		{name: "empty type", file: models.FromBytes("bark", "", []byte("x")), wantKind: models.KindInvalidMediaType},
		{name: "too large", file: models.NewUploadedFile("big.wav", "audio/wav", tenMiB+1, nil), wantKind: models.KindFileTooLarge},
		{name: "wav", file: models.FromBytes("bark.wav", "audio/wav", []byte("x"))},
		{name: "params", file: models.FromBytes("meow.mp3", "Audio/MPEG; charset=binary", []byte("x"))},
		{name: "exactly at limit", file: models.NewUploadedFile("edge.wav", "audio/wav", tenMiB, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := ValidateAudio(tt.file, tenMiB)
			if tt.wantKind == "" {
				assert.Nil(t, perr)
				return
			}
			require.NotNil(t, perr)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.NotEmpty(t, perr.Message)
		})
	}
}

func TestBuildPreview_Audio(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 10*1024)
	preview, perr := BuildPreview(models.FromBytes("bark.wav", "audio/wav", data), tenMiB)
	require.Nil(t, perr)

	assert.Equal(t, "bark.wav", preview.Filename)
	assert.Equal(t, "audio/wav", preview.MediaType)
	assert.Equal(t, int64(len(data)), preview.Size)
	assert.True(t, strings.HasPrefix(preview.DataURI, "data:audio/wav;base64,"))

	_, decoded, err := DecodeDataURI(preview.DataURI)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestBuildPreview_NonAudioNeverOpened(t *testing.T) {
	for _, mediaType := range []string{"image/png", "text/plain", "application/octet-stream", "video/mp4"} {
		opened := false
		file := models.NewUploadedFile("x", mediaType, 10, func() (io.ReadCloser, error) {
			opened = true
			return io.NopCloser(strings.NewReader("0123456789")), nil
		})

		preview, perr := BuildPreview(file, tenMiB)
		assert.Nil(t, preview)
		require.NotNil(t, perr)
		assert.Equal(t, models.KindInvalidMediaType, perr.Kind)
		assert.False(t, opened, mediaType)
	}
}

func TestBuildPreview_OversizeNeverOpened(t *testing.T) {
	opened := false
	file := models.NewUploadedFile("big.wav", "audio/wav", 12_000_000, func() (io.ReadCloser, error) {
		opened = true
		return nil, errors.New("should not be called")
	})

	preview, perr := BuildPreview(file, tenMiB)
	assert.Nil(t, preview)
	require.NotNil(t, perr)
	assert.Equal(t, models.KindFileTooLarge, perr.Kind)
	assert.Contains(t, perr.Message, "10 MiB")
	assert.False(t, opened)
}

func TestBuildPreview_UnderstatedSize(t *testing.T) {
	data := make([]byte, 2048)
	file := models.NewUploadedFile("liar.wav", "audio/wav", 10, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})

	preview, perr := BuildPreview(file, 1024)
	assert.Nil(t, preview)
	require.NotNil(t, perr)
	assert.Equal(t, models.KindFileTooLarge, perr.Kind)
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for x := 0; x < 8; x++ {
		img.Set(x, x%4, color.RGBA{R: uint8(x * 30), G: 100, B: 200, A: 255})
	}
	return img
}

func TestSpectrogramPNG(t *testing.T) {
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, testImage()))

	out, err := SpectrogramPNG(pngBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, pngBuf.Bytes(), out, "png passes through unchanged")

	var jpgBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpgBuf, testImage(), nil))

	out, err = SpectrogramPNG(jpgBuf.Bytes())
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, 4, cfg.Height)
}

func TestSpectrogramPNG_Rejects(t *testing.T) {
	_, err := SpectrogramPNG(nil)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = SpectrogramPNG([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, testImage()))
	_, err = SpectrogramPNG(pngBuf.Bytes()[:20])
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestSpectrogramDataURI(t *testing.T) {
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, testImage()))

	uri, err := SpectrogramDataURI(pngBuf.Bytes())
	require.NoError(t, err)

	mediaType, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, pngBuf.Bytes(), data)
}
