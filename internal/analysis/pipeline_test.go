package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sonicsight/server/internal/inference"
	"github.com/sonicsight/server/internal/media"
	"github.com/sonicsight/server/internal/models"
	"github.com/sonicsight/server/internal/spool"
	"github.com/sonicsight/server/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxBytes = 10 * 1024 * 1024

func newTestPipeline(t *testing.T) (*Pipeline, *testutil.MockClassifier, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	sp, err := spool.New(fs, "/spool")
	require.NoError(t, err)

	classifier := testutil.NewMockClassifier(fs)
	return NewPipeline(sp, classifier, maxBytes, nil), classifier, fs
}

func assertSpoolEmpty(t *testing.T, fs afero.Fs) {
	t.Helper()
	entries, err := afero.ReadDir(fs, "/spool")
	require.NoError(t, err)
	assert.Empty(t, entries, "spool files must not outlive Analyze")
}

func wav(name string) *models.UploadedFile {
	return models.FromBytes(name, "audio/wav", bytes.Repeat([]byte("RIFF"), 1024))
}

func TestAnalyze_Success(t *testing.T) {
	p, classifier, fs := newTestPipeline(t)

	result := p.Analyze(context.Background(), wav("bark.wav"))
	require.True(t, result.OK(), "unexpected failure: %v", result.Err())
	assert.Nil(t, result.Err())

	prediction, ok := result.Prediction()
	require.True(t, ok)
	assert.Equal(t, "meow", prediction.Label)
	assert.Equal(t, 0.92, prediction.Confidence)

	mediaType, data, err := media.DecodeDataURI(prediction.SpectrogramDataURI)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	_, err = png.DecodeConfig(bytes.NewReader(data))
	assert.NoError(t, err)

	paths := classifier.Paths()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], ".wav"), "extension preserved: %s", paths[0])
	assert.Equal(t, []bool{true}, classifier.Existed())
	assert.Equal(t, bytes.Repeat([]byte("RIFF"), 1024), classifier.Contents()[0])

	assertSpoolEmpty(t, fs)
}

func TestAnalyze_SpectrogramByReference(t *testing.T) {
	p, classifier, fs := newTestPipeline(t)

	classifier.ClassifyFunc = func(ctx context.Context, audioPath string) (*inference.Output, error) {
		require.NoError(t, afero.WriteFile(fs, "/downloads/spectrogram.jpg", testutil.JPEG(), 0600))
		return &inference.Output{
			Label:      "bark",
			Confidence: 0.61,
			Spectrogram: inference.Spectrogram{
				Kind: inference.SpectrogramPath,
				Path: "/downloads/spectrogram.jpg",
			},
		}, nil
	}

	result := p.Analyze(context.Background(), wav("dog.wav"))
	require.True(t, result.OK(), "unexpected failure: %v", result.Err())

	prediction, _ := result.Prediction()
	assert.Equal(t, "bark", prediction.Label)
	assert.True(t, strings.HasPrefix(prediction.SpectrogramDataURI, "data:image/png;base64,"))

	_, data, err := media.DecodeDataURI(prediction.SpectrogramDataURI)
	require.NoError(t, err)
	_, err = png.DecodeConfig(bytes.NewReader(data))
	assert.NoError(t, err, "jpeg output is re-encoded as png")

	exists, _ := afero.Exists(fs, "/downloads/spectrogram.jpg")
	assert.False(t, exists, "downloaded spectrogram is consumed")
	assertSpoolEmpty(t, fs)
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name     string
		classify func(ctx context.Context, audioPath string) (*inference.Output, error)
		wantKind models.ErrorKind
		wantMsg  string
	}{
		{
			name: "inference call error",
			classify: func(context.Context, string) (*inference.Output, error) {
				return nil, errors.New("dial tcp: connection refused")
			},
			wantKind: models.KindInferenceCall,
			wantMsg:  "connection refused",
		},
		{
			name: "malformed output",
			classify: func(context.Context, string) (*inference.Output, error) {
				return nil, fmt.Errorf("%w: expected 3 outputs, got 1", inference.ErrMalformedOutput)
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "expected 3 outputs",
		},
		{
			name: "missing spectrogram file",
			classify: func(context.Context, string) (*inference.Output, error) {
				return &inference.Output{
					Label:       "meow",
					Confidence:  0.5,
					Spectrogram: inference.Spectrogram{Kind: inference.SpectrogramPath, Path: "/downloads/gone.png"},
				}, nil
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "Spectrogram file not found at /downloads/gone.png",
		},
		{
			name: "invalid base64",
			classify: func(context.Context, string) (*inference.Output, error) {
				return &inference.Output{
					Label:       "meow",
					Confidence:  0.5,
					Spectrogram: inference.Spectrogram{Kind: inference.SpectrogramInline, Base64: "%%%"},
				}, nil
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "spectrogram",
		},
		{
			name: "not an image",
			classify: func(context.Context, string) (*inference.Output, error) {
				return testutil.InlineOutput("meow", 0.5, []byte("plain text")), nil
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "spectrogram",
		},
		{
			name: "nil output",
			classify: func(context.Context, string) (*inference.Output, error) {
				return nil, nil
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "no output",
		},
		{
			name: "empty label",
			classify: func(context.Context, string) (*inference.Output, error) {
				return testutil.InlineOutput("", 0.5, testutil.PNG()), nil
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "empty label",
		},
		{
			name: "no spectrogram",
			classify: func(context.Context, string) (*inference.Output, error) {
				return &inference.Output{Label: "meow", Confidence: 0.5}, nil
			},
			wantKind: models.KindMalformedOutput,
			wantMsg:  "no spectrogram",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, classifier, fs := newTestPipeline(t)
			classifier.ClassifyFunc = tt.classify

			result := p.Analyze(context.Background(), wav("cat.wav"))
			assert.False(t, result.OK())

			_, ok := result.Prediction()
			assert.False(t, ok, "failure must carry no prediction fields")

			perr := result.Err()
			require.NotNil(t, perr)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.NotEmpty(t, perr.Message)
			assert.Contains(t, strings.ToLower(perr.Error()), strings.ToLower(tt.wantMsg))

			assert.Len(t, classifier.Paths(), 1)
			assertSpoolEmpty(t, fs)
		})
	}
}

func TestAnalyze_RejectedBeforeSpooling(t *testing.T) {
	tests := []struct {
		name     string
		file     *models.UploadedFile
		wantKind models.ErrorKind
	}{
		{name: "missing", file: nil, wantKind: models.KindMissingFile},
		{name: "image", file: models.FromBytes("photo.png", "image/png", testutil.PNG()), wantKind: models.KindInvalidMediaType},
		{name: "too large", file: models.NewUploadedFile("big.wav", "audio/wav", 12_000_000, nil), wantKind: models.KindFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, classifier, fs := newTestPipeline(t)

			result := p.Analyze(context.Background(), tt.file)
			require.NotNil(t, result.Err())
			assert.Equal(t, tt.wantKind, result.Err().Kind)
			assert.Empty(t, classifier.Paths())
			assertSpoolEmpty(t, fs)
		})
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("unexpected EOF in multipart") }

func TestAnalyze_SpoolFailure(t *testing.T) {
	p, classifier, fs := newTestPipeline(t)

	file := models.NewUploadedFile("bark.wav", "audio/wav", 100, func() (io.ReadCloser, error) {
		return io.NopCloser(brokenReader{}), nil
	})

	result := p.Analyze(context.Background(), file)
	require.NotNil(t, result.Err())
	assert.Equal(t, models.KindSpoolFailure, result.Err().Kind)
	assert.Empty(t, classifier.Paths())
	assertSpoolEmpty(t, fs)

	file = models.NewUploadedFile("bark.wav", "audio/wav", 100, func() (io.ReadCloser, error) {
		return nil, errors.New("multipart: part gone")
	})
	result = p.Analyze(context.Background(), file)
	require.NotNil(t, result.Err())
	assert.Equal(t, models.KindSpoolFailure, result.Err().Kind)
}

func TestAnalyze_Concurrent(t *testing.T) {
	p, classifier, fs := newTestPipeline(t)

	const n = 20
	var wg sync.WaitGroup
	results := make([]models.AnalysisResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Analyze(context.Background(), wav(fmt.Sprintf("clip-%d.wav", i)))
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.True(t, r.OK(), "result %d: %v", i, r.Err())
	}

	seen := make(map[string]bool)
	for _, path := range classifier.Paths() {
		assert.False(t, seen[path], "spool path reused: %s", path)
		seen[path] = true
	}
	assertSpoolEmpty(t, fs)
}
