// mock_classifier.go - Mock inference client for testing
package testutil

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/sonicsight/server/internal/inference"
	"github.com/spf13/afero"
)

// MockClassifier implements inference.Classifier for testing. It records
// every path it is called with and whether that file existed at call time.
type MockClassifier struct {
	// Fs is checked for the spooled file during each call, if set.
	Fs afero.Fs
	// ClassifyFunc produces the result; defaults to a fixed inline "meow".
	ClassifyFunc func(ctx context.Context, audioPath string) (*inference.Output, error)

	mu       sync.Mutex
	paths    []string
	existed  []bool
	contents [][]byte
}

// NewMockClassifier returns a classifier answering ("meow", 0.92) with an
// inline PNG spectrogram.
func NewMockClassifier(fs afero.Fs) *MockClassifier {
	return &MockClassifier{Fs: fs}
}

func (m *MockClassifier) Classify(ctx context.Context, audioPath string) (*inference.Output, error) {
	existed := false
	var content []byte
	if m.Fs != nil {
		if data, err := afero.ReadFile(m.Fs, audioPath); err == nil {
			existed = true
			content = data
		}
	}

	m.mu.Lock()
	m.paths = append(m.paths, audioPath)
	m.existed = append(m.existed, existed)
	m.contents = append(m.contents, content)
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, audioPath)
	}
	return InlineOutput("meow", 0.92, PNG()), nil
}

// Paths returns the audio paths seen so far.
func (m *MockClassifier) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

// Existed reports, per call, whether the audio file was readable.
func (m *MockClassifier) Existed() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.existed...)
}

// Contents returns the bytes read from each audio path.
func (m *MockClassifier) Contents() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.contents...)
}

// InlineOutput builds an output carrying the image by value.
func InlineOutput(label string, confidence float64, image []byte) *inference.Output {
	return &inference.Output{
		Label:      label,
		Confidence: confidence,
		Spectrogram: inference.Spectrogram{
			Kind:   inference.SpectrogramInline,
			Base64: base64.StdEncoding.EncodeToString(image),
		},
	}
}
