// Package inference talks to the hosted audio classifier.
package inference

import (
	"context"
	"errors"
)

// ErrMalformedOutput marks responses that arrived but could not be
// interpreted: wrong arity, missing fields, or a missing output file.
var ErrMalformedOutput = errors.New("malformed inference output")

// SpectrogramKind tags how the spectrogram was returned.
type SpectrogramKind int

const (
	// SpectrogramPath means the image is a local file at Spectrogram.Path.
	// Ownership of that file passes to the caller.
	SpectrogramPath SpectrogramKind = iota + 1
	// SpectrogramInline means Spectrogram.Base64 holds the encoded image.
	SpectrogramInline
)

// Spectrogram is the image part of an Output.
type Spectrogram struct {
	Kind   SpectrogramKind
	Path   string
	Base64 string
}

// Output is one classification, independent of the wire shape it came in.
type Output struct {
	Label       string
	Confidence  float64
	Spectrogram Spectrogram
}

// Classifier runs a single blocking prediction for the audio file at path.
type Classifier interface {
	Classify(ctx context.Context, audioPath string) (*Output, error)
}
