package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Shape adapts one known layout of the Space's output array to an Output.
type Shape interface {
	Name() string
	decode(ctx context.Context, c *GradioClient, data []json.RawMessage) (*Output, error)
}

// PathTuple is [spectrogram file, label, confidence].
var PathTuple Shape = pathTuple{}

// InlineTuple is [ignored, label, confidence, base64 spectrogram].
var InlineTuple Shape = inlineTuple{}

// ParseShape resolves a configured shape name.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "path", "":
		return PathTuple, nil
	case "inline":
		return InlineTuple, nil
	default:
		return nil, fmt.Errorf("unknown response shape %q", name)
	}
}

type pathTuple struct{}

func (pathTuple) Name() string { return "path" }

func (pathTuple) decode(ctx context.Context, c *GradioClient, data []json.RawMessage) (*Output, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: expected 3 outputs, got %d", ErrMalformedOutput, len(data))
	}

	label, confidence, err := decodePrediction(data[1], data[2])
	if err != nil {
		return nil, err
	}

	fd, err := decodeFileData(data[0])
	if err != nil {
		return nil, err
	}

	local, err := c.download(ctx, fd)
	if err != nil {
		return nil, err
	}

	return &Output{
		Label:      label,
		Confidence: confidence,
		Spectrogram: Spectrogram{
			Kind: SpectrogramPath,
			Path: local,
		},
	}, nil
}

type inlineTuple struct{}

func (inlineTuple) Name() string { return "inline" }

func (inlineTuple) decode(_ context.Context, _ *GradioClient, data []json.RawMessage) (*Output, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: expected 4 outputs, got %d", ErrMalformedOutput, len(data))
	}

	label, confidence, err := decodePrediction(data[1], data[2])
	if err != nil {
		return nil, err
	}

	var encoded string
	if err := json.Unmarshal(data[3], &encoded); err != nil || encoded == "" {
		return nil, fmt.Errorf("%w: spectrogram is not a base64 string", ErrMalformedOutput)
	}

	return &Output{
		Label:      label,
		Confidence: confidence,
		Spectrogram: Spectrogram{
			Kind:   SpectrogramInline,
			Base64: encoded,
		},
	}, nil
}

// fileData is the subset of gradio.FileData we read or send.
type fileData struct {
	Path     string         `json:"path"`
	URL      string         `json:"url,omitempty"`
	OrigName string         `json:"orig_name,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func decodeFileData(raw json.RawMessage) (fileData, error) {
	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		if path == "" {
			return fileData{}, fmt.Errorf("%w: empty spectrogram path", ErrMalformedOutput)
		}
		return fileData{Path: path}, nil
	}

	var fd fileData
	if err := json.Unmarshal(raw, &fd); err != nil {
		return fileData{}, fmt.Errorf("%w: spectrogram reference: %v", ErrMalformedOutput, err)
	}
	if fd.Path == "" && fd.URL == "" {
		return fileData{}, fmt.Errorf("%w: spectrogram reference has no path or url", ErrMalformedOutput)
	}
	return fd, nil
}

// decodePrediction accepts a plain string or a gr.Label object for the label
// and a number or numeric string for the confidence.
func decodePrediction(rawLabel, rawConfidence json.RawMessage) (string, float64, error) {
	var label string
	if err := json.Unmarshal(rawLabel, &label); err != nil {
		var obj struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(rawLabel, &obj); err != nil {
			return "", 0, fmt.Errorf("%w: label: %v", ErrMalformedOutput, err)
		}
		label = obj.Label
	}
	if label == "" {
		return "", 0, fmt.Errorf("%w: empty label", ErrMalformedOutput)
	}

	if len(rawConfidence) == 0 || string(rawConfidence) == "null" {
		return "", 0, fmt.Errorf("%w: missing confidence", ErrMalformedOutput)
	}

	var confidence float64
	if err := json.Unmarshal(rawConfidence, &confidence); err != nil {
		var s string
		if err := json.Unmarshal(rawConfidence, &s); err != nil {
			return "", 0, fmt.Errorf("%w: confidence: %v", ErrMalformedOutput, err)
		}
		confidence, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", 0, fmt.Errorf("%w: confidence %q is not a number", ErrMalformedOutput, s)
		}
	}

	return label, confidence, nil
}
