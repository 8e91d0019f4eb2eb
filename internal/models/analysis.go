package models

import "fmt"

// ErrorKind classifies every failure the upload and analysis paths can report.
type ErrorKind string

const (
	KindMissingFile      ErrorKind = "missing_file"
	KindInvalidMediaType ErrorKind = "invalid_media_type"
	KindFileTooLarge     ErrorKind = "file_too_large"
	KindSpoolFailure     ErrorKind = "spool_failure"
	KindInferenceCall    ErrorKind = "inference_call_failure"
	KindMalformedOutput  ErrorKind = "malformed_inference_output"
)

// PipelineError is a typed, user-displayable failure.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewPipelineError creates a PipelineError with an optional cause.
func NewPipelineError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: cause}
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Prediction is the normalised output of one successful classification.
type Prediction struct {
	SpectrogramDataURI string
	Label              string
	Confidence         float64
}

// AnalysisResult is either a complete Prediction or a complete failure.
type AnalysisResult struct {
	prediction *Prediction
	err        *PipelineError
}

// Succeeded wraps a prediction.
func Succeeded(p Prediction) AnalysisResult {
	return AnalysisResult{prediction: &p}
}

// Failed wraps a failure. A nil error is reported as an inference failure
// rather than producing an empty result.
func Failed(err *PipelineError) AnalysisResult {
	if err == nil {
		err = NewPipelineError(KindInferenceCall, "analysis failed", nil)
	}
	return AnalysisResult{err: err}
}

// OK reports whether the result is a success.
func (r AnalysisResult) OK() bool {
	return r.prediction != nil
}

// Prediction returns the success payload.
func (r AnalysisResult) Prediction() (Prediction, bool) {
	if r.prediction == nil {
		return Prediction{}, false
	}
	return *r.prediction, true
}

// Err returns the failure, or nil on success.
func (r AnalysisResult) Err() *PipelineError {
	return r.err
}
