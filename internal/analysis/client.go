// Package analysis defines the contract of the external analysis service.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chartyap-backend/internal/recommendations"
)

var (
	// ErrUpstream marks a failure reported by, or on the way to, the analysis service.
	ErrUpstream = errors.New("analysis service failure")
	// ErrInvalidResponse marks a response that could not be decoded.
	ErrInvalidResponse = errors.New("analysis service returned an invalid response")
)

// StatusError is a non-2xx answer from the analysis service. It matches
// ErrUpstream under errors.Is.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s http status %d", ErrUpstream, e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Upload is one file submitted for analysis. Content is held in memory so a
// request can be replayed on retry.
type Upload struct {
	FileName string
	Content  []byte
}

// DataResult is the outcome of a data analysis. Rejected lists recommendations
// dropped at the boundary; they never appear in Result.
type DataResult struct {
	Result   recommendations.AnalysisResult
	Rejected []recommendations.Rejection
}

// ImageResult is the outcome of an image analysis. Style is empty when the
// service did not classify the image.
type ImageResult struct {
	Style   recommendations.DetectedStyle
	Message string
}

// Client talks to the analysis service.
type Client interface {
	AnalyzeData(ctx context.Context, upload Upload) (DataResult, error)
	AnalyzeImage(ctx context.Context, upload Upload) (ImageResult, error)
}

// HealthChecker is implemented by clients that can probe the service.
type HealthChecker interface {
	Health(ctx context.Context) error
}
