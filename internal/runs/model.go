package runs

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Status of a generation run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPopulated Status = "populated"
	StatusFailed    Status = "failed"
)

// Run records one generate() invocation. StyleErrorMessage holds a non-fatal
// image-analysis failure; ErrorMessage holds the fatal data-analysis failure.
type Run struct {
	ID                  string     `json:"id"`
	SessionID           string     `json:"sessionId"`
	Status              Status     `json:"status"`
	DataFileName        string     `json:"dataFileName"`
	StyleFileName       string     `json:"styleFileName,omitempty"`
	DetectedStyle       string     `json:"detectedStyle,omitempty"`
	RecommendationCount int        `json:"recommendationCount"`
	RejectedCount       int        `json:"rejectedCount"`
	RowCount            int        `json:"rowCount"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	StyleErrorMessage   string     `json:"styleErrorMessage,omitempty"`
	StartedAt           time.Time  `json:"startedAt"`
	FinishedAt          *time.Time `json:"finishedAt,omitempty"`
}
