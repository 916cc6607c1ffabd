package orchestrator

import "errors"

var (
	// ErrAlreadyRunning is returned when a generation is already in flight.
	ErrAlreadyRunning = errors.New("generation already running")
	// ErrDataNotReady is returned when no data file is staged.
	ErrDataNotReady = errors.New("data file not staged")
)

// FailureNotice is the user-facing message after a failed data analysis.
const FailureNotice = "Error analyzing data. Ensure backend is running."
