package events

import (
	"encoding/json"
	"fmt"
	"time"

	"chartyap-backend/internal/runs"
)

// Version of the RunFinished payload.
const Version = 1

// RunFinished is emitted once per generation run when it leaves the running state.
type RunFinished struct {
	RunID               string `json:"runId"`
	SessionID           string `json:"sessionId"`
	Status              string `json:"status"`
	RecommendationCount int    `json:"recommendationCount"`
	DetectedStyle       string `json:"detectedStyle,omitempty"`
	StyleFailed         bool   `json:"styleFailed"`
	FinishedAt          string `json:"finishedAt"`
	Version             int    `json:"version"`
}

// FromRun builds the event for a finished run.
func FromRun(run runs.Run) RunFinished {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	return RunFinished{
		RunID:               run.ID,
		SessionID:           run.SessionID,
		Status:              string(run.Status),
		RecommendationCount: run.RecommendationCount,
		DetectedStyle:       run.DetectedStyle,
		StyleFailed:         run.StyleErrorMessage != "",
		FinishedAt:          finished.Format(time.RFC3339),
		Version:             Version,
	}
}

// Encode returns the JSON representation of an event.
func Encode(evt RunFinished) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode parses a JSON payload into a RunFinished.
func Decode(payload []byte) (RunFinished, error) {
	var evt RunFinished
	if err := json.Unmarshal(payload, &evt); err != nil {
		return RunFinished{}, err
	}
	if evt.Version != Version {
		return RunFinished{}, fmt.Errorf("unsupported event version %d", evt.Version)
	}
	return evt, nil
}
