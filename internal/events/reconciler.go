package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chartyap-backend/internal/runs"
)

// Reconciler applies RunFinished events to a run ledger. It repairs runs whose
// terminal state never reached the ledger and ignores events for runs that
// already finished, so redelivery is harmless.
type Reconciler struct {
	Runs runs.Repo
}

// Outcome reports what Handle did with an event.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFinished  Outcome = "finished"
	OutcomeCreated   Outcome = "created"
)

// Handle reconciles one event.
func (r Reconciler) Handle(ctx context.Context, evt RunFinished) (Outcome, error) {
	if evt.RunID == "" {
		return "", errors.New("event has no run id")
	}
	status := runs.Status(evt.Status)
	if status != runs.StatusPopulated && status != runs.StatusFailed {
		return "", fmt.Errorf("event has non-terminal status %q", evt.Status)
	}
	finished, err := time.Parse(time.RFC3339, evt.FinishedAt)
	if err != nil {
		return "", fmt.Errorf("parse finishedAt: %w", err)
	}

	existing, err := r.Runs.GetByID(ctx, evt.RunID)
	switch {
	case errors.Is(err, runs.ErrNotFound):
		run := runs.Run{
			ID:        evt.RunID,
			SessionID: evt.SessionID,
			Status:    runs.StatusRunning,
			StartedAt: finished,
		}
		if err := r.Runs.Create(ctx, run); err != nil {
			return "", fmt.Errorf("create run: %w", err)
		}
		if err := r.Runs.Finish(ctx, apply(run, evt, status, finished)); err != nil {
			return "", fmt.Errorf("finish run: %w", err)
		}
		return OutcomeCreated, nil
	case err != nil:
		return "", fmt.Errorf("load run: %w", err)
	}

	if existing.Status != runs.StatusRunning {
		return OutcomeUnchanged, nil
	}
	if err := r.Runs.Finish(ctx, apply(existing, evt, status, finished)); err != nil {
		return "", fmt.Errorf("finish run: %w", err)
	}
	return OutcomeFinished, nil
}

func apply(run runs.Run, evt RunFinished, status runs.Status, finished time.Time) runs.Run {
	run.Status = status
	run.RecommendationCount = evt.RecommendationCount
	run.DetectedStyle = evt.DetectedStyle
	if evt.StyleFailed && run.StyleErrorMessage == "" {
		run.StyleErrorMessage = "image analysis failed"
	}
	if status == runs.StatusFailed && run.ErrorMessage == "" {
		run.ErrorMessage = "data analysis failed"
	}
	run.FinishedAt = &finished
	return run
}
