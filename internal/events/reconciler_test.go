package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartyap-backend/internal/runs"
)

func finishedEvent(runID, status string) RunFinished {
	return RunFinished{
		RunID:               runID,
		SessionID:           "sess-1",
		Status:              status,
		RecommendationCount: 3,
		DetectedStyle:       "line",
		StyleFailed:         true,
		FinishedAt:          "2026-05-01T09:30:00Z",
		Version:             Version,
	}
}

func TestReconcilerFinishesRunningRun(t *testing.T) {
	repo := runs.NewMemoryRepo()
	ctx := context.Background()
	started := time.Date(2026, 5, 1, 9, 29, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, runs.Run{ID: "run-1", SessionID: "sess-1", Status: runs.StatusRunning, StartedAt: started}))

	outcome, err := Reconciler{Runs: repo}.Handle(ctx, finishedEvent("run-1", "populated"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, outcome)

	run, err := repo.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, runs.StatusPopulated, run.Status)
	assert.Equal(t, 3, run.RecommendationCount)
	assert.Equal(t, started, run.StartedAt)
	assert.NotEmpty(t, run.StyleErrorMessage)
	require.NotNil(t, run.FinishedAt)
}

func TestReconcilerIsIdempotent(t *testing.T) {
	repo := runs.NewMemoryRepo()
	r := Reconciler{Runs: repo}
	ctx := context.Background()

	outcome, err := r.Handle(ctx, finishedEvent("run-2", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = r.Handle(ctx, finishedEvent("run-2", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	run, err := repo.GetByID(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, runs.StatusFailed, run.Status)
	assert.Equal(t, "data analysis failed", run.ErrorMessage)
}

func TestReconcilerRejectsBadEvents(t *testing.T) {
	r := Reconciler{Runs: runs.NewMemoryRepo()}
	_, err := r.Handle(context.Background(), finishedEvent("", "populated"))
	assert.Error(t, err)
	_, err = r.Handle(context.Background(), finishedEvent("run-3", "running"))
	assert.Error(t, err)
	evt := finishedEvent("run-3", "populated")
	evt.FinishedAt = "yesterday"
	_, err = r.Handle(context.Background(), evt)
	assert.Error(t, err)
}
