package runs

import "context"

// Repo persists generation runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	// Finish stores the terminal state of a run previously created.
	Finish(ctx context.Context, run Run) error
	GetByID(ctx context.Context, runID string) (Run, error)
	// ListBySession returns a session's runs, newest first.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Run, error)
}
