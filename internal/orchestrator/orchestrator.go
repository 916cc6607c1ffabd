// Package orchestrator sequences the two remote analyses of a generation run
// and owns the resulting recommendation list.
//
// States: Idle -> Running -> Populated, or back to Idle with a failure notice.
// At most one run is in flight; entering Running clears the previous result.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/events"
	"chartyap-backend/internal/recommendations"
	"chartyap-backend/internal/runs"
	"chartyap-backend/internal/shared/metrics"
	"chartyap-backend/internal/shared/telemetry"
	"chartyap-backend/internal/staging"
)

// Status of the orchestrator.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPopulated Status = "populated"
)

// Staging is the part of the staging store a run reads from.
type Staging interface {
	Ready(slot staging.Slot) bool
	Open(ctx context.Context, slot staging.Slot) (staging.StagedFile, io.ReadCloser, error)
}

// Options wires optional collaborators.
type Options struct {
	SessionID string
	Runs      runs.Repo
	Events    events.Publisher
	// OnRunStart runs when a run enters Running, before OnChange.
	OnRunStart func()
	// OnChange runs after every state change, outside the orchestrator's lock.
	OnChange func()
	Now      func() time.Time
}

// Snapshot is a copy of the orchestrator state.
type Snapshot struct {
	Status        Status
	RunID         string
	Result        recommendations.AnalysisResult
	Populated     bool
	DetectedStyle recommendations.DetectedStyle
	Notice        string
	CanGenerate   bool
}

// Running reports whether a run is in flight.
func (s Snapshot) Running() bool { return s.Status == StatusRunning }

// Orchestrator drives generation runs for one session.
type Orchestrator struct {
	client  analysis.Client
	staging Staging
	opts    Options

	mu     sync.Mutex
	status Status
	runID  string
	result *recommendations.AnalysisResult
	style  recommendations.DetectedStyle
	notice string
	done   chan struct{}
}

// New constructs an idle orchestrator with the default style hint.
func New(client analysis.Client, st Staging, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		client:  client,
		staging: st,
		opts:    opts,
		status:  StatusIdle,
		style:   recommendations.DefaultStyle,
	}
}

// Start begins a run in the background and returns its ID. It fails with
// ErrAlreadyRunning or ErrDataNotReady without side effects.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	rs, err := o.begin()
	if err != nil {
		return "", err
	}
	go func() {
		_ = o.run(context.WithoutCancel(ctx), rs)
	}()
	return rs.run.ID, nil
}

// Generate runs to completion in the caller's goroutine. The returned error is
// the data-analysis failure, if any; image-analysis failures never surface here.
func (o *Orchestrator) Generate(ctx context.Context) (Snapshot, error) {
	rs, err := o.begin()
	if err != nil {
		return o.Snapshot(), err
	}
	err = o.run(ctx, rs)
	return o.Snapshot(), err
}

// Wait blocks until no run is in flight or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot copies the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snap := Snapshot{
		Status:        o.status,
		RunID:         o.runID,
		DetectedStyle: o.style,
		Notice:        o.notice,
	}
	if o.result != nil {
		snap.Result = *o.result
		snap.Populated = true
	}
	running := o.status == StatusRunning
	o.mu.Unlock()
	snap.CanGenerate = !running && o.staging.Ready(staging.SlotData)
	return snap
}

// Current returns the populated result. It satisfies gallery.Source.
func (o *Orchestrator) Current() (recommendations.AnalysisResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return recommendations.AnalysisResult{}, false
	}
	return *o.result, true
}

type runState struct {
	run   runs.Run
	done  chan struct{}
	start time.Time
}

func (o *Orchestrator) begin() (*runState, error) {
	o.mu.Lock()
	if o.status == StatusRunning {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if !o.staging.Ready(staging.SlotData) {
		o.mu.Unlock()
		return nil, ErrDataNotReady
	}
	rs := &runState{
		run: runs.Run{
			ID:        uuid.NewString(),
			SessionID: o.opts.SessionID,
			Status:    runs.StatusRunning,
			StartedAt: o.opts.Now(),
		},
		done:  make(chan struct{}),
		start: time.Now(),
	}
	o.status = StatusRunning
	o.runID = rs.run.ID
	o.result = nil
	o.notice = ""
	o.done = rs.done
	o.mu.Unlock()

	metrics.IncGenerateStarted()
	if o.opts.OnRunStart != nil {
		o.opts.OnRunStart()
	}
	o.changed()
	return rs, nil
}

func (o *Orchestrator) run(ctx context.Context, rs *runState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generate panicked: %v", r)
			o.fail(ctx, rs, err)
		}
	}()

	dataUpload, dataFile, readErr := o.read(ctx, staging.SlotData)
	var styleUpload *analysis.Upload
	if readErr == nil {
		rs.run.DataFileName = dataFile.FileName
		if o.staging.Ready(staging.SlotStyle) {
			up, styleFile, err := o.read(ctx, staging.SlotStyle)
			if err != nil {
				telemetry.Warn("generate.style_unreadable", o.fields(rs, map[string]any{"error": err}))
			} else {
				styleUpload = &up
				rs.run.StyleFileName = styleFile.FileName
			}
		}
	}

	if o.opts.Runs != nil {
		if err := o.opts.Runs.Create(ctx, rs.run); err != nil {
			telemetry.Error("runs.create_failed", o.fields(rs, map[string]any{"error": err}))
		}
	}
	if readErr != nil {
		o.fail(ctx, rs, readErr)
		return readErr
	}
	telemetry.Info("generate.started", o.fields(rs, map[string]any{
		"data_file":  rs.run.DataFileName,
		"style_file": rs.run.StyleFileName,
	}))

	data, err := o.client.AnalyzeData(ctx, dataUpload)
	if err != nil {
		o.fail(ctx, rs, err)
		return err
	}
	if n := len(data.Rejected); n > 0 {
		metrics.AddRecommendationsRejected(n)
		telemetry.Warn("generate.recommendations_rejected", o.fields(rs, map[string]any{
			"count": n,
			"first": data.Rejected[0].Reason,
		}))
	}

	o.mu.Lock()
	style := o.style
	o.mu.Unlock()
	if styleUpload != nil {
		img, err := o.client.AnalyzeImage(ctx, *styleUpload)
		switch {
		case err != nil:
			metrics.IncImageAnalysisFailed()
			rs.run.StyleErrorMessage = err.Error()
			telemetry.Warn("generate.image_failed", o.fields(rs, map[string]any{"error": err}))
		case img.Style != "":
			style = img.Style
		}
	}

	o.populate(ctx, rs, data, style)
	return nil
}

func (o *Orchestrator) read(ctx context.Context, slot staging.Slot) (analysis.Upload, staging.StagedFile, error) {
	f, rc, err := o.staging.Open(ctx, slot)
	if err != nil {
		return analysis.Upload{}, staging.StagedFile{}, err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return analysis.Upload{}, staging.StagedFile{}, fmt.Errorf("read staged %s: %w", slot, err)
	}
	return analysis.Upload{FileName: f.FileName, Content: content}, f, nil
}

func (o *Orchestrator) populate(ctx context.Context, rs *runState, data analysis.DataResult, style recommendations.DetectedStyle) {
	result := data.Result
	o.mu.Lock()
	o.result = &result
	o.style = style
	o.status = StatusPopulated
	o.done = nil
	o.mu.Unlock()
	close(rs.done)

	duration := metrics.SinceMillis(rs.start)
	metrics.IncGeneratePopulated()
	metrics.ObserveGenerateDurationMs(duration)
	telemetry.Info("generate.populated", o.fields(rs, map[string]any{
		"recommendations": len(result.Recommendations),
		"rows":            result.RowCount,
		"detected_style":  string(style),
		"duration_ms":     duration,
	}))

	finished := o.opts.Now()
	rs.run.Status = runs.StatusPopulated
	rs.run.DetectedStyle = string(style)
	rs.run.RecommendationCount = len(result.Recommendations)
	rs.run.RejectedCount = len(data.Rejected)
	rs.run.RowCount = result.RowCount
	rs.run.FinishedAt = &finished
	o.record(ctx, rs)
	o.changed()
}

func (o *Orchestrator) fail(ctx context.Context, rs *runState, cause error) {
	o.mu.Lock()
	if o.done != rs.done {
		o.mu.Unlock()
		return
	}
	o.result = nil
	o.status = StatusIdle
	o.notice = FailureNotice
	o.done = nil
	o.mu.Unlock()
	close(rs.done)

	duration := metrics.SinceMillis(rs.start)
	metrics.IncGenerateFailed()
	metrics.ObserveGenerateDurationMs(duration)
	telemetry.Error("generate.failed", o.fields(rs, map[string]any{
		"error":       cause,
		"duration_ms": duration,
	}))

	finished := o.opts.Now()
	rs.run.Status = runs.StatusFailed
	rs.run.ErrorMessage = cause.Error()
	rs.run.FinishedAt = &finished
	o.record(ctx, rs)
	o.changed()
}

func (o *Orchestrator) record(ctx context.Context, rs *runState) {
	ctx = context.WithoutCancel(ctx)
	if o.opts.Runs != nil {
		if err := o.opts.Runs.Finish(ctx, rs.run); err != nil {
			telemetry.Error("runs.finish_failed", o.fields(rs, map[string]any{"error": err}))
		}
	}
	if o.opts.Events != nil {
		if err := o.opts.Events.Publish(ctx, events.FromRun(rs.run)); err != nil {
			telemetry.Warn("events.publish_failed", o.fields(rs, map[string]any{"error": err}))
		}
	}
}

func (o *Orchestrator) fields(rs *runState, extra map[string]any) map[string]any {
	fields := map[string]any{
		"session_id": o.opts.SessionID,
		"run_id":     rs.run.ID,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func (o *Orchestrator) changed() {
	if o.opts.OnChange != nil {
		o.opts.OnChange()
	}
}
