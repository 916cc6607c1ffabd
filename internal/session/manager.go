// Package session wires one staging store, orchestrator and renderer surface
// per browser session and expires idle sessions.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/events"
	"chartyap-backend/internal/gallery"
	"chartyap-backend/internal/orchestrator"
	"chartyap-backend/internal/runs"
	"chartyap-backend/internal/shared/notifier"
	"chartyap-backend/internal/shared/storage/object"
	"chartyap-backend/internal/shared/telemetry"
	"chartyap-backend/internal/staging"
)

const defaultIdleTTL = 2 * time.Hour

// Deps are the shared collaborators every session is built from.
type Deps struct {
	Objects             object.ObjectStore
	Analysis            analysis.Client
	Engine              gallery.Engine
	Runs                runs.Repo
	Events              events.Publisher
	PreviewMaxDimension int
	PreviewMaxPixels    int
}

// Session is the per-session component set. Changes to any component ping Changes.
type Session struct {
	ID           string
	Staging      *staging.Store
	Orchestrator *orchestrator.Orchestrator
	Surface      *gallery.Surface
	Changes      *notifier.Notifier

	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen reports the last time the session was used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load()).UTC()
}

// Manager creates sessions lazily and resets the idle ones.
type Manager struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu            sync.Mutex
	sessions      map[string]*Session
	streamsClosed bool
}

// NewManager constructs a Manager. ttl <= 0 uses two hours.
func NewManager(deps Deps, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &Manager{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = m.build(id)
		if m.streamsClosed {
			s.Changes.Close()
		}
		m.sessions[id] = s
		telemetry.Info("session.created", map[string]any{"session_id": id})
	}
	s.touch(m.now())
	return s
}

// Lookup returns an existing session without creating or touching it.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep resets and forgets sessions idle longer than the TTL. Sessions with a
// run in flight are kept. It returns the number of sessions removed.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.ttl)
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().After(cutoff) || s.Orchestrator.Snapshot().Running() {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := release(ctx, s); err != nil {
			telemetry.Error("session.release_failed", map[string]any{"session_id": s.ID, "error": err})
			continue
		}
		telemetry.Info("session.expired", map[string]any{"session_id": s.ID})
	}
	return len(expired)
}

// Run sweeps every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// CloseStreams ends every open change stream, and the streams of sessions
// created afterwards, without touching session state. Register it with
// http.Server.RegisterOnShutdown so Shutdown is not held open by SSE clients.
func (m *Manager) CloseStreams() {
	m.mu.Lock()
	m.streamsClosed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Changes.Close()
	}
}

// Close waits for in-flight runs and releases every session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Orchestrator.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := release(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) build(id string) *Session {
	s := &Session{ID: id, Changes: notifier.New()}
	s.Staging = staging.New(m.deps.Objects, id, staging.Options{
		PreviewMaxDimension: m.deps.PreviewMaxDimension,
		PreviewMaxPixels:    m.deps.PreviewMaxPixels,
		OnChange:            s.Changes.Broadcast,
	})
	s.Orchestrator = orchestrator.New(m.deps.Analysis, s.Staging, orchestrator.Options{
		SessionID: id,
		Runs:      m.deps.Runs,
		Events:    m.deps.Events,
		OnRunStart: func() {
			s.Surface.Collapse()
		},
		OnChange: s.Changes.Broadcast,
	})
	s.Surface = gallery.NewSurface(s.Orchestrator, m.deps.Engine, s.Changes.Broadcast)
	return s
}

func release(ctx context.Context, s *Session) error {
	s.Surface.Collapse()
	err := s.Staging.Reset(ctx)
	s.Changes.Close()
	return err
}
