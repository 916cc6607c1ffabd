package health

import (
	"context"
	"time"

	"chartyap-backend/internal/analysis"
)

const analysisProbeTimeout = 3 * time.Second

// Service encapsulates health-related checks.
type Service struct {
	analysis analysis.HealthChecker
}

// NewService constructs a new health service. checker may be nil.
func NewService(checker analysis.HealthChecker) *Service {
	return &Service{analysis: checker}
}

// Status returns a simple liveness payload.
func (s *Service) Status() map[string]bool {
	return map[string]bool{"ok": true}
}

// AnalysisStatus probes the analysis service.
func (s *Service) AnalysisStatus(ctx context.Context) (map[string]any, bool) {
	if s.analysis == nil {
		return map[string]any{"ok": false, "error": "analysis service not configured"}, false
	}
	ctx, cancel := context.WithTimeout(ctx, analysisProbeTimeout)
	defer cancel()
	if err := s.analysis.Health(ctx); err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, false
	}
	return map[string]any{"ok": true}, true
}
