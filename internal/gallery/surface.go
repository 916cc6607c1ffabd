package gallery

import (
	"context"
	"fmt"
	"io"
	"sync"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
	"chartyap-backend/internal/shared/metrics"
	"chartyap-backend/internal/shared/telemetry"
)

// Surface presents the current recommendations as compact cards and at most one
// expanded overlay. It owns only the expanded reference, never the data.
type Surface struct {
	source   Source
	engine   Engine
	onChange func()

	mu       sync.RWMutex
	expanded string
	isOpen   bool
}

// NewSurface creates a surface reading from source. engine may be nil when raster
// export is not needed; onChange, when set, runs after every expand or collapse.
func NewSurface(source Source, engine Engine, onChange func()) *Surface {
	return &Surface{source: source, engine: engine, onChange: onChange}
}

// Expand makes id the single expanded recommendation, replacing any previous one.
func (s *Surface) Expand(id string) error {
	if _, ok := s.find(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.mu.Lock()
	s.expanded, s.isOpen = id, true
	s.mu.Unlock()
	s.changed()
	return nil
}

// Collapse clears the expanded reference. Collapsing nothing is a no-op.
func (s *Surface) Collapse() {
	s.mu.Lock()
	wasOpen := s.isOpen
	s.expanded, s.isOpen = "", false
	s.mu.Unlock()
	if wasOpen {
		s.changed()
	}
}

// ExpandedID returns the expanded reference, if any.
func (s *Surface) ExpandedID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded, s.isOpen
}

// Expanded builds the overlay for the expanded reference. A reference that no
// longer resolves in the current list yields false.
func (s *Surface) Expanded() (Overlay, bool) {
	id, open := s.ExpandedID()
	if !open {
		return Overlay{}, false
	}
	result, ok := s.source.Current()
	if !ok {
		return Overlay{}, false
	}
	rec, ok := result.Find(id)
	if !ok {
		return Overlay{}, false
	}
	return Overlay{
		Recommendation: rec,
		Chart:          chartspec.Build(rec, result.PreviewRows, chartspec.Expanded),
		Fields:         SummarizeFields(rec.Encoding),
	}, true
}

// Cards builds a compact card for every recommendation. A card that fails to
// build carries its error and does not affect the others.
func (s *Surface) Cards() []Card {
	result, ok := s.source.Current()
	if !ok {
		return []Card{}
	}
	cards := make([]Card, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		card := Card{ID: rec.ID, Title: rec.Title, Description: rec.Description}
		chart, err := safeBuild(rec, result.PreviewRows, chartspec.Compact)
		if err != nil {
			metrics.IncCardRenderFailed()
			telemetry.Warn("gallery.card_failed", map[string]any{"recommendation_id": rec.ID, "error": err})
			card.Error = err.Error()
		} else {
			card.Chart = &chart
		}
		cards = append(cards, card)
	}
	return cards
}

// RenderCard paints one recommendation through the engine. Engine failures and
// panics are confined to this card.
func (s *Surface) RenderCard(ctx context.Context, id string, mode chartspec.Mode, format Format, w io.Writer) (err error) {
	if s.engine == nil {
		return fmt.Errorf("%w: no rendering engine configured", ErrRenderFailed)
	}
	result, ok := s.source.Current()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, ok := result.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrRenderFailed, r)
		}
		if err != nil {
			metrics.IncCardRenderFailed()
			telemetry.Warn("gallery.render_failed", map[string]any{
				"recommendation_id": id,
				"mode":              string(mode),
				"format":            string(format),
				"error":             err,
			})
		}
	}()

	chart := chartspec.Build(rec, result.PreviewRows, mode)
	return s.engine.Render(ctx, chart, format, w)
}

func (s *Surface) find(id string) (recommendations.Recommendation, bool) {
	result, ok := s.source.Current()
	if !ok {
		return recommendations.Recommendation{}, false
	}
	return result.Find(id)
}

func (s *Surface) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func safeBuild(rec recommendations.Recommendation, rows []recommendations.Row, mode chartspec.Mode) (chart chartspec.ChartSpec, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderFailed, r)
		}
	}()
	return chartspec.Build(rec, rows, mode), nil
}
