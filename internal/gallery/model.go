package gallery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
)

// NotAvailable is shown in the field summary when a channel is unbound.
const NotAvailable = "N/A"

// Source exposes the current recommendation list. ok is false until a run has populated it.
type Source interface {
	Current() (result recommendations.AnalysisResult, ok bool)
}

// Format is a raster export format.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ParseFormat accepts png or svg; empty means png.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatSVG:
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Engine paints a built chart spec.
type Engine interface {
	Render(ctx context.Context, chart chartspec.ChartSpec, format Format, w io.Writer) error
}

// Card is one compact gallery entry. Chart is nil when building this card failed.
type Card struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Chart       *chartspec.ChartSpec `json:"chart,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// FieldSummary names the primary category and value columns of a chart.
type FieldSummary struct {
	X     string `json:"x"`
	Y     string `json:"y"`
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

// Overlay is the expanded presentation of a single recommendation.
type Overlay struct {
	Recommendation recommendations.Recommendation `json:"recommendation"`
	Chart          chartspec.ChartSpec            `json:"chart"`
	Fields         FieldSummary                   `json:"fields"`
}

// SummarizeFields extracts x (or category) and y (or theta) field names, falling
// back to NotAvailable. Color and size are reported when bound.
func SummarizeFields(enc recommendations.Encoding) FieldSummary {
	return FieldSummary{
		X:     firstField(enc, recommendations.ChannelX, recommendations.ChannelCategory),
		Y:     firstField(enc, recommendations.ChannelY, recommendations.ChannelTheta),
		Color: enc[recommendations.ChannelColor].Field(),
		Size:  enc[recommendations.ChannelSize].Field(),
	}
}

func firstField(enc recommendations.Encoding, channels ...recommendations.Channel) string {
	for _, ch := range channels {
		if f := enc[ch].Field(); f != "" {
			return f
		}
	}
	return NotAvailable
}
