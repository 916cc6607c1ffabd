// Package raster paints chart specs to PNG or SVG with go-chart. It covers the
// common mark families; anything it cannot evaluate faithfully is refused with
// ErrUnsupportedMark or ErrUnsupportedEncoding rather than drawn wrong.
package raster

import (
	"context"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/gallery"
	"chartyap-backend/internal/recommendations"
)

const (
	defaultCompactWidth  = 640
	defaultExpandedWidth = 1024
)

// Vega's default categorical scheme.
var palette = []drawing.Color{
	drawing.ColorFromHex("4c78a8"),
	drawing.ColorFromHex("f58518"),
	drawing.ColorFromHex("e45756"),
	drawing.ColorFromHex("72b7b2"),
	drawing.ColorFromHex("54a24b"),
	drawing.ColorFromHex("eeca3b"),
	drawing.ColorFromHex("b279a2"),
	drawing.ColorFromHex("ff9da6"),
	drawing.ColorFromHex("9d755d"),
	drawing.ColorFromHex("bab0ac"),
}

var gridColor = drawing.ColorFromHex("eeeeee")

// Engine renders chart specs server-side.
type Engine struct {
	CompactWidth  int
	ExpandedWidth int
}

// New returns an engine with default canvas widths.
func New() *Engine {
	return &Engine{CompactWidth: defaultCompactWidth, ExpandedWidth: defaultExpandedWidth}
}

var _ gallery.Engine = (*Engine)(nil)

type renderable interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

type frame struct {
	title  string
	width  int
	height int
}

// Render paints cs in the requested format.
func (e *Engine) Render(ctx context.Context, cs chartspec.ChartSpec, format gallery.Format, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	spec := cs.Spec
	if len(spec.Transform) > 0 {
		return fmt.Errorf("%w: transform pipelines are evaluated by the browser engine only", ErrUnsupportedEncoding)
	}

	f := frame{width: e.CompactWidth, height: spec.Height}
	if spec.Height >= chartspec.ExpandedHeight {
		f.width = e.ExpandedWidth
	}
	if f.width <= 0 {
		f.width = defaultCompactWidth
	}
	if f.height <= 0 {
		f.height = chartspec.CompactHeight
	}
	if spec.Title != nil {
		f.title = spec.Title.Text
	}

	var (
		r   renderable
		err error
	)
	switch spec.Mark.Kind {
	case recommendations.MarkBar:
		r, err = barChart(spec, f)
	case recommendations.MarkArc:
		r, err = pieChart(spec, f)
	case recommendations.MarkLine, recommendations.MarkArea, recommendations.MarkTrail,
		recommendations.MarkPoint, recommendations.MarkCircle, recommendations.MarkSquare:
		r, err = xyChart(spec, f)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMark, spec.Mark.Kind)
	}
	if err != nil {
		return err
	}

	provider := chart.PNG
	if format == gallery.FormatSVG {
		provider = chart.SVG
	}
	if err := r.Render(provider, w); err != nil {
		return fmt.Errorf("render %s chart: %w", spec.Mark.Kind, err)
	}
	return nil
}

func colorAt(i int) drawing.Color {
	return palette[i%len(palette)]
}

func background() chart.Style {
	return chart.Style{
		FillColor: drawing.ColorWhite,
		Padding:   chart.Box{Top: 28, Left: 16, Right: 16, Bottom: 12},
	}
}

func gridStyle() chart.Style {
	return chart.Style{StrokeColor: gridColor, StrokeWidth: 1}
}
