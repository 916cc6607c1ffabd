package raster

import (
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
)

// pieChart paints an arc mark: theta measures, color splits slices.
// Donut radii from the mark override are ignored; the slices stay the same.
func pieChart(spec chartspec.Spec, f frame) (renderable, error) {
	theta := binding{recommendations.ChannelTheta, spec.Encoding[recommendations.ChannelTheta]}
	if theta.def == nil {
		return nil, fmt.Errorf("%w: arc needs a theta channel", ErrUnsupportedEncoding)
	}
	if theta.field() == "" && theta.aggregate() != "count" {
		return nil, fmt.Errorf("%w: theta has no field", ErrUnsupportedEncoding)
	}

	category := spec.Encoding[recommendations.ChannelColor].Field()
	var groups []*group
	if category == "" {
		g := &group{label: f.title}
		for _, row := range spec.Data.Values {
			g.rows++
			if v, ok := toFloat(row[theta.field()]); ok {
				g.values = append(g.values, v)
			}
		}
		groups = []*group{g}
	} else {
		groups = groupRows(spec.Data.Values, category, theta)
	}

	op := theta.aggregate()
	values := make([]chart.Value, 0, len(groups))
	for i, g := range groups {
		total, ok := aggregate(op, g.values, g.rows)
		if !ok {
			return nil, fmt.Errorf("%w: aggregate %q", ErrUnsupportedEncoding, op)
		}
		if total <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: g.label,
			Value: total,
			Style: chart.Style{FillColor: colorAt(i), StrokeColor: chart.ColorWhite, StrokeWidth: 1},
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	return chart.PieChart{
		Title:      f.title,
		Width:      f.width,
		Height:     f.height,
		Background: background(),
		Values:     values,
	}, nil
}
