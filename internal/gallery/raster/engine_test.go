package raster

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/gallery"
	"chartyap-backend/internal/recommendations"
)

var salesRows = []recommendations.Row{
	{"region": "North", "revenue": 120.0, "month": "2024-01-01"},
	{"region": "South", "revenue": 80.0, "month": "2024-02-01"},
	{"region": "West", "revenue": 45.5, "month": "2024-03-01"},
	{"region": "North", "revenue": 30.0, "month": "2024-04-01"},
}

func buildSpec(t *testing.T, rec recommendations.Recommendation, mode chartspec.Mode) chartspec.ChartSpec {
	t.Helper()
	return chartspec.Build(rec, salesRows, mode)
}

func barRec() recommendations.Recommendation {
	return recommendations.Recommendation{
		ID:       "r1",
		Title:    "Revenue by region",
		MarkType: recommendations.MarkBar,
		Encoding: recommendations.Encoding{
			recommendations.ChannelX: {"field": "region", "type": "nominal"},
			recommendations.ChannelY: {"field": "revenue", "aggregate": "sum", "type": "quantitative"},
		},
	}
}

func TestRenderBarPNG(t *testing.T) {
	var buf bytes.Buffer
	err := New().Render(context.Background(), buildSpec(t, barRec(), chartspec.Compact), gallery.FormatPNG, &buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestRenderBarSVGExpanded(t *testing.T) {
	var buf bytes.Buffer
	err := New().Render(context.Background(), buildSpec(t, barRec(), chartspec.Expanded), gallery.FormatSVG, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<svg")
}

func TestRenderPie(t *testing.T) {
	rec := recommendations.Recommendation{
		ID:       "donut",
		MarkType: recommendations.MarkArc,
		Encoding: recommendations.Encoding{
			recommendations.ChannelTheta: {"field": "revenue", "aggregate": "sum"},
			recommendations.ChannelColor: {"field": "region"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, New().Render(context.Background(), buildSpec(t, rec, chartspec.Compact), gallery.FormatPNG, &buf))
	assert.NotZero(t, buf.Len())
}

func TestRenderTemporalLine(t *testing.T) {
	rec := recommendations.Recommendation{
		ID:       "trend",
		MarkType: recommendations.MarkLine,
		Encoding: recommendations.Encoding{
			recommendations.ChannelX: {"field": "month", "type": "temporal"},
			recommendations.ChannelY: {"field": "revenue", "type": "quantitative"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, New().Render(context.Background(), buildSpec(t, rec, chartspec.Compact), gallery.FormatSVG, &buf))
	assert.Contains(t, buf.String(), "<svg")
}

func TestRenderRefusals(t *testing.T) {
	boxplot := barRec()
	boxplot.MarkType = recommendations.MarkBoxplot

	transformed := barRec()
	transformed.Transform = recommendations.Transform{{"filter": "datum.revenue > 50"}}

	binned := barRec()
	binned.Encoding = recommendations.Encoding{
		recommendations.ChannelX: {"field": "revenue", "bin": true},
		recommendations.ChannelY: {"aggregate": "count"},
	}

	tests := []struct {
		name string
		rec  recommendations.Recommendation
		want error
	}{
		{name: "unsupported mark", rec: boxplot, want: ErrUnsupportedMark},
		{name: "transform", rec: transformed, want: ErrUnsupportedEncoding},
		{name: "bin", rec: binned, want: ErrUnsupportedEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := New().Render(context.Background(), buildSpec(t, tt.rec, chartspec.Compact), gallery.FormatPNG, &buf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Zero(t, buf.Len())
		})
	}
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().Render(ctx, buildSpec(t, barRec(), chartspec.Compact), gallery.FormatPNG, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBarGroupingAndSort(t *testing.T) {
	category, value, err := splitCategoryValue(barRec().Encoding)
	require.NoError(t, err)
	assert.Equal(t, "region", category.field())
	assert.Equal(t, "revenue", value.field())

	groups := groupRows(salesRows, category.field(), value)
	require.Len(t, groups, 3)
	for _, g := range groups {
		g.total, _ = aggregate("sum", g.values, g.rows)
	}
	assert.Equal(t, "North", groups[0].label)
	assert.Equal(t, 150.0, groups[0].total)

	category.def = recommendations.FieldDef{"field": "region", "sort": "-y"}
	sortGroups(groups, category, value)
	assert.Equal(t, []string{"North", "South", "West"}, labels(groups))

	category.def = recommendations.FieldDef{"field": "region", "sort": "y"}
	sortGroups(groups, category, value)
	assert.Equal(t, []string{"West", "South", "North"}, labels(groups))
}

func TestSplitCategoryValueHorizontal(t *testing.T) {
	category, value, err := splitCategoryValue(recommendations.Encoding{
		recommendations.ChannelX: {"field": "revenue", "type": "quantitative"},
		recommendations.ChannelY: {"field": "region", "type": "nominal"},
	})
	require.NoError(t, err)
	assert.Equal(t, "region", category.field())
	assert.Equal(t, "revenue", value.field())
}

func TestAggregate(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	tests := []struct {
		op   string
		want float64
	}{
		{op: "", want: 10},
		{op: "sum", want: 10},
		{op: "count", want: 4},
		{op: "mean", want: 2.5},
		{op: "min", want: 1},
		{op: "max", want: 4},
		{op: "median", want: 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, ok := aggregate(tt.op, values, len(values))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	_, ok := aggregate("variance", values, len(values))
	assert.False(t, ok)
}

func TestCollectSeriesSplitsByColor(t *testing.T) {
	x := binding{recommendations.ChannelX, recommendations.FieldDef{"field": "month"}}
	y := binding{recommendations.ChannelY, recommendations.FieldDef{"field": "revenue"}}
	series, err := collectSeries(salesRows, x, y, axisNominal, "region")
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "North", series[0].name)
	assert.Len(t, series[0].points, 2)
}

func TestClassifyX(t *testing.T) {
	assert.Equal(t, axisTemporal, classifyX(salesRows, binding{def: recommendations.FieldDef{"field": "month"}}))
	assert.Equal(t, axisQuantitative, classifyX(salesRows, binding{def: recommendations.FieldDef{"field": "revenue"}}))
	assert.Equal(t, axisNominal, classifyX(salesRows, binding{def: recommendations.FieldDef{"field": "region"}}))
}

func labels(groups []*group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.label)
	}
	return out
}
