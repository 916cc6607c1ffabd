package raster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wcharczuk/go-chart/v2"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
)

type binding struct {
	channel recommendations.Channel
	def     recommendations.FieldDef
}

func (b binding) field() string { return b.def.Field() }

func (b binding) aggregate() string {
	op, _ := b.def["aggregate"].(string)
	return op
}

func (b binding) typ() string {
	t, _ := b.def["type"].(string)
	return t
}

func (b binding) binned() bool {
	switch v := b.def["bin"].(type) {
	case bool:
		return v
	case map[string]any:
		return true
	}
	return false
}

type group struct {
	label  string
	values []float64
	rows   int
	total  float64
}

// groupRows buckets rows by the category field in first-appearance order.
func groupRows(rows []recommendations.Row, category string, value binding) []*group {
	index := map[string]*group{}
	var order []*group
	valueField := value.field()
	for _, row := range rows {
		key := label(row[category])
		g, ok := index[key]
		if !ok {
			g = &group{label: key}
			index[key] = g
			order = append(order, g)
		}
		g.rows++
		if valueField != "" {
			if v, ok := toFloat(row[valueField]); ok {
				g.values = append(g.values, v)
			}
		}
	}
	return order
}

// splitCategoryValue picks the nominal channel and the measured channel of a bar.
func splitCategoryValue(enc recommendations.Encoding) (binding, binding, error) {
	x := binding{recommendations.ChannelX, enc[recommendations.ChannelX]}
	y := binding{recommendations.ChannelY, enc[recommendations.ChannelY]}
	if x.def == nil || y.def == nil {
		return binding{}, binding{}, fmt.Errorf("%w: bar needs both x and y", ErrUnsupportedEncoding)
	}
	if x.binned() || y.binned() {
		return binding{}, binding{}, fmt.Errorf("%w: binned axes", ErrUnsupportedEncoding)
	}

	category, value := x, y
	switch {
	case y.aggregate() != "":
	case x.aggregate() != "":
		category, value = y, x
	case x.typ() == "quantitative" && y.typ() != "quantitative":
		category, value = y, x
	}
	if category.field() == "" {
		return binding{}, binding{}, fmt.Errorf("%w: bar category has no field", ErrUnsupportedEncoding)
	}
	if value.field() == "" && value.aggregate() != "count" {
		return binding{}, binding{}, fmt.Errorf("%w: bar value has no field", ErrUnsupportedEncoding)
	}
	return category, value, nil
}

func sortGroups(groups []*group, category, value binding) {
	raw, present := category.def["sort"]
	if !present {
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
		return
	}
	order, _ := raw.(string)
	switch {
	case order == "-"+string(value.channel) || order == "descending":
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].total > groups[j].total })
	case order == string(value.channel):
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].total < groups[j].total })
	case strings.EqualFold(order, "ascending"):
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
	}
	// null or any other sort keeps data order
}

func barChart(spec chartspec.Spec, f frame) (renderable, error) {
	category, value, err := splitCategoryValue(spec.Encoding)
	if err != nil {
		return nil, err
	}
	op := value.aggregate()

	groups := groupRows(spec.Data.Values, category.field(), value)
	for _, g := range groups {
		total, ok := aggregate(op, g.values, g.rows)
		if !ok {
			return nil, fmt.Errorf("%w: aggregate %q", ErrUnsupportedEncoding, op)
		}
		g.total = total
	}
	if len(groups) == 0 {
		return nil, ErrNoData
	}
	sortGroups(groups, category, value)

	bars := make([]chart.Value, 0, len(groups))
	for _, g := range groups {
		bars = append(bars, chart.Value{
			Label: g.label,
			Value: g.total,
			Style: chart.Style{FillColor: colorAt(0), StrokeColor: colorAt(0)},
		})
	}

	slot := (f.width - 80) / len(bars)
	if slot < 2 {
		slot = 2
	}
	barWidth := slot * 6 / 10
	if barWidth < 1 {
		barWidth = 1
	}

	return chart.BarChart{
		Title:      f.title,
		Width:      f.width,
		Height:     f.height,
		Background: background(),
		BarWidth:   barWidth,
		BarSpacing: slot - barWidth,
		Bars:       bars,
		YAxis: chart.YAxis{
			GridMajorStyle: gridStyle(),
		},
	}, nil
}
