package raster

import (
	"fmt"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
)

type axisKind int

const (
	axisQuantitative axisKind = iota
	axisTemporal
	axisNominal
)

type point struct {
	xNum  float64
	xTime time.Time
	xCat  string
	y     float64
}

type seriesData struct {
	name   string
	points []point
}

func classifyX(rows []recommendations.Row, x binding) axisKind {
	switch x.typ() {
	case "temporal":
		return axisTemporal
	case "nominal", "ordinal":
		return axisNominal
	}
	numeric, temporal := true, true
	seen := false
	for _, row := range rows {
		v, ok := row[x.field()]
		if !ok || v == nil {
			continue
		}
		seen = true
		if _, ok := toFloat(v); !ok {
			numeric = false
		}
		if _, ok := toTime(v); !ok {
			temporal = false
		}
		if !numeric && !temporal {
			break
		}
	}
	switch {
	case !seen || numeric:
		return axisQuantitative
	case temporal:
		return axisTemporal
	default:
		return axisNominal
	}
}

func xyChart(spec chartspec.Spec, f frame) (renderable, error) {
	x := binding{recommendations.ChannelX, spec.Encoding[recommendations.ChannelX]}
	y := binding{recommendations.ChannelY, spec.Encoding[recommendations.ChannelY]}
	if x.def == nil || y.def == nil || x.field() == "" {
		return nil, fmt.Errorf("%w: %s needs an x field and a y channel", ErrUnsupportedEncoding, spec.Mark.Kind)
	}
	if x.binned() || y.binned() || x.aggregate() != "" {
		return nil, fmt.Errorf("%w: binned or aggregated x", ErrUnsupportedEncoding)
	}
	if y.field() == "" && y.aggregate() != "count" {
		return nil, fmt.Errorf("%w: y has no field", ErrUnsupportedEncoding)
	}

	kind := classifyX(spec.Data.Values, x)
	colorField := spec.Encoding[recommendations.ChannelColor].Field()
	series, err := collectSeries(spec.Data.Values, x, y, kind, colorField)
	if err != nil {
		return nil, err
	}

	connected := spec.Mark.Kind == recommendations.MarkLine ||
		spec.Mark.Kind == recommendations.MarkArea ||
		spec.Mark.Kind == recommendations.MarkTrail
	if connected {
		for _, s := range series {
			sortPoints(s.points, kind)
		}
	}

	var categories []string
	if kind == axisNominal {
		categories = nominalOrder(series)
	}

	c := chart.Chart{
		Title:      f.title,
		Width:      f.width,
		Height:     f.height,
		Background: background(),
		XAxis:      chart.XAxis{Name: x.field()},
		YAxis:      chart.YAxis{Name: y.field(), GridMajorStyle: gridStyle()},
	}
	if kind == axisTemporal {
		c.XAxis.ValueFormatter = chart.TimeValueFormatterWithFormat("2006-01-02")
	}
	if kind == axisNominal {
		ticks := make([]chart.Tick, 0, len(categories))
		for i, cat := range categories {
			ticks = append(ticks, chart.Tick{Value: float64(i), Label: cat})
		}
		c.XAxis.Ticks = ticks
	}

	index := make(map[string]float64, len(categories))
	for i, cat := range categories {
		index[cat] = float64(i)
	}
	for i, s := range series {
		style := markStyle(spec.Mark.Kind, i)
		ys := make([]float64, len(s.points))
		for j, p := range s.points {
			ys[j] = p.y
		}
		if kind == axisTemporal {
			xs := make([]time.Time, len(s.points))
			for j, p := range s.points {
				xs[j] = p.xTime
			}
			c.Series = append(c.Series, chart.TimeSeries{Name: s.name, XValues: xs, YValues: ys, Style: style})
			continue
		}
		xs := make([]float64, len(s.points))
		for j, p := range s.points {
			if kind == axisNominal {
				xs[j] = index[p.xCat]
			} else {
				xs[j] = p.xNum
			}
		}
		c.Series = append(c.Series, chart.ContinuousSeries{Name: s.name, XValues: xs, YValues: ys, Style: style})
	}
	if len(series) > 1 {
		c.Elements = []chart.Renderable{chart.Legend(&c)}
	}
	return c, nil
}

// collectSeries splits rows by color and, when y aggregates, reduces each x to one point.
func collectSeries(rows []recommendations.Row, x, y binding, kind axisKind, colorField string) ([]*seriesData, error) {
	type bucket struct {
		p      point
		values []float64
		rows   int
	}
	type seriesAcc struct {
		name    string
		points  []point
		buckets map[string]*bucket
		order   []string
	}

	op := y.aggregate()
	byName := map[string]*seriesAcc{}
	var names []string
	for _, row := range rows {
		p, ok := xValue(row[x.field()], kind)
		if !ok {
			continue
		}
		name := y.field()
		if colorField != "" {
			name = label(row[colorField])
		}
		acc, ok := byName[name]
		if !ok {
			acc = &seriesAcc{name: name, buckets: map[string]*bucket{}}
			byName[name] = acc
			names = append(names, name)
		}

		yv, hasY := toFloat(row[y.field()])
		if op == "" {
			if !hasY {
				continue
			}
			p.y = yv
			acc.points = append(acc.points, p)
			continue
		}
		key := label(row[x.field()])
		b, ok := acc.buckets[key]
		if !ok {
			b = &bucket{p: p}
			acc.buckets[key] = b
			acc.order = append(acc.order, key)
		}
		b.rows++
		if hasY {
			b.values = append(b.values, yv)
		}
	}

	out := make([]*seriesData, 0, len(names))
	for _, name := range names {
		acc := byName[name]
		s := &seriesData{name: acc.name, points: acc.points}
		for _, key := range acc.order {
			b := acc.buckets[key]
			v, ok := aggregate(op, b.values, b.rows)
			if !ok {
				return nil, fmt.Errorf("%w: aggregate %q", ErrUnsupportedEncoding, op)
			}
			b.p.y = v
			s.points = append(s.points, b.p)
		}
		if len(s.points) > 0 {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func xValue(v any, kind axisKind) (point, bool) {
	if v == nil {
		return point{}, false
	}
	switch kind {
	case axisTemporal:
		t, ok := toTime(v)
		return point{xTime: t}, ok
	case axisQuantitative:
		n, ok := toFloat(v)
		return point{xNum: n}, ok
	default:
		return point{xCat: label(v)}, true
	}
}

func sortPoints(points []point, kind axisKind) {
	sort.SliceStable(points, func(i, j int) bool {
		switch kind {
		case axisTemporal:
			return points[i].xTime.Before(points[j].xTime)
		case axisQuantitative:
			return points[i].xNum < points[j].xNum
		default:
			return false
		}
	})
}

func nominalOrder(series []*seriesData) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range series {
		for _, p := range s.points {
			if _, ok := seen[p.xCat]; !ok {
				seen[p.xCat] = struct{}{}
				out = append(out, p.xCat)
			}
		}
	}
	sort.Strings(out)
	return out
}

func markStyle(kind recommendations.MarkKind, i int) chart.Style {
	col := colorAt(i)
	switch kind {
	case recommendations.MarkArea:
		return chart.Style{StrokeColor: col, StrokeWidth: 2, FillColor: col.WithAlpha(96)}
	case recommendations.MarkLine, recommendations.MarkTrail:
		return chart.Style{StrokeColor: col, StrokeWidth: 2}
	case recommendations.MarkSquare:
		return chart.Style{StrokeWidth: chart.Disabled, DotWidth: 4, DotColor: col}
	default:
		return chart.Style{StrokeWidth: chart.Disabled, DotWidth: 3, DotColor: col}
	}
}
