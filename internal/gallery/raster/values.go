package raster

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func label(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// aggregate applies a Vega-Lite aggregate op. Unknown ops report false.
func aggregate(op string, values []float64, rows int) (float64, bool) {
	switch op {
	case "count":
		return float64(rows), true
	case "", "sum":
		var total float64
		for _, v := range values {
			total += v
		}
		return total, true
	case "mean", "average":
		if len(values) == 0 {
			return 0, true
		}
		var total float64
		for _, v := range values {
			total += v
		}
		return total / float64(len(values)), true
	case "min", "max":
		if len(values) == 0 {
			return 0, true
		}
		out := values[0]
		for _, v := range values[1:] {
			if (op == "min" && v < out) || (op == "max" && v > out) {
				out = v
			}
		}
		return out, true
	case "median":
		if len(values) == 0 {
			return 0, true
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], true
		}
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return 0, false
}
