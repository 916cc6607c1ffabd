package chartspec

import (
	"fmt"
	"strings"

	"chartyap-backend/internal/recommendations"
)

// Mode is a presentation density.
type Mode string

const (
	Compact  Mode = "compact"
	Expanded Mode = "expanded"
)

// ParseMode accepts "compact" or "expanded" (case-insensitive); empty means compact.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", Compact:
		return Compact, nil
	case Expanded:
		return Expanded, nil
	default:
		return "", fmt.Errorf("unknown mode %q", raw)
	}
}

// Title is the inline chart title used in compact mode.
type Title struct {
	Text     string `json:"text"`
	FontSize int    `json:"fontSize"`
	Font     string `json:"font"`
	Anchor   string `json:"anchor"`
}

type Data struct {
	Values []recommendations.Row `json:"values"`
}

type Autosize struct {
	Type     string `json:"type"`
	Contains string `json:"contains"`
}

// Spec is a Vega-Lite v5 document.
type Spec struct {
	Schema      string                    `json:"$schema"`
	Title       *Title                    `json:"title,omitempty"`
	Description string                    `json:"description,omitempty"`
	Data        Data                      `json:"data"`
	Mark        recommendations.Mark      `json:"mark"`
	Encoding    recommendations.Encoding  `json:"encoding,omitempty"`
	Transform   recommendations.Transform `json:"transform,omitempty"`
	Width       string                    `json:"width"`
	Height      int                       `json:"height"`
	Autosize    Autosize                  `json:"autosize"`
	Config      Theme                     `json:"config"`
}

// EmbedOptions is the options bag handed to the rendering engine.
type EmbedOptions struct {
	Actions  bool   `json:"actions"`
	Renderer string `json:"renderer"`
}

// ChartSpec is a built spec plus its engine options. Values are never mutated after Build.
type ChartSpec struct {
	Spec    Spec         `json:"spec"`
	Options EmbedOptions `json:"options"`
}

// Build turns a recommendation and the full dataset into a renderable spec.
// Encoding and transform pass through untouched; malformed bindings are left for
// the rendering engine to report.
func Build(rec recommendations.Recommendation, rows []recommendations.Row, mode Mode) ChartSpec {
	if rows == nil {
		rows = []recommendations.Row{}
	}
	spec := Spec{
		Schema:      SchemaURL,
		Description: rec.Description,
		Data:        Data{Values: rows},
		Mark:        rec.Mark(),
		Encoding:    rec.Encoding,
		Transform:   rec.Transform,
		Width:       "container",
		Autosize:    Autosize{Type: "fit", Contains: "padding"},
		Config:      DefaultTheme(),
	}
	opts := EmbedOptions{Renderer: "svg"}

	if mode == Expanded {
		spec.Height = ExpandedHeight
		opts.Actions = true
	} else {
		spec.Height = CompactHeight
		spec.Title = &Title{Text: rec.Title, FontSize: 16, Font: fontFamily, Anchor: "start"}
	}
	return ChartSpec{Spec: spec, Options: opts}
}
