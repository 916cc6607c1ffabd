package recommendations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MarkKind is the visual mark family of a chart.
type MarkKind string

const (
	MarkBar      MarkKind = "bar"
	MarkLine     MarkKind = "line"
	MarkArea     MarkKind = "area"
	MarkPoint    MarkKind = "point"
	MarkCircle   MarkKind = "circle"
	MarkSquare   MarkKind = "square"
	MarkTick     MarkKind = "tick"
	MarkRect     MarkKind = "rect"
	MarkRule     MarkKind = "rule"
	MarkText     MarkKind = "text"
	MarkArc      MarkKind = "arc"
	MarkTrail    MarkKind = "trail"
	MarkBoxplot  MarkKind = "boxplot"
	MarkErrorBar MarkKind = "errorbar"
	MarkGeoshape MarkKind = "geoshape"
	MarkImage    MarkKind = "image"
)

var knownMarks = map[MarkKind]struct{}{
	MarkBar: {}, MarkLine: {}, MarkArea: {}, MarkPoint: {}, MarkCircle: {}, MarkSquare: {},
	MarkTick: {}, MarkRect: {}, MarkRule: {}, MarkText: {}, MarkArc: {}, MarkTrail: {},
	MarkBoxplot: {}, MarkErrorBar: {}, MarkGeoshape: {}, MarkImage: {},
}

// Valid reports whether k is a mark family the rendering engine understands.
func (k MarkKind) Valid() bool {
	_, ok := knownMarks[k]
	return ok
}

// Mark is a mark descriptor: a kind plus optional mark properties.
// With no properties it serializes as the bare kind string.
type Mark struct {
	Kind  MarkKind
	Props map[string]any
}

// MarshalJSON renders "bar" or {"type":"line","interpolate":"step"}.
func (m Mark) MarshalJSON() ([]byte, error) {
	if len(m.Props) == 0 {
		return json.Marshal(string(m.Kind))
	}
	out := make(map[string]any, len(m.Props)+1)
	for k, v := range m.Props {
		out[k] = v
	}
	out["type"] = string(m.Kind)
	return json.Marshal(out)
}

// UnmarshalJSON accepts either the string or the object form.
func (m *Mark) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var kind string
		if err := json.Unmarshal(data, &kind); err != nil {
			return err
		}
		*m = Mark{Kind: MarkKind(kind)}
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("mark must be a string or object: %w", err)
	}
	kind, _ := obj["type"].(string)
	if kind == "" {
		return fmt.Errorf("mark object requires a type")
	}
	delete(obj, "type")
	if len(obj) == 0 {
		obj = nil
	}
	*m = Mark{Kind: MarkKind(kind), Props: obj}
	return nil
}

// Channel is a visual encoding channel name.
type Channel string

const (
	ChannelX        Channel = "x"
	ChannelY        Channel = "y"
	ChannelX2       Channel = "x2"
	ChannelY2       Channel = "y2"
	ChannelTheta    Channel = "theta"
	ChannelRadius   Channel = "radius"
	ChannelCategory Channel = "category"
	ChannelColor    Channel = "color"
	ChannelSize     Channel = "size"
	ChannelShape    Channel = "shape"
	ChannelOpacity  Channel = "opacity"
	ChannelText     Channel = "text"
	ChannelTooltip  Channel = "tooltip"
	ChannelDetail   Channel = "detail"
	ChannelOrder    Channel = "order"
)

// FieldDef binds a channel to a source column and its role (type, aggregate, bin, ...).
// It is passed through to the rendering engine unchanged.
type FieldDef map[string]any

// Field returns the bound column name, empty when the definition is a constant or missing.
func (f FieldDef) Field() string {
	if f == nil {
		return ""
	}
	switch v := f["field"].(type) {
	case string:
		return v
	case map[string]any:
		// {"repeat": "..."} style references
		if s, ok := v["repeat"].(string); ok {
			return s
		}
	}
	return ""
}

// Encoding maps channels to field bindings.
type Encoding map[Channel]FieldDef

// Fields returns every column name referenced by the encoding, sorted.
func (e Encoding) Fields() []string {
	seen := map[string]struct{}{}
	for _, def := range e {
		if f := def.Field(); f != "" {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Transform is an ordered data-shaping pipeline applied before rendering.
type Transform []map[string]any

// Recommendation is one candidate chart returned by the analysis service.
type Recommendation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	MarkType     MarkKind  `json:"type"`
	Encoding     Encoding  `json:"encoding"`
	Transform    Transform `json:"transform,omitempty"`
	MarkOverride *Mark     `json:"markOverride,omitempty"`
}

// Mark selects the override when present, else the bare mark type.
func (r Recommendation) Mark() Mark {
	if r.MarkOverride != nil {
		return *r.MarkOverride
	}
	return Mark{Kind: r.MarkType}
}

// Row is one record of the dataset, column name to scalar value.
type Row map[string]any

// AnalysisResult is adopted atomically from a successful data analysis.
type AnalysisResult struct {
	// PreviewRows is the complete row set the service returned, capped at
	// MAX_DATASET_ROWS. Specs are built from all of it; only the session view trims it.
	PreviewRows     []Row            `json:"previewRows"`
	Recommendations []Recommendation `json:"recommendations"`
	Columns         []string         `json:"columns,omitempty"`
	RowCount        int              `json:"rowCount"`
}

// Find returns the recommendation with the given id.
func (r AnalysisResult) Find(id string) (Recommendation, bool) {
	for _, rec := range r.Recommendations {
		if rec.ID == id {
			return rec, true
		}
	}
	return Recommendation{}, false
}

// DetectedStyle is the chart-family hint returned by the image analysis.
type DetectedStyle string

// DefaultStyle is the hint before any image analysis succeeded.
const DefaultStyle DetectedStyle = "bar"

// NormalizeStyle trims and lowercases a detected style token; empty input yields "".
func NormalizeStyle(raw string) DetectedStyle {
	return DetectedStyle(strings.ToLower(strings.TrimSpace(raw)))
}
