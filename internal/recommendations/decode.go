package recommendations

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFiles embed.FS

const (
	analysisSchemaURL       = "https://chartyap.local/schemas/analysis.schema.json"
	recommendationSchemaURL = "https://chartyap.local/schemas/recommendation.schema.json"
)

var (
	schemaOnce           sync.Once
	analysisSchema       *jsonschema.Schema
	recommendationSchema *jsonschema.Schema
	schemaErr            error
)

// Scalar encoding entries that are really mark properties. The analysis service
// emits e.g. {"innerRadius": 50} next to the channels for donut charts.
var hoistedMarkProps = map[Channel]struct{}{
	"innerRadius": {},
	"outerRadius": {},
	"interpolate": {},
	"width":       {},
	"opacity":     {},
	"size":        {},
}

// Rejection records one recommendation dropped at the boundary.
type Rejection struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

func compileSchemas() error {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for url, name := range map[string]string{
			analysisSchemaURL:       "schema/analysis.schema.json",
			recommendationSchemaURL: "schema/recommendation.schema.json",
		} {
			f, err := schemaFiles.Open(name)
			if err != nil {
				schemaErr = fmt.Errorf("open schema %s: %w", name, err)
				return
			}
			err = c.AddResource(url, f)
			_ = f.Close()
			if err != nil {
				schemaErr = fmt.Errorf("load schema %s: %w", name, err)
				return
			}
		}
		if analysisSchema, schemaErr = c.Compile(analysisSchemaURL); schemaErr != nil {
			return
		}
		recommendationSchema, schemaErr = c.Compile(recommendationSchemaURL)
	})
	return schemaErr
}

// Decode validates a data-analysis response and normalizes it into an AnalysisResult.
// Envelope problems fail the whole payload with ErrInvalidPayload; a malformed
// recommendation is dropped and reported without affecting the others.
// Rows beyond maxRows are discarded when maxRows > 0.
func Decode(body []byte, maxRows int) (AnalysisResult, []Rejection, error) {
	if err := compileSchemas(); err != nil {
		return AnalysisResult{}, nil, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return AnalysisResult{}, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := analysisSchema.Validate(doc); err != nil {
		return AnalysisResult{}, nil, fmt.Errorf("%w: %s", ErrInvalidPayload, firstLine(err))
	}
	envelope := doc.(map[string]any)

	rows := decodeRows(envelope["preview"], maxRows)
	result := AnalysisResult{
		PreviewRows: rows,
		Columns:     decodeColumns(envelope["columns"], rows),
		RowCount:    len(rows),
	}
	if shape, ok := envelope["shape"].([]any); ok && len(shape) == 2 {
		if n, ok := shape[0].(float64); ok && int(n) > result.RowCount {
			result.RowCount = int(n)
		}
	}

	rawRecs, _ := envelope["recommendations"].([]any)
	result.Recommendations = make([]Recommendation, 0, len(rawRecs))
	var rejected []Rejection
	seen := make(map[string]struct{}, len(rawRecs))
	for i, raw := range rawRecs {
		obj, _ := raw.(map[string]any)
		id, _ := obj["id"].(string)

		rec, err := normalizeRecommendation(obj)
		if err == nil {
			if _, dup := seen[rec.ID]; dup {
				err = fmt.Errorf("%w: duplicate id %q", ErrInvalidRecommendation, rec.ID)
			}
		}
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, ID: id, Reason: err.Error()})
			continue
		}
		seen[rec.ID] = struct{}{}
		result.Recommendations = append(result.Recommendations, rec)
	}
	return result, rejected, nil
}

// ValidateRecommendation runs a single recommendation object through the same
// boundary checks Decode applies.
func ValidateRecommendation(obj map[string]any) (Recommendation, error) {
	if err := compileSchemas(); err != nil {
		return Recommendation{}, err
	}
	return normalizeRecommendation(obj)
}

func normalizeRecommendation(obj map[string]any) (Recommendation, error) {
	if err := recommendationSchema.Validate(obj); err != nil {
		return Recommendation{}, fmt.Errorf("%w: %s", ErrInvalidRecommendation, firstLine(err))
	}

	rec := Recommendation{
		ID:          obj["id"].(string),
		Title:       stringField(obj, "title"),
		Description: stringField(obj, "description"),
	}

	props := map[string]any{}
	switch t := obj["type"].(type) {
	case string:
		rec.MarkType = MarkKind(t)
	case map[string]any:
		rec.MarkType = MarkKind(t["type"].(string))
		for k, v := range t {
			if k != "type" {
				props[k] = v
			}
		}
	}
	if override, ok := obj["markOverride"].(map[string]any); ok {
		rec.MarkType = MarkKind(override["type"].(string))
		for k, v := range override {
			if k != "type" {
				props[k] = v
			}
		}
	}
	if !rec.MarkType.Valid() {
		return Recommendation{}, fmt.Errorf("%w: unknown mark type %q", ErrInvalidRecommendation, rec.MarkType)
	}

	rawEnc, _ := obj["encoding"].(map[string]any)
	rec.Encoding = make(Encoding, len(rawEnc))
	for name, v := range rawEnc {
		ch := Channel(name)
		switch def := v.(type) {
		case map[string]any:
			rec.Encoding[ch] = FieldDef(def)
		default:
			if _, ok := hoistedMarkProps[ch]; ok && isScalar(v) {
				props[name] = v
				continue
			}
			return Recommendation{}, fmt.Errorf("%w: channel %q must be a field definition", ErrInvalidRecommendation, name)
		}
	}

	if rawT, ok := obj["transform"].([]any); ok && len(rawT) > 0 {
		rec.Transform = make(Transform, 0, len(rawT))
		for _, step := range rawT {
			rec.Transform = append(rec.Transform, step.(map[string]any))
		}
	}

	if len(props) > 0 {
		rec.MarkOverride = &Mark{Kind: rec.MarkType, Props: props}
	}
	return rec, nil
}

func decodeRows(raw any, maxRows int) []Row {
	items, _ := raw.([]any)
	if maxRows > 0 && len(items) > maxRows {
		items = items[:maxRows]
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, Row(m))
		}
	}
	return rows
}

func decodeColumns(raw any, rows []Row) []string {
	var names []string
	if cols, ok := raw.(map[string]any); ok && len(cols) > 0 {
		names = make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
	} else {
		seen := map[string]struct{}{}
		for _, row := range rows {
			for name := range row {
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					names = append(names, name)
				}
			}
		}
	}
	sort.Strings(names)
	return names
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, bool, json.Number:
		return true
	}
	return false
}

func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
