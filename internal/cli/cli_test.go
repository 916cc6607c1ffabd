package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
)

type cannedClient struct {
	dataErr error
}

func (c cannedClient) AnalyzeData(ctx context.Context, up analysis.Upload) (analysis.DataResult, error) {
	if c.dataErr != nil {
		return analysis.DataResult{}, c.dataErr
	}
	return analysis.DataResult{Result: recommendations.AnalysisResult{
		PreviewRows: []recommendations.Row{
			{"region": "North", "revenue": 120.0},
			{"region": "South", "revenue": 80.0},
		},
		Recommendations: []recommendations.Recommendation{
			{
				ID:       "bar",
				Title:    "Revenue by region",
				MarkType: recommendations.MarkBar,
				Encoding: recommendations.Encoding{
					recommendations.ChannelX: {"field": "region", "type": "nominal"},
					recommendations.ChannelY: {"field": "revenue", "type": "quantitative"},
				},
			},
			{
				ID:       "box",
				Title:    "Revenue spread",
				MarkType: recommendations.MarkBoxplot,
				Encoding: recommendations.Encoding{
					recommendations.ChannelY: {"field": "revenue", "type": "quantitative"},
				},
			},
		},
		RowCount: 2,
	}}, nil
}

func (cannedClient) AnalyzeImage(ctx context.Context, up analysis.Upload) (analysis.ImageResult, error) {
	return analysis.ImageResult{Style: "line"}, nil
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateExportsSpecsAndImages(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	summary, err := Generate(context.Background(), GenerateInput{
		Client:     cannedClient{},
		ScratchDir: filepath.Join(dir, "scratch"),
		DataPath:   writeInput(t, dir, "sales.csv", "region,revenue\nNorth,120\n"),
		OutDir:     out,
		PNG:        true,
		Workers:    2,
	})
	require.NoError(t, err)

	assert.Equal(t, "bar", summary.DetectedStyle, "no style staged keeps the default")
	assert.Equal(t, 2, summary.RowCount)
	for _, name := range []string{"bar.compact.vl.json", "bar.expanded.vl.json", "bar.png", "box.compact.vl.json", "box.expanded.vl.json"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, "box.png"))
	require.Len(t, summary.Failed, 1)
	assert.Contains(t, summary.Failed[0], "box")

	body, err := os.ReadFile(filepath.Join(out, "bar.expanded.vl.json"))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"height": 400`)
}

func TestGenerateRejectsWrongDataType(t *testing.T) {
	dir := t.TempDir()
	_, err := Generate(context.Background(), GenerateInput{
		Client:     cannedClient{},
		ScratchDir: dir,
		DataPath:   writeInput(t, dir, "notes.txt", "hello"),
		OutDir:     filepath.Join(dir, "out"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestGenerateSurfacesDataFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := Generate(context.Background(), GenerateInput{
		Client:     cannedClient{dataErr: errors.New("connection refused")},
		ScratchDir: dir,
		DataPath:   writeInput(t, dir, "sales.csv", "a\n1\n"),
		OutDir:     filepath.Join(dir, "out"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidateFullResponse(t *testing.T) {
	body := []byte(`{
		"preview": [{"a": 1}],
		"recommendations": [
			{"id": "r1", "type": "bar", "encoding": {"x": {"field": "a"}}},
			{"id": "r2", "type": "nope", "encoding": {}}
		]
	}`)
	var out bytes.Buffer
	require.NoError(t, Validate(&out, body, chartspec.Compact))
	assert.Contains(t, out.String(), "accepted: 1, rejected: 1")
	assert.Contains(t, out.String(), "ok       r1 (bar)")
}

func TestValidateSingleRecommendation(t *testing.T) {
	var out bytes.Buffer
	err := Validate(&out, []byte(`{"id":"r1","title":"T","type":"line","encoding":{"x":{"field":"a"}}}`), chartspec.Expanded)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"$schema"`)

	err = Validate(&out, []byte(`{"title":"no id"}`), chartspec.Compact)
	assert.ErrorIs(t, err, recommendations.ErrInvalidRecommendation)

	err = Validate(&out, []byte(`not json`), chartspec.Compact)
	assert.ErrorIs(t, err, recommendations.ErrInvalidPayload)
}

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"generate", "validate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
