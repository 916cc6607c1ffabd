package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/analysis/remote"
	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/gallery"
	"chartyap-backend/internal/gallery/raster"
	"chartyap-backend/internal/orchestrator"
	"chartyap-backend/internal/shared/config"
	"chartyap-backend/internal/shared/storage/object/local"
	"chartyap-backend/internal/staging"
)

const defaultExportWorkers = 4

// GenerateOptions holds options for the generate command.
type GenerateOptions struct {
	Data    string
	Style   string
	OutDir  string
	PNG     bool
	Workers int
	BaseURL string
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Analyze a dataset and export every recommended chart",
		Example: `  # Specs only
  chartyapctl generate --data sales.csv

  # With a style reference and PNG renders
  chartyapctl generate --data sales.csv --style ref.png --out charts --png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "Dataset file (.csv, .xlsx, .xls)")
	cmd.Flags().StringVar(&opts.Style, "style", "", "Optional style reference image (.png, .jpg, .jpeg, .webp)")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "charts", "Output directory")
	cmd.Flags().BoolVar(&opts.PNG, "png", false, "Also render PNG files")
	cmd.Flags().IntVar(&opts.Workers, "workers", defaultExportWorkers, "Concurrent exports")
	cmd.Flags().StringVar(&opts.BaseURL, "analysis-url", "", "Analysis service base URL (defaults to ANALYSIS_BASE_URL)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	baseURL := cfg.AnalysisBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	client, err := remote.New(baseURL, cfg.AnalysisTimeout, cfg.MaxDatasetRows)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "chartyapctl-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	summary, err := Generate(ctx, GenerateInput{
		Client:     analysis.WithRetry(client, cfg.AnalysisRetries),
		ScratchDir: scratch,
		DataPath:   opts.Data,
		StylePath:  opts.Style,
		OutDir:     opts.OutDir,
		PNG:        opts.PNG,
		Workers:    opts.Workers,
	})
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), summary)
}

// GenerateInput wires one offline generation.
type GenerateInput struct {
	Client     analysis.Client
	ScratchDir string
	DataPath   string
	StylePath  string
	OutDir     string
	PNG        bool
	Workers    int
}

// Summary reports what an offline generation produced.
type Summary struct {
	DetectedStyle string   `json:"detectedStyle"`
	RowCount      int      `json:"rowCount"`
	Files         []string `json:"files"`
	Failed        []string `json:"failed,omitempty"`
	DurationMs    int64    `json:"durationMs"`
}

// Generate stages the inputs, runs one generation and exports every card.
// A card that fails to render is listed in Summary.Failed; the others are still written.
func Generate(ctx context.Context, in GenerateInput) (Summary, error) {
	start := time.Now()
	st := staging.New(local.New(in.ScratchDir), "cli-"+uuid.NewString(), staging.Options{})
	defer st.Reset(context.WithoutCancel(ctx))

	if err := stageFile(ctx, in.DataPath, st.StageData); err != nil {
		return Summary{}, err
	}
	if in.StylePath != "" {
		if err := stageFile(ctx, in.StylePath, st.StageStyle); err != nil {
			return Summary{}, err
		}
	}

	orch := orchestrator.New(in.Client, st, orchestrator.Options{SessionID: "cli"})
	snap, err := orch.Generate(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("generate: %w", err)
	}

	if err := os.MkdirAll(in.OutDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create output dir: %w", err)
	}
	surface := gallery.NewSurface(orch, raster.New(), nil)
	files, failed, err := export(ctx, surface, snap, in)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		DetectedStyle: string(snap.DetectedStyle),
		RowCount:      snap.Result.RowCount,
		Files:         files,
		Failed:        failed,
		DurationMs:    time.Since(start).Milliseconds(),
	}, nil
}

func stageFile(ctx context.Context, path string, stage func(context.Context, string, io.Reader) (staging.StagedFile, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := stage(ctx, filepath.Base(path), f); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return nil
}

type exported struct {
	files  []string
	failed string
}

func export(ctx context.Context, surface *gallery.Surface, snap orchestrator.Snapshot, in GenerateInput) ([]string, []string, error) {
	workers := in.Workers
	if workers <= 0 {
		workers = defaultExportWorkers
	}
	recs := snap.Result.Recommendations
	results := make([]exported, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range recs {
		g.Go(func() error {
			var out exported
			for _, mode := range []chartspec.Mode{chartspec.Compact, chartspec.Expanded} {
				name := filepath.Join(in.OutDir, fmt.Sprintf("%s.%s.vl.json", rec.ID, mode))
				if err := writeSpec(name, chartspec.Build(rec, snap.Result.PreviewRows, mode)); err != nil {
					return err
				}
				out.files = append(out.files, name)
			}
			if in.PNG {
				name := filepath.Join(in.OutDir, rec.ID+".png")
				if err := writeImage(gctx, surface, rec.ID, name); err != nil {
					out.failed = fmt.Sprintf("%s: %v", rec.ID, err)
				} else {
					out.files = append(out.files, name)
				}
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var files, failed []string
	for _, r := range results {
		files = append(files, r.files...)
		if r.failed != "" {
			failed = append(failed, r.failed)
		}
	}
	sort.Strings(files)
	return files, failed, nil
}

func writeSpec(name string, chart chartspec.ChartSpec) error {
	body, err := json.MarshalIndent(chart.Spec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(name, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeImage(ctx context.Context, surface *gallery.Surface, id, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	renderErr := surface.RenderCard(ctx, id, chartspec.Expanded, gallery.FormatPNG, f)
	closeErr := f.Close()
	if renderErr != nil {
		_ = os.Remove(name)
		return renderErr
	}
	return closeErr
}

func printSummary(w io.Writer, s Summary) error {
	fmt.Fprintf(w, "detected style: %s\n", s.DetectedStyle)
	fmt.Fprintf(w, "rows analyzed:  %d\n", s.RowCount)
	fmt.Fprintf(w, "files written:  %d\n", len(s.Files))
	for _, f := range s.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  render failed: %s\n", f)
	}
	fmt.Fprintf(w, "took %dms\n", s.DurationMs)
	return nil
}
