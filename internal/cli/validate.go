package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/recommendations"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check an analysis response or a single recommendation",
		Long: `Runs a saved /analyze-data response, or a single recommendation object,
through the same checks the server applies. For a single recommendation the
built Vega-Lite spec is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := chartspec.ParseMode(mode)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return Validate(cmd.OutOrStdout(), body, m)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "compact", "Spec mode for a single recommendation (compact or expanded)")
	return cmd
}

// Validate reports on body. A document with a recommendations array is treated
// as a full response; anything else as one recommendation.
func Validate(w io.Writer, body []byte, mode chartspec.Mode) error {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", recommendations.ErrInvalidPayload, err)
	}

	if _, ok := doc["recommendations"]; ok {
		result, rejected, err := recommendations.Decode(body, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "rows: %d, accepted: %d, rejected: %d\n", result.RowCount, len(result.Recommendations), len(rejected))
		for _, rec := range result.Recommendations {
			fmt.Fprintf(w, "  ok       %s (%s)\n", rec.ID, rec.Mark().Kind)
		}
		for _, r := range rejected {
			fmt.Fprintf(w, "  rejected #%d %s: %s\n", r.Index, r.ID, r.Reason)
		}
		return nil
	}

	rec, err := recommendations.ValidateRecommendation(doc)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(chartspec.Build(rec, nil, mode).Spec, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
