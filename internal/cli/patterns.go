package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/uirecorder/internal/handler"
	"github.com/gyaneshwarpardhi/uirecorder/internal/pattern"
)

// PatternInfo is the JSON form of one pattern table entry.
type PatternInfo struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Handler string `json:"handler"`
}

// NewPatternsCommand creates the patterns command.
func NewPatternsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the pattern table in evaluation order",
		Long: `List the pattern table in evaluation order. The first pattern whose
hook and event shapes fit a buffered group decides the script fragment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := pattern.DefaultTable()
			matcher, err := pattern.Compile(table, pattern.WithExcluded(rootOpts.Config.Events.Ignored...))
			if err != nil {
				return WrapExitError(ExitFailure, "pattern table", err)
			}
			reg := handler.DefaultRegistry()
			for _, p := range matcher.Patterns() {
				if _, err := reg.Get(p.Handler); err != nil {
					return WrapExitError(ExitFailure, "pattern table", err)
				}
			}

			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				out := make([]PatternInfo, 0, len(table))
				for _, p := range matcher.Patterns() {
					out = append(out, PatternInfo{Name: p.Name, Pattern: p.String(), Handler: p.Handler})
				}
				return writeJSON(w, out)
			}
			for i, p := range matcher.Patterns() {
				fmt.Fprintf(w, "%2d  %s\n", i+1, p)
			}
			return nil
		},
	}
}
