package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxnsim/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	ModelID  string                     `json:"model_id"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a model without compiling it",
		Long: `Check a CUE model for structural errors.

Reports undeclared symbols, bad rule and event targets, overdetermined
variables and similar mistakes, all at once rather than stopping at the
first. Cycles among assignment rules are reported as warnings.

Exit codes:
  0 - Model is valid (warnings allowed)
  1 - Model has errors
  2 - Command error (model not found)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := LoadModel(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)

	result := ValidationResult{
		ModelID:  loaded.Model.ID,
		Errors:   compiler.Validate(loaded.Model),
		Warnings: compiler.AnalyzeRuleCycles(loaded.Model),
	}
	result.Valid = len(result.Errors) == 0

	err = formatter.Result(result.Valid, result, func(w io.Writer) {
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "warning: %s (%s)\n", warn.Message, strings.Join(warn.Path, " -> "))
		}
		if result.Valid {
			fmt.Fprintf(w, "✓ %s is valid\n", result.ModelID)
			return
		}
		fmt.Fprintf(w, "✗ %s has %d error(s)\n", result.ModelID, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	})
	if err != nil {
		return err
	}
	if !result.Valid {
		return reportedExit(ExitFailure, fmt.Sprintf("model %s has %d validation error(s)", result.ModelID, len(result.Errors)))
	}
	return nil
}
