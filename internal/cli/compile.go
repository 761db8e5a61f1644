package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // optional canonical model JSON output path
}

// CompileSummary describes a compiled model.
type CompileSummary struct {
	ModelID       string   `json:"model_id"`
	ModelHash     string   `json:"model_hash"`
	Files         int      `json:"files"`
	Dimension     int      `json:"dimension"`
	Columns       []string `json:"columns"`
	Reactions     []string `json:"reactions"`
	Rules         int      `json:"rules"`
	Events        int      `json:"events"`
	Constraints   int      `json:"constraints"`
	FastReactions bool     `json:"fast_reactions"`
	IRVersion     string   `json:"ir_version"`
	EngineVersion string   `json:"engine_version"`
	Output        string   `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model>",
		Short: "Compile a model and report its shape",
		Long: `Compile a CUE model into the runtime representation.

The model is a .cue file or a directory holding one CUE package. The
command reports the state vector layout, reactions and the model hash;
--output writes the model in canonical JSON form.

Example:
  rxnsim compile ./models/decay.cue
  rxnsim compile ./models/glycolysis -o glycolysis.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical model JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadModel(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded model %s from %d CUE file(s)", loaded.Model.ID, loaded.FileCount)

	model, err := compileRuntime(opts.RootOptions, loaded.Model)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeCompileFailed, err.Error(), nil)
	}

	summary := CompileSummary{
		ModelID:       model.ID(),
		ModelHash:     loaded.Hash,
		Files:         loaded.FileCount,
		Dimension:     model.Dimension(),
		Columns:       model.Layout().IDs(),
		Reactions:     model.ReactionIDs(),
		Rules:         len(loaded.Model.Rules),
		Events:        len(loaded.Model.Events),
		Constraints:   len(loaded.Model.Constraints),
		FastReactions: model.HasFastReactions(),
		IRVersion:     ir.IRVersion,
		EngineVersion: ir.EngineVersion,
	}

	if opts.Output != "" {
		data, err := ir.CanonicalModel(loaded.Model)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
		}
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed,
				fmt.Sprintf("failed to write output: %v", err), nil)
		}
		summary.Output = opts.Output
	}

	return formatter.Result(true, summary, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Compiled %s (%s)\n", summary.ModelID, shortHash(summary.ModelHash))
		fmt.Fprintf(w, "  state: %d slot(s): %s\n", summary.Dimension, strings.Join(summary.Columns, ", "))
		fmt.Fprintf(w, "  %d reaction(s), %d rule(s), %d event(s), %d constraint(s)\n",
			len(summary.Reactions), summary.Rules, summary.Events, summary.Constraints)
		if summary.FastReactions {
			fmt.Fprintln(w, "  fast reactions present")
		}
		if summary.Output != "" {
			fmt.Fprintf(w, "  wrote %s\n", summary.Output)
		}
	})
}

// compileRuntime builds the runtime model with the CLI's standard options.
func compileRuntime(opts *RootOptions, src *ir.Model, extra ...engine.Option) (*engine.Model, error) {
	base := []engine.Option{
		engine.WithLogger(opts.logger()),
		engine.WithAlgebraicConverter(compiler.NewAlgebraicConverter()),
	}
	return engine.Compile(src, append(base, extra...)...)
}

// shortHash abbreviates a content hash for text output.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
