package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tern-lang/tern/internal/pcode"
	"github.com/tern-lang/tern/internal/wasm"
)

// LowerOptions holds flags for the lower command.
type LowerOptions struct {
	*RootOptions
	Output string
	NoOpt  bool
	Dump   bool
}

// NewLowerCommand creates the lower command.
func NewLowerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lower <input.pcode>",
		Short: "Lower a p-code buffer to a wasm module",
		Long: `Decode a p-code buffer, run the bytecode optimizer, and emit a
WebAssembly module.

Decoding is tolerant: truncated buffers lower the instructions that
decoded. Opcodes without a wasm mapping are skipped with a warning.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default input with .wasm)")
	cmd.Flags().BoolVar(&opts.NoOpt, "no-opt", false, "skip the bytecode optimizer")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the instruction listing instead of emitting")

	return cmd
}

func runLower(opts *LowerOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return formatter.Failure(ExitCommandError, "reading input", err)
	}

	log := opts.Logger()
	instrs := pcode.Decode(buf, log)
	if len(instrs) == 0 {
		return formatter.Failure(ExitFailure, "no instructions decoded", nil)
	}
	if !opts.NoOpt {
		instrs = pcode.Optimize(instrs)
	}

	if opts.Dump {
		return formatter.Success(listing(instrs))
	}

	mod := wasm.EmitModule(wasm.Translate(instrs, log))

	out := opts.Output
	if out == "" {
		out = strings.TrimSuffix(path, ".pcode") + ".wasm"
	}
	if err := os.WriteFile(out, mod, 0o644); err != nil {
		return formatter.Failure(ExitCommandError, "writing module", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"output":       out,
			"instructions": len(instrs),
			"moduleBytes":  len(mod),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d instructions, %d bytes)\n", out, len(instrs), len(mod))
	return nil
}

// listing renders decoded instructions one per line.
func listing(instrs []pcode.Instruction) string {
	var b strings.Builder
	for i, in := range instrs {
		fmt.Fprintf(&b, "%4d  %s", i, in.Op)
		for _, op := range in.Operands {
			fmt.Fprintf(&b, " %d", op)
		}
		if in.HasImm {
			fmt.Fprintf(&b, " #%d", in.Immediate)
		}
		if i < len(instrs)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
