package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tern-lang/tern/internal/policy"
)

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate and inspect tuning policies",
	}
	cmd.AddCommand(newPolicyVetCommand(rootOpts))
	return cmd
}

func newPolicyVetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vet <policy.cue>",
		Short: "Validate a policy file and print the effective policy",
		Long: `Unify a CUE policy file with the engine's schema and report the
effective values. Fields outside the schema's constraints or with
inconsistent cross-field values fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			p, err := policy.Load(args[0])
			if err != nil {
				return formatter.Failure(ExitFailure, "invalid policy", err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(p)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tiers: thresholds=%v deoptCeiling=%d\n",
				p.Tiers.Thresholds, p.Tiers.DeoptCeiling)
			fmt.Fprintf(out, "profiler: interval=%s hotPercentile=%g coldFloor=%d branchGate=%g\n",
				p.Profiler.SampleInterval(), p.Profiler.HotPercentile,
				p.Profiler.ColdCountFloor, p.Profiler.BranchHintGate)
			fmt.Fprintf(out, "feedback: stabilityGate=%g\n", p.Feedback.StabilityGate)
			fmt.Fprintf(out, "loops: unrollMax=%g vectorizeMin=%g\n",
				p.Loops.UnrollMaxIters, p.Loops.VectorizeMinIter)
			fmt.Fprintf(out, "storage: retention=%d\n", p.Storage.Retention)
			return nil
		},
	}
}
