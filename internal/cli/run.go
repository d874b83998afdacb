package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tern-lang/tern/internal/harness"
	"github.com/tern-lang/tern/internal/policy"
	"github.com/tern-lang/tern/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	PolicyPath string
	DBPath     string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario and print its trace",
		Long: `Execute a YAML scenario against a fresh engine session.

The trace lists each drive step's final result and each procedure's
tier stack, deopt count and pin state. With --db the session's profile
snapshot is stored after the run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "CUE policy file overriding scenario and default policy")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite database to store the profile snapshot in")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Failure(ExitCommandError, "loading scenario", err)
	}
	if opts.PolicyPath != "" {
		// A --policy file wins over the scenario's inline fragment.
		data, err := policyFileSource(opts.PolicyPath)
		if err != nil {
			return formatter.Failure(ExitCommandError, "loading policy", err)
		}
		sc.Policy = data
	}

	runner := harness.Runner{Log: opts.Logger()}
	trace, session, err := runner.RunWithSnapshot(sc)
	if err != nil {
		return formatter.Failure(ExitFailure, "running scenario", err)
	}

	if opts.DBPath != "" {
		if err := persistSnapshot(opts, session); err != nil {
			return formatter.Failure(ExitCommandError, "storing snapshot", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"scenario": sc.Name,
			"trace":    trace,
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), trace)
	return nil
}

func persistSnapshot(opts *RunOptions, snap *harness.SessionSnapshot) error {
	db, err := store.Open(opts.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.SaveSnapshot(ctx, snap.Snapshot); err != nil {
		return err
	}
	if _, err := db.Prune(ctx, snap.Retention); err != nil {
		return err
	}
	return nil
}

func policyFileSource(path string) (string, error) {
	// Validate eagerly so a bad file fails here, not mid-run.
	if _, err := policy.Load(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
