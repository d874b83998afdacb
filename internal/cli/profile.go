package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tern-lang/tern/internal/profile"
	"github.com/tern-lang/tern/internal/store"
)

// ProfileOptions holds flags shared by the profile subcommands.
type ProfileOptions struct {
	*RootOptions
	DBPath string
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and move stored profile snapshots",
	}
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "profiles.db", "SQLite snapshot database")

	cmd.AddCommand(newProfileSessionsCommand(opts))
	cmd.AddCommand(newProfileExportCommand(opts))
	cmd.AddCommand(newProfileImportCommand(opts))

	return cmd
}

func newProfileSessionsCommand(opts *ProfileOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sessions",
		Short:         "List stored profiling sessions, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			db, err := store.Open(opts.DBPath)
			if err != nil {
				return formatter.Failure(ExitCommandError, "opening database", err)
			}
			defer db.Close()

			sessions, err := db.ListSessions(context.Background())
			if err != nil {
				return formatter.Failure(ExitCommandError, "listing sessions", err)
			}

			if opts.Format == "json" {
				return formatter.Success(sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  v%d  %s\n",
					s.SessionID, s.Version, s.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newProfileExportCommand(opts *ProfileOptions) *cobra.Command {
	var session, output string

	cmd := &cobra.Command{
		Use:           "export",
		Short:         "Write a stored snapshot as JSON",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			db, err := store.Open(opts.DBPath)
			if err != nil {
				return formatter.Failure(ExitCommandError, "opening database", err)
			}
			defer db.Close()

			snap, err := db.LoadSnapshot(context.Background(), session)
			if err != nil {
				return formatter.Failure(ExitCommandError, "loading snapshot", err)
			}

			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return formatter.Failure(ExitFailure, "encoding snapshot", err)
			}
			if output == "" || output == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return formatter.Failure(ExitCommandError, "writing snapshot", err)
			}
			if opts.Format == "json" {
				return formatter.Success(map[string]any{"output": output, "session": session})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session id to export")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path ('-' for stdout)")
	cmd.MarkFlagRequired("session")

	return cmd
}

func newProfileImportCommand(opts *ProfileOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Store a JSON snapshot in the database",
		Long: `Validate a JSON profile snapshot and store it. Validation runs a
full in-memory import, so version mismatches or malformed records are
rejected before anything is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return formatter.Failure(ExitCommandError, "reading snapshot", err)
			}
			var snap profile.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return formatter.Failure(ExitFailure, "decoding snapshot", err)
			}

			// Round the snapshot through a scratch profiler; Import is
			// the single authority on format and version checks.
			if err := profile.Import(profile.New(), nil, &snap); err != nil {
				return formatter.Failure(ExitFailure, "validating snapshot", err)
			}

			db, err := store.Open(opts.DBPath)
			if err != nil {
				return formatter.Failure(ExitCommandError, "opening database", err)
			}
			defer db.Close()

			if err := db.SaveSnapshot(context.Background(), &snap); err != nil {
				return formatter.Failure(ExitCommandError, "storing snapshot", err)
			}
			if opts.Format == "json" {
				return formatter.Success(map[string]any{"session": snap.SessionID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored session %s\n", snap.SessionID)
			return nil
		},
	}
}
