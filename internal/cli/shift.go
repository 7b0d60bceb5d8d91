package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"room-status-backend/config"
	"room-status-backend/internal/db"
)

func (r *runner) shiftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shift",
		Short: "Manage per-shift database files",
		Long: `Each shift records into its own SQLite file. The active shift is used by
roomd and roomctl whenever database.dsn is left at its default.`,
	}

	cmd.AddCommand(r.shiftStartCmd())
	cmd.AddCommand(r.shiftEndCmd())
	cmd.AddCommand(r.shiftActiveCmd())

	return cmd
}

func (r *runner) shiftStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new shift, or keep the active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := r.runtime(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, created, err := rt.Shifts.Start()
			if err != nil {
				return fmt.Errorf("failed to start shift: %w", err)
			}

			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintf(out, "Shift already active: %s\n", path)
				return nil
			}

			// create the schema now so the file exists for the first reader
			dbCfg := config.DatabaseConfig{DSN: path, LogLevel: "silent"}
			gormDB, err := db.Init(&dbCfg, rt.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialise shift database: %w", err)
			}
			if sqlDB, err := gormDB.DB(); err == nil {
				sqlDB.Close()
			}

			fmt.Fprintln(out, success("Started shift %s", path))
			return nil
		},
	}
}

func (r *runner) shiftEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End the active shift and archive its file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := r.runtime(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ended, ok, err := rt.Shifts.End(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to end shift: %w", err)
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "No active shift.")
				return nil
			}
			fmt.Fprintln(out, success("Ended shift %s", ended.Active))
			fmt.Fprintf(out, "  Archived: %s\n", ended.Archived)
			if ended.Location != "" {
				fmt.Fprintf(out, "  Uploaded: %s\n", ended.Location)
			}
			return nil
		},
	}
}

func (r *runner) shiftActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Print the active shift file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := r.runtime(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, ok, err := rt.Shifts.Active()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No active shift (using %s).\n", rt.Shifts.ActiveDSN())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
