package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"room-status-backend/internal/status"
)

func (r *runner) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Change room status",
	}
	cmd.AddCommand(r.statusSetCmd())
	return cmd
}

func (r *runner) statusSetCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "set [room-id] [status]",
		Short: "Move a room to a new status",
		Long: `Move a room to a new status. The transition policy applies.

Examples:
  roomctl status set 3 waiting
  roomctl status set 3 seeing_provider --source sensor`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			next, err := status.Parse(args[1])
			if err != nil {
				return err
			}
			src, err := parseSource(source)
			if err != nil {
				return err
			}

			rt, err := r.runtime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Engine.UpdateStatus(cmd.Context(), id, next, src); err != nil {
				return fmt.Errorf("failed to update room %d: %w", id, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), success("Room %d is now %s", id, colorStatus(next)))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", string(status.SourceManual), "Update source (manual, sensor, api)")

	return cmd
}

func (r *runner) eventsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events [room-id]",
		Short: "Show the audit log of a room, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			rt, err := r.runtime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			events, err := rt.Engine.RoomEvents(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load events: %w", err)
			}
			if limit > 0 && len(events) > limit {
				events = events[:limit]
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintf(out, "No events for room %d.\n", id)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tOLD\tNEW\tSOURCE\tEVENT")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.UTC().Format(time.RFC3339),
					e.OldStatus, colorStatus(e.NewStatus), e.Source, e.EventID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n events (0 for all)")

	return cmd
}
