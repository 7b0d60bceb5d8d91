package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"room-status-backend/internal/status"
)

func (r *runner) roomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage rooms",
	}

	cmd.AddCommand(r.roomCreateCmd())
	cmd.AddCommand(r.roomListCmd())
	cmd.AddCommand(r.roomDeleteCmd())

	return cmd
}

func (r *runner) roomCreateCmd() *cobra.Command {
	var initial string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a room",
		Long: `Create a room with an initial status.

Examples:
  roomctl room create "Exam 1"
  roomctl room create "Exam 2" --status maintenance`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := status.Parse(initial)
			if err != nil {
				return err
			}
			rt, err := r.runtime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			id, err := rt.Engine.CreateRoom(cmd.Context(), args[0], st)
			if err != nil {
				return fmt.Errorf("failed to create room: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), success("Created room %d: %s (%s)", id, args[0], st))
			return nil
		},
	}

	cmd.Flags().StringVarP(&initial, "status", "s", string(status.Available), "Initial status")

	return cmd
}

func (r *runner) roomListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms and their current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := r.runtime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			rooms, err := rt.Engine.ListRooms(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list rooms: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(rooms) == 0 {
				fmt.Fprintln(out, "No rooms found.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create your first room:")
				fmt.Fprintln(out, `  roomctl room create "Exam 1"`)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tUPDATED")
			fmt.Fprintln(w, "--\t----\t------\t-------")
			for _, room := range rooms {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", room.ID, room.Name, colorStatus(room.Status),
					room.UpdatedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func (r *runner) roomDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [room-id]",
		Short: "Delete a room with its visits and history",
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

			if err := rt.Engine.DeleteRoom(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete room: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), success("Deleted room %d", id))
			return nil
		},
	}
}

func parseRoomID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id %q", raw)
	}
	return id, nil
}
