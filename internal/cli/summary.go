package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"room-status-backend/internal/metrics"
)

func (r *runner) summaryCmd() *cobra.Command {
	var start, end string
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show turnaround metrics",
		Long: `Show average wait, provider and cleaning times, the turnover count and
rooms stuck waiting for cleaning. Bounds accept RFC3339 or YYYY-MM-DD[ HH:MM:SS] (UTC).

Examples:
  roomctl summary
  roomctl summary --start 2026-03-02 --end "2026-03-02 18:00:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := metrics.ParseWindow(start, end)
			if err != nil {
				return err
			}
			rt, err := r.runtime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			s, err := rt.Metrics.Summary(ctx, w)
			if err != nil {
				return fmt.Errorf("failed to compute summary: %w", err)
			}
			if cmd.Flags().Changed("stuck-threshold") {
				if s.StuckRoomIDs, err = rt.Metrics.RoomsStuckNeedingCleaning(ctx, threshold); err != nil {
					return fmt.Errorf("failed to find stuck rooms: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Window:        %s .. %s\n", bound(w.Start), bound(w.End))
			fmt.Fprintf(out, "Avg wait:      %s\n", metrics.FormatMMSS(s.AvgWaitSeconds))
			fmt.Fprintf(out, "Avg provider:  %s\n", metrics.FormatMMSS(s.AvgProviderSeconds))
			fmt.Fprintf(out, "Avg cleaning:  %s\n", metrics.FormatMMSS(s.AvgCleaningSeconds))
			fmt.Fprintf(out, "Turnovers:     %d\n", s.Turnovers)
			if len(s.StuckRoomIDs) == 0 {
				fmt.Fprintln(out, "Stuck rooms:   none")
				return nil
			}
			ids := make([]string, len(s.StuckRoomIDs))
			for i, id := range s.StuckRoomIDs {
				ids[i] = fmt.Sprintf("%d", id)
			}
			fmt.Fprintf(out, "Stuck rooms:   %s\n", color.New(color.FgRed).Sprint(strings.Join(ids, ", ")))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Window start (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "Window end (inclusive)")
	cmd.Flags().DurationVar(&threshold, "stuck-threshold", metrics.DefaultStuckThreshold, "How long a room may wait for cleaning")

	return cmd
}

func bound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.UTC().Format(time.RFC3339)
}
