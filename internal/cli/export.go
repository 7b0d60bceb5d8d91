package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"room-status-backend/internal/export"
	"room-status-backend/internal/metrics"
)

func (r *runner) exportCmd() *cobra.Command {
	var start, end, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rooms, status history and metrics to an Excel workbook",
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

			data, err := export.Collect(cmd.Context(), rt.Store, rt.Metrics, w)
			if err != nil {
				return fmt.Errorf("failed to collect history: %w", err)
			}
			body, err := export.Workbook(data)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = fmt.Sprintf("room_history_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
			}
			if err := os.WriteFile(outPath, body, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success("Exported %d rooms and %d transitions to %s",
				len(data.Rooms), len(data.History), outPath))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Window start (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "Window end (inclusive)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default room_history_<timestamp>.xlsx)")

	return cmd
}
