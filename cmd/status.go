package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/preintake/harvester/internal/harvest"
)

// newStatusCmd creates the 'status' subcommand, a read-only view of the
// checkpoint for operators deciding whether to reset or force a unit.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Prints checkpoint progress for the configured source",

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			progress, err := appInstance.ProgressStore().Load(cmd.Context(), cfg.Source.Name)
			if err != nil {
				return fmt.Errorf("load progress: %w", err)
			}

			stored, err := appInstance.Records().CountBySource(cmd.Context(), cfg.Source.Name)
			if err != nil {
				return fmt.Errorf("count stored records: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source:           %s\n", cfg.Source.Name)
			fmt.Fprintf(out, "records stored:   %d\n", stored)
			fmt.Fprintf(out, "units configured: %d\n", len(cfg.WorkUnits))
			fmt.Fprintf(out, "units completed:  %d\n", len(progress.CompletedUnits))
			fmt.Fprintf(out, "units abandoned:  %d\n", len(progress.AbandonedUnits))
			fmt.Fprintf(out, "units remaining:  %d\n", harvest.Remaining(cfg.WorkUnits, progress))
			fmt.Fprintf(out, "total inserted:   %d\n", progress.TotalInserted)
			fmt.Fprintf(out, "total skipped:    %d\n", progress.TotalSkipped)
			if !progress.LastRun.IsZero() {
				fmt.Fprintf(out, "last run:         %s\n", progress.LastRun.Format("2006-01-02 15:04:05 MST"))
			}

			for _, unit := range cfg.WorkUnits {
				state := "pending"
				switch {
				case progress.IsCompleted(unit.ID):
					state = "completed"
				case progress.IsAbandoned(unit.ID):
					state = "abandoned"
				case progress.FailedAttempts[unit.ID] > 0:
					state = fmt.Sprintf("pending (%d failed attempts)", progress.FailedAttempts[unit.ID])
				}
				fmt.Fprintf(out, "  [%3d] %-45s %s\n", unit.ID, unit.Name, state)
			}

			if next, ok := harvest.SelectNext(cfg.WorkUnits, progress); ok {
				fmt.Fprintf(out, "next unit:        [%d] %s\n", next.ID, next.Name)
			} else {
				fmt.Fprintln(out, "next unit:        none")
			}
			return nil
		},
	}
	return cmd
}
