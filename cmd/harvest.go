package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/harvest"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs one crawl
// session: pick the next pending work unit, walk it, and save the
// checkpoint. Schedulers invoke it repeatedly.
func newHarvestCmd() *cobra.Command {
	var unitID int
	var maxRecords int

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one crawl session over the next pending work unit",
		Long: `Selects the highest-priority pending work unit, walks its search
pages, extracts contact records from each detail page, inserts new records,
and commits the updated checkpoint. Use --unit to force a specific unit,
including one that was completed or abandoned.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger()

			session, err := appInstance.NewSession()
			if err != nil {
				return fmt.Errorf("build session: %w", err)
			}

			opts := sessionOptions(cmd, unitID, maxRecords)
			result, err := session.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("run session: %w", err)
			}

			logger.Info("harvest finished",
				zap.String("outcome", string(result.Outcome)),
				zap.Int("unit_id", result.Unit.ID),
				zap.Int("inserted", result.Stats.Inserted),
				zap.Int("duplicates", result.Stats.Duplicates),
				zap.Int("errors", result.Stats.Errors),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&unitID, "unit", 0, "force a specific work unit id, bypassing selection")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "override the per-run record cap")
	return cmd
}

// sessionOptions maps flags to session options. --unit is only forced when
// the flag was actually set, so unit id zero stays meaningless.
func sessionOptions(cmd *cobra.Command, unitID, maxRecords int) harvest.Options {
	opts := harvest.Options{MaxRecords: maxRecords}
	if cmd.Flags().Changed("unit") {
		opts.UnitID = &unitID
	}
	return opts
}
