package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/directory"
)

// newResetCmd creates the 'reset' subcommand. Abandonment is permanent as
// far as automatic selection is concerned, so putting a unit back into
// rotation is an explicit operator action.
func newResetCmd() *cobra.Command {
	var unitID int

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Returns a work unit to pending in the checkpoint",
		Long: `Clears a unit's completed or abandoned marker and its failure streak,
so the next harvest run can select it again. Stored records are untouched;
re-crawling a reset unit only inserts contacts not already present.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			if !cmd.Flags().Changed("unit") {
				return fmt.Errorf("--unit is required")
			}
			if _, ok := directory.UnitByID(cfg.WorkUnits, unitID); !ok {
				return fmt.Errorf("unknown work unit id %d", unitID)
			}

			progress, err := appInstance.ProgressStore().Load(cmd.Context(), cfg.Source.Name)
			if err != nil {
				return fmt.Errorf("load progress: %w", err)
			}

			progress.ClearUnit(unitID)
			if err := appInstance.ProgressStore().Save(cmd.Context(), cfg.Source.Name, progress); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}

			appInstance.Logger().Info("work unit reset to pending",
				zap.Int("unit_id", unitID),
				zap.String("source", cfg.Source.Name),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&unitID, "unit", 0, "work unit id to reset (required)")
	return cmd
}
