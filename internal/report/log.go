package report

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier emits reports as structured logs. It is the default notifier
// and the fallback when no delivery channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier wires a zap logger to the Notifier interface.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// SendSummary logs the run summary.
func (n *LogNotifier) SendSummary(_ context.Context, summary Summary) error {
	n.logger.Info("run summary",
		zap.Int("unit_id", summary.WorkUnitID),
		zap.String("unit_name", summary.WorkUnitName),
		zap.Bool("succeeded", summary.Succeeded),
		zap.Float64("error_rate_pct", summary.ErrorRatePercent),
		zap.Int("pages_walked", summary.Stats.PagesWalked),
		zap.Int("records_found", summary.Stats.RecordsFound),
		zap.Int("with_email", summary.Stats.WithProtectedField),
		zap.Int("without_email", summary.Stats.WithoutProtected),
		zap.Int("duplicates", summary.Stats.DuplicatesSkipped),
		zap.Int("errors", summary.Stats.Errors),
		zap.Int("inserted", summary.Stats.Inserted),
		zap.Int64("total_stored", summary.Totals.TotalRecordsStored),
		zap.Int("units_completed", summary.Totals.UnitsCompleted),
		zap.Int("units_remaining", summary.Totals.UnitsRemaining),
		zap.Int("units_abandoned", summary.Totals.UnitsAbandoned),
	)
	return nil
}

// SendAlert logs the abandonment alert at warning level.
func (n *LogNotifier) SendAlert(_ context.Context, alert Alert) error {
	n.logger.Warn("work unit permanently abandoned",
		zap.Int("unit_id", alert.WorkUnitID),
		zap.String("unit_name", alert.WorkUnitName),
		zap.Int("failed_attempts", alert.FailedAttempts),
		zap.Int("last_errors", alert.LastRunStats.Errors),
		zap.Int("last_records_found", alert.LastRunStats.RecordsFound),
	)
	return nil
}

// Close implements the Notifier interface; it performs no action.
func (n *LogNotifier) Close() error { return nil }
