// Package report defines the run-summary contract with the external
// reporting collaborator and the notifier implementations that deliver it.
// Notification is fire-and-forget: a run never fails because its report
// could not be delivered.
package report

import (
	"context"
	"time"

	"github.com/preintake/harvester/internal/directory"
)

// Stats is the per-run counter block included in a Summary.
type Stats struct {
	PagesWalked        int `json:"pagesWalked"`
	RecordsFound       int `json:"recordsFound"`
	WithProtectedField int `json:"withProtectedField"`
	WithoutProtected   int `json:"withoutProtectedField"`
	DuplicatesSkipped  int `json:"duplicatesSkipped"`
	Errors             int `json:"errors"`
	Inserted           int `json:"inserted"`
}

// Totals is the cross-run block included in a Summary.
type Totals struct {
	TotalRecordsStored int64 `json:"totalRecordsStored"`
	UnitsCompleted     int   `json:"unitsCompleted"`
	UnitsRemaining     int   `json:"unitsRemaining"`
	UnitsAbandoned     int   `json:"unitsAbandoned"`
}

// Summary is the structured run report emitted once per invocation.
type Summary struct {
	WorkUnitID       int       `json:"workUnitId"`
	WorkUnitName     string    `json:"workUnitName"`
	Succeeded        bool      `json:"succeeded"`
	ErrorRatePercent float64   `json:"errorRatePercent"`
	RunAt            time.Time `json:"runAt"`
	Stats            Stats     `json:"stats"`
	Totals           Totals    `json:"totals"`
}

// Alert is emitted when a work unit is permanently abandoned, so an
// operator can investigate and manually clear the abandonment.
type Alert struct {
	WorkUnitID     int    `json:"workUnitId"`
	WorkUnitName   string `json:"workUnitName"`
	FailedAttempts int    `json:"failedAttempts"`
	LastRunStats   Stats  `json:"lastRunStats"`
}

// Notifier delivers run reports to the operator-facing channel.
type Notifier interface {
	SendSummary(ctx context.Context, summary Summary) error
	SendAlert(ctx context.Context, alert Alert) error
	Close() error
}

// StatsFromRun converts the pipeline's counters into the report block.
func StatsFromRun(s directory.RunStats) Stats {
	return Stats{
		PagesWalked:        s.PagesWalked,
		RecordsFound:       s.RecordsFound,
		WithProtectedField: s.WithEmail,
		WithoutProtected:   s.WithoutEmail,
		DuplicatesSkipped:  s.Duplicates,
		Errors:             s.Errors,
		Inserted:           s.Inserted,
	}
}
