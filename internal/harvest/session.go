// Package harvest runs one crawl session: select a work unit, walk its
// result pages, extract and persist contacts, and commit the checkpoint.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/extractor"
	"github.com/preintake/harvester/internal/metrics"
	"github.com/preintake/harvester/internal/persist"
	"github.com/preintake/harvester/internal/report"
	"github.com/preintake/harvester/internal/walker"
)

// Outcome classifies how a session ended. None of these are process
// failures; the process only exits non-zero when the checkpoint cannot be
// loaded or saved, or when no unit could be evaluated at all.
type Outcome string

const (
	// OutcomeCompleted means the unit's error rate stayed under threshold.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRetry means the error rate tripped the threshold but the unit
	// stays pending for a future run.
	OutcomeRetry Outcome = "retry"
	// OutcomeAbandoned means the unit hit its final consecutive failure and
	// was permanently retired.
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeAllComplete means no pending unit remains and none were
	// abandoned along the way to blame.
	OutcomeAllComplete Outcome = "all_complete"
	// OutcomeAllAbandoned means the only units left are abandoned ones.
	OutcomeAllAbandoned Outcome = "all_abandoned"
)

// Lister walks one unit's result pages. *walker.Walker is the production
// implementation.
type Lister interface {
	Walk(ctx context.Context, unit directory.WorkUnit, maxRecords int) (walker.Result, error)
}

// ProfileSource resolves one record identifier to an extracted profile.
type ProfileSource interface {
	Profile(ctx context.Context, recordID string) (extractor.Profile, error)
}

// Notifier is the session's view of the reporting collaborator; failures
// are logged and swallowed.
type Notifier interface {
	SendSummary(ctx context.Context, summary report.Summary) error
	SendAlert(ctx context.Context, alert report.Alert) error
}

// Config holds the session's policy knobs.
type Config struct {
	Source            string
	State             string
	MaxRecords        int
	RecordDelay       time.Duration
	ErrorThreshold    float64
	MaxFailedAttempts int
	BatchSize         int
}

// Options are per-invocation inputs.
type Options struct {
	// UnitID forces a specific unit, bypassing eligibility. Forced runs
	// allow an operator to re-crawl a completed or abandoned unit.
	UnitID *int
	// MaxRecords caps identifiers collected this run; zero uses the
	// configured default.
	MaxRecords int
}

// RunResult is what a finished session reports back to the command layer.
type RunResult struct {
	Outcome   Outcome
	Unit      directory.WorkUnit
	Stats     directory.RunStats
	ErrorRate float64
}

// Session wires the pipeline together. Everything it touches is an
// interface so the state machine is testable without a network or a
// database.
type Session struct {
	cfg           Config
	units         []directory.WorkUnit
	lister        Lister
	profiles      ProfileSource
	records       directory.RecordStore
	progressStore directory.ProgressStore
	notifier      Notifier
	clock         directory.Clock
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration)
}

// New builds a Session.
func New(
	cfg Config,
	units []directory.WorkUnit,
	lister Lister,
	profiles ProfileSource,
	records directory.RecordStore,
	progressStore directory.ProgressStore,
	notifier Notifier,
	clock directory.Clock,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:           cfg,
		units:         units,
		lister:        lister,
		profiles:      profiles,
		records:       records,
		progressStore: progressStore,
		notifier:      notifier,
		clock:         clock,
		logger:        logger,
		sleep:         walker.SleepWithJitter,
	}
}

// Run executes one crawl session. The checkpoint is loaded once here,
// mutated only in memory, and saved exactly once before returning; an
// externally killed run leaves the checkpoint untouched and the next
// invocation re-walks the same unit safely behind the dedup check.
func (s *Session) Run(ctx context.Context, opts Options) (RunResult, error) {
	progress, err := s.progressStore.Load(ctx, s.cfg.Source)
	if err != nil {
		return RunResult{}, fmt.Errorf("load progress: %w", err)
	}

	unit, outcome, err := s.selectUnit(opts, progress)
	if err != nil {
		return RunResult{}, err
	}
	if outcome != "" {
		s.logger.Info("no eligible work unit", zap.String("outcome", string(outcome)))
		metrics.ObserveRun(string(outcome))
		return RunResult{Outcome: outcome}, nil
	}

	s.logger.Info("work unit selected",
		zap.Int("unit_id", unit.ID),
		zap.String("unit_name", unit.Name),
		zap.Int("rank", unit.Rank),
	)

	stats := s.harvestUnit(ctx, unit, opts)
	errorRate := stats.ErrorRate()

	var result RunResult
	result.Unit = unit
	result.Stats = stats
	result.ErrorRate = errorRate

	if errorRate < s.cfg.ErrorThreshold {
		progress.MarkCompleted(unit.ID)
		result.Outcome = OutcomeCompleted
		s.logger.Info("work unit completed",
			zap.Int("unit_id", unit.ID),
			zap.Float64("error_rate", errorRate),
		)
	} else {
		attempts, abandoned := progress.RecordFailure(unit.ID, s.cfg.MaxFailedAttempts)
		if abandoned {
			result.Outcome = OutcomeAbandoned
			s.logger.Warn("work unit permanently abandoned",
				zap.Int("unit_id", unit.ID),
				zap.Int("failed_attempts", attempts),
			)
			s.sendAlert(ctx, report.Alert{
				WorkUnitID:     unit.ID,
				WorkUnitName:   unit.Name,
				FailedAttempts: attempts,
				LastRunStats:   report.StatsFromRun(stats),
			})
		} else {
			result.Outcome = OutcomeRetry
			s.logger.Warn("high error rate, unit stays pending",
				zap.Int("unit_id", unit.ID),
				zap.Float64("error_rate", errorRate),
				zap.Int("failed_attempts", attempts),
				zap.Int("max_failed_attempts", s.cfg.MaxFailedAttempts),
			)
		}
	}

	progress.TotalInserted += int64(stats.Inserted)
	progress.TotalSkipped += int64(stats.WithoutEmail + stats.Duplicates)
	progress.LastRun = s.clock.Now()
	if err := s.progressStore.Save(ctx, s.cfg.Source, progress); err != nil {
		// Without a saved checkpoint the run made no durable scheduling
		// progress; this is the one pipeline failure that fails the process.
		return result, fmt.Errorf("save progress: %w", err)
	}

	s.sendSummary(ctx, unit, result, progress)
	metrics.ObserveRun(string(result.Outcome))
	return result, nil
}

// selectUnit resolves the unit to crawl. A forced id must exist in the
// configured units; otherwise eligibility rules apply. A non-empty outcome
// means the session is over before it started: all work is either done or
// abandoned.
func (s *Session) selectUnit(opts Options, progress directory.Progress) (directory.WorkUnit, Outcome, error) {
	if opts.UnitID != nil {
		unit, ok := directory.UnitByID(s.units, *opts.UnitID)
		if !ok {
			return directory.WorkUnit{}, "", fmt.Errorf("unknown work unit id %d", *opts.UnitID)
		}
		return unit, "", nil
	}

	unit, ok := SelectNext(s.units, progress)
	if ok {
		return unit, "", nil
	}
	if len(progress.AbandonedUnits) > 0 {
		return directory.WorkUnit{}, OutcomeAllAbandoned, nil
	}
	return directory.WorkUnit{}, OutcomeAllComplete, nil
}

// harvestUnit runs the walk, extract, and persist pipeline over one unit and
// returns the run counters. Individual record failures never abort the
// pipeline; they are absorbed into the stats for the circuit breaker to
// judge.
func (s *Session) harvestUnit(ctx context.Context, unit directory.WorkUnit, opts Options) directory.RunStats {
	var stats directory.RunStats

	maxRecords := opts.MaxRecords
	if maxRecords <= 0 {
		maxRecords = s.cfg.MaxRecords
	}

	walkResult, walkErr := s.lister.Walk(ctx, unit, maxRecords)
	stats.PagesWalked = walkResult.PagesWalked
	stats.RecordsFound = len(walkResult.RecordIDs)
	if walkErr != nil {
		stats.Errors++
		s.logger.Error("walk halted, continuing with partial results",
			zap.Int("unit_id", unit.ID),
			zap.Int("found", stats.RecordsFound),
			zap.Error(walkErr),
		)
	}

	batcher := persist.New(s.records, s.clock, s.cfg.BatchSize, s.logger)

	for i, recordID := range walkResult.RecordIDs {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			s.sleep(ctx, s.cfg.RecordDelay)
		}

		profile, err := s.profiles.Profile(ctx, recordID)
		if err != nil {
			if errors.Is(err, extractor.ErrNoEmail) {
				stats.WithoutEmail++
			} else {
				stats.Errors++
				s.logger.Error("detail record failed",
					zap.String("record_id", recordID),
					zap.Error(err),
				)
			}
			continue
		}

		stats.WithEmail++
		if profile.Website != "" {
			stats.WithWebsite++
		}

		// Duplicate and insertion counts come back from the batcher after
		// the final flush.
		_, err = batcher.Add(ctx, directory.Record{
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			Firm:      profile.Firm,
			Email:     profile.Email,
			Website:   profile.Website,
			State:     s.cfg.State,
			Source:    s.cfg.Source,
			UnitID:    unit.ID,
			UnitName:  unit.Name,
			RecordID:  recordID,
		})
		if err != nil {
			stats.Errors++
			s.logger.Error("persist failed",
				zap.String("record_id", recordID),
				zap.Error(err),
			)
		}
	}

	if err := batcher.Flush(ctx); err != nil {
		s.logger.Error("final batch flush failed", zap.Error(err))
	}

	// Every record lost to a failed flush counts as a run error, so a
	// store outage pushes the error rate over threshold instead of letting
	// the unit complete with nothing durably stored.
	stats.Errors += batcher.Dropped()
	stats.Inserted = batcher.Inserted()
	stats.Duplicates = batcher.Duplicates()
	return stats
}

func (s *Session) sendAlert(ctx context.Context, alert report.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendAlert(ctx, alert); err != nil {
		s.logger.Warn("abandonment alert delivery failed", zap.Error(err))
	}
}

func (s *Session) sendSummary(ctx context.Context, unit directory.WorkUnit, result RunResult, progress directory.Progress) {
	if s.notifier == nil {
		return
	}

	totalStored, err := s.records.CountBySource(ctx, s.cfg.Source)
	if err != nil {
		s.logger.Warn("store count unavailable for summary", zap.Error(err))
	}

	summary := report.Summary{
		WorkUnitID:       unit.ID,
		WorkUnitName:     unit.Name,
		Succeeded:        result.Outcome == OutcomeCompleted,
		ErrorRatePercent: result.ErrorRate * 100,
		RunAt:            s.clock.Now(),
		Stats:            report.StatsFromRun(result.Stats),
		Totals: report.Totals{
			TotalRecordsStored: totalStored,
			UnitsCompleted:     len(progress.CompletedUnits),
			UnitsRemaining:     Remaining(s.units, progress),
			UnitsAbandoned:     len(progress.AbandonedUnits),
		},
	}
	if err := s.notifier.SendSummary(ctx, summary); err != nil {
		s.logger.Warn("run summary delivery failed", zap.Error(err))
	}
}
