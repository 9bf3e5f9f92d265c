package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/extractor"
	"github.com/preintake/harvester/internal/metrics"
	"github.com/preintake/harvester/internal/report"
	"github.com/preintake/harvester/internal/store/memory"
	"github.com/preintake/harvester/internal/walker"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// stubLister returns a canned walk result per unit id.
type stubLister struct {
	results map[int]walker.Result
	errs    map[int]error
}

func (l *stubLister) Walk(_ context.Context, unit directory.WorkUnit, maxRecords int) (walker.Result, error) {
	result := l.results[unit.ID]
	if len(result.RecordIDs) > maxRecords {
		result.RecordIDs = result.RecordIDs[:maxRecords]
		result.Truncated = true
	}
	return result, l.errs[unit.ID]
}

// stubProfiles resolves record ids to fixed profiles or errors.
type stubProfiles struct {
	profiles map[string]extractor.Profile
	errs     map[string]error
}

func (p *stubProfiles) Profile(_ context.Context, recordID string) (extractor.Profile, error) {
	if err, ok := p.errs[recordID]; ok {
		return extractor.Profile{}, err
	}
	profile, ok := p.profiles[recordID]
	if !ok {
		return extractor.Profile{}, fmt.Errorf("unknown record %s", recordID)
	}
	return profile, nil
}

func profileFor(id string) extractor.Profile {
	return extractor.Profile{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     id + "@firm.test",
	}
}

type sessionFixture struct {
	session  *Session
	records  *memory.RecordStore
	progress *memory.ProgressStore
	notifier *report.MockNotifier
}

func newFixture(t *testing.T, lister Lister, profiles ProfileSource) *sessionFixture {
	t.Helper()

	records := memory.NewRecordStore()
	progress := memory.NewProgressStore()
	notifier := &report.MockNotifier{}
	notifier.On("SendSummary", mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("SendAlert", mock.Anything, mock.Anything).Return(nil).Maybe()

	s := New(
		Config{
			Source:            "calbar",
			State:             "CA",
			MaxRecords:        500,
			RecordDelay:       time.Millisecond,
			ErrorThreshold:    0.10,
			MaxFailedAttempts: 3,
			BatchSize:         500,
		},
		testUnits(),
		lister,
		profiles,
		records,
		progress,
		notifier,
		fixedClock{at: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)},
		nil,
	)
	s.sleep = func(context.Context, time.Duration) {}

	return &sessionFixture{session: s, records: records, progress: progress, notifier: notifier}
}

func (f *sessionFixture) loadProgress(t *testing.T) directory.Progress {
	t.Helper()
	p, err := f.progress.Load(context.Background(), "calbar")
	require.NoError(t, err)
	return p
}

func (f *sessionFixture) seedProgress(t *testing.T, p directory.Progress) {
	t.Helper()
	require.NoError(t, f.progress.Save(context.Background(), "calbar", p))
}

func cleanRunInputs(ids ...string) (*stubLister, *stubProfiles) {
	profiles := make(map[string]extractor.Profile, len(ids))
	for _, id := range ids {
		profiles[id] = profileFor(id)
	}
	lister := &stubLister{results: map[int]walker.Result{
		51: {RecordIDs: ids, PagesWalked: 1, TotalPages: 1},
	}}
	return lister, &stubProfiles{profiles: profiles}
}

func TestRunCompletesUnitOnCleanRun(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2", "3")
	f := newFixture(t, lister, profiles)

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 51, result.Unit.ID)
	assert.Equal(t, 3, result.Stats.Inserted)
	assert.Zero(t, result.Stats.Errors)

	saved := f.loadProgress(t)
	assert.True(t, saved.IsCompleted(51))
	assert.Equal(t, int64(3), saved.TotalInserted)
	assert.False(t, saved.LastRun.IsZero())

	assert.Len(t, f.records.Records(), 3)
	f.notifier.AssertCalled(t, "SendSummary", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything)
}

func TestRunSummaryReportsTotals(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2")
	f := newFixture(t, lister, profiles)

	var sent report.Summary
	f.notifier.ExpectedCalls = nil
	f.notifier.On("SendSummary", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(report.Summary) }).
		Return(nil)

	_, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 51, sent.WorkUnitID)
	assert.True(t, sent.Succeeded)
	assert.Equal(t, int64(2), sent.Totals.TotalRecordsStored)
	assert.Equal(t, 1, sent.Totals.UnitsCompleted)
	assert.Equal(t, 2, sent.Totals.UnitsRemaining)
	assert.Equal(t, 2, sent.Stats.Inserted)
}

func TestRunMissingEmailIsSkipNotError(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2")
	profiles.errs = map[string]error{"2": extractor.ErrNoEmail}
	f := newFixture(t, lister, profiles)

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 1, result.Stats.WithEmail)
	assert.Equal(t, 1, result.Stats.WithoutEmail)
	assert.Zero(t, result.Stats.Errors)

	saved := f.loadProgress(t)
	assert.Equal(t, int64(1), saved.TotalSkipped)
}

func TestRunHighErrorRateKeepsUnitPending(t *testing.T) {
	t.Parallel()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("r%d", i)
	}
	lister, profiles := cleanRunInputs(ids...)
	profiles.errs = map[string]error{}
	for i := 0; i < 6; i++ {
		profiles.errs[ids[i]] = errors.New("fetch blew up")
	}
	f := newFixture(t, lister, profiles)

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	// 6 errors over 50 found is 12%, over the 10% threshold.
	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.InDelta(t, 0.12, result.ErrorRate, 1e-9)

	saved := f.loadProgress(t)
	assert.False(t, saved.IsCompleted(51))
	assert.False(t, saved.IsAbandoned(51))
	assert.Equal(t, 1, saved.FailedAttempts[51])

	// The 44 successful records are still inserted.
	assert.Equal(t, 44, result.Stats.Inserted)
	f.notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything)
}

func TestRunFinalFailureAbandonsUnitAndAlerts(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2")
	profiles.errs = map[string]error{
		"1": errors.New("down"),
		"2": errors.New("down"),
	}
	f := newFixture(t, lister, profiles)
	f.seedProgress(t, directory.Progress{FailedAttempts: map[int]int{51: 2}})

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAbandoned, result.Outcome)
	saved := f.loadProgress(t)
	assert.True(t, saved.IsAbandoned(51))
	assert.Equal(t, 3, saved.FailedAttempts[51])

	f.notifier.AssertCalled(t, "SendAlert", mock.Anything, mock.MatchedBy(func(a report.Alert) bool {
		return a.WorkUnitID == 51 && a.FailedAttempts == 3
	}))

	// The next run must move on to the next unit by rank.
	lister.results[34] = walker.Result{RecordIDs: nil, PagesWalked: 1, TotalPages: 1}
	next, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 34, next.Unit.ID)
}

func TestRunForcedUnitBypassesEligibility(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1")
	f := newFixture(t, lister, profiles)
	f.seedProgress(t, directory.Progress{AbandonedUnits: []int{51}})

	unitID := 51
	result, err := f.session.Run(context.Background(), Options{UnitID: &unitID})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 51, result.Unit.ID)
	// A clean forced run clears the abandonment.
	saved := f.loadProgress(t)
	assert.True(t, saved.IsCompleted(51))
	assert.False(t, saved.IsAbandoned(51))
}

func TestRunForcedUnknownUnitFails(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1")
	f := newFixture(t, lister, profiles)

	unitID := 999
	_, err := f.session.Run(context.Background(), Options{UnitID: &unitID})
	require.Error(t, err)
}

func TestRunAllCompleteOutcome(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs()
	f := newFixture(t, lister, profiles)
	f.seedProgress(t, directory.Progress{CompletedUnits: []int{51, 34, 9}})

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllComplete, result.Outcome)
}

func TestRunAllAbandonedOutcome(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs()
	f := newFixture(t, lister, profiles)
	f.seedProgress(t, directory.Progress{
		CompletedUnits: []int{51, 34},
		AbandonedUnits: []int{9},
	})

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllAbandoned, result.Outcome)
}

func TestRunIdempotentReRunInsertsNothing(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2", "3")
	f := newFixture(t, lister, profiles)
	unitID := 51

	first, err := f.session.Run(context.Background(), Options{UnitID: &unitID})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.Inserted)

	second, err := f.session.Run(context.Background(), Options{UnitID: &unitID})
	require.NoError(t, err)
	assert.Zero(t, second.Stats.Inserted)
	assert.Equal(t, 3, second.Stats.Duplicates)
	assert.Len(t, f.records.Records(), 3)
}

func TestRunWalkFailureKeepsPartialResults(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2")
	lister.errs = map[int]error{51: errors.New("page 3 failed")}
	f := newFixture(t, lister, profiles)

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	// The walk failure counts as one error but the collected ids still
	// flow through the pipeline.
	assert.Equal(t, 1, result.Stats.Errors)
	assert.Equal(t, 2, result.Stats.Inserted)
}

func TestRunRespectsMaxRecordsOverride(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1", "2", "3")
	f := newFixture(t, lister, profiles)

	result, err := f.session.Run(context.Background(), Options{MaxRecords: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.RecordsFound)
	assert.Equal(t, 2, result.Stats.Inserted)
}

type failingRecordStore struct {
	*memory.RecordStore
}

func (s *failingRecordStore) InsertRecords(context.Context, []directory.Record) error {
	return errors.New("store unavailable")
}

func TestRunFlushFailureDoesNotCompleteUnit(t *testing.T) {
	t.Parallel()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("r%d", i)
	}
	lister, profiles := cleanRunInputs(ids...)
	f := newFixture(t, lister, profiles)
	f.session.records = &failingRecordStore{memory.NewRecordStore()}

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)

	// Nothing was durably stored, so every lost record is a run error and
	// the unit must stay pending for a future invocation.
	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.Equal(t, 50, result.Stats.Errors)
	assert.Zero(t, result.Stats.Inserted)
	assert.InDelta(t, 1.0, result.ErrorRate, 1e-9)

	saved := f.loadProgress(t)
	assert.False(t, saved.IsCompleted(51))
	assert.Equal(t, 1, saved.FailedAttempts[51])
	assert.Zero(t, saved.TotalInserted)
}

type failingProgressStore struct {
	*memory.ProgressStore
}

func (s *failingProgressStore) Save(context.Context, string, directory.Progress) error {
	return errors.New("checkpoint write failed")
}

func TestRunSaveFailureIsFatal(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1")
	f := newFixture(t, lister, profiles)
	f.session.progressStore = &failingProgressStore{memory.NewProgressStore()}

	_, err := f.session.Run(context.Background(), Options{})
	require.Error(t, err)
}

func TestRunNotifierFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	lister, profiles := cleanRunInputs("1")
	f := newFixture(t, lister, profiles)
	f.notifier.ExpectedCalls = nil
	f.notifier.On("SendSummary", mock.Anything, mock.Anything).Return(errors.New("topic gone"))
	f.notifier.On("SendAlert", mock.Anything, mock.Anything).Return(errors.New("topic gone")).Maybe()

	result, err := f.session.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
}
