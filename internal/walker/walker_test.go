package walker

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

var testCfg = Config{
	SearchURL:     "https://directory.test/search",
	FilterParam:   "PracticeArea",
	PageParam:     "PageNumber",
	DetailPattern: `/attorney/Licensee/Detail/(\d+)`,
	PageDelay:     time.Millisecond,
}

// fetchFunc adapts a function to the directory.Fetcher interface.
type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// searchPage renders a result page with ids and a "Page X of Y" pager.
func searchPage(page, totalPages int, ids []string) []byte {
	body := fmt.Sprintf(`<html><body><div class="pager">Page %d of %d</div><ul>`, page, totalPages)
	for _, id := range ids {
		body += fmt.Sprintf(`<li><a href="/attorney/Licensee/Detail/%s">entry</a></li>`, id)
	}
	body += `</ul></body></html>`
	return []byte(body)
}

func pageIDs(page, count int) []string {
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, strconv.Itoa(page*1000+i))
	}
	return ids
}

func requestedPage(t *testing.T, rawURL string) int {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	page, err := strconv.Atoi(u.Query().Get("PageNumber"))
	require.NoError(t, err)
	return page
}

func newTestWalker(t *testing.T, fetch fetchFunc) *Walker {
	t.Helper()
	w, err := New(fetch, testCfg, nil)
	require.NoError(t, err)
	w.sleep = func(context.Context, time.Duration) {}
	return w
}

func TestWalkStopsAtMaxRecordsMidWalk(t *testing.T) {
	var fetched []int
	w := newTestWalker(t, func(_ context.Context, rawURL string) ([]byte, error) {
		page := requestedPage(t, rawURL)
		fetched = append(fetched, page)
		return searchPage(page, 3, pageIDs(page, 10)), nil
	})

	result, err := w.Walk(context.Background(), directory.WorkUnit{ID: 51}, 25)
	require.NoError(t, err)

	// Page 3 is fetched whole because the cap had not been reached when the
	// walk moved past page 2; the surplus is trimmed afterwards.
	assert.Equal(t, []int{1, 2, 3}, fetched)
	assert.Len(t, result.RecordIDs, 25)
	assert.Equal(t, 3, result.PagesWalked)
	assert.Equal(t, 3, result.TotalPages)
	assert.True(t, result.Truncated)
}

func TestWalkStopsFetchingOnceCapReached(t *testing.T) {
	var fetched []int
	w := newTestWalker(t, func(_ context.Context, rawURL string) ([]byte, error) {
		page := requestedPage(t, rawURL)
		fetched = append(fetched, page)
		return searchPage(page, 5, pageIDs(page, 10)), nil
	})

	result, err := w.Walk(context.Background(), directory.WorkUnit{ID: 51}, 20)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, fetched)
	assert.Len(t, result.RecordIDs, 20)
	assert.Equal(t, 2, result.PagesWalked)
	assert.False(t, result.Truncated)
}

func TestWalkSinglePage(t *testing.T) {
	w := newTestWalker(t, func(_ context.Context, rawURL string) ([]byte, error) {
		return searchPage(1, 1, []string{"42", "43"}), nil
	})

	result, err := w.Walk(context.Background(), directory.WorkUnit{ID: 9}, 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "43"}, result.RecordIDs)
	assert.Equal(t, 1, result.PagesWalked)
}

func TestWalkDeduplicatesWithinPage(t *testing.T) {
	w := newTestWalker(t, func(_ context.Context, _ string) ([]byte, error) {
		return searchPage(1, 1, []string{"7", "7", "8", "7"}), nil
	})

	result, err := w.Walk(context.Background(), directory.WorkUnit{ID: 9}, 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, result.RecordIDs)
}

func TestWalkPaginationFallbackToPageLinks(t *testing.T) {
	page1 := []byte(`<html><body>
<a href="/attorney/Licensee/Detail/1">one</a>
<a href="?PracticeArea=51&PageNumber=2">2</a>
<a href="?PracticeArea=51&PageNumber=4">4</a>
<a href="?PracticeArea=51&PageNumber=3">3</a>
</body></html>`)

	var fetched []int
	w := newTestWalker(t, func(_ context.Context, rawURL string) ([]byte, error) {
		page := requestedPage(t, rawURL)
		fetched = append(fetched, page)
		if page == 1 {
			return page1, nil
		}
		return searchPage(page, 4, pageIDs(page, 1)), nil
	})

	result, err := w.Walk(context.Background(), directory.WorkUnit{ID: 51}, 500)
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalPages)
	assert.Equal(t, []int{1, 2, 3, 4}, fetched)
	assert.Len(t, result.RecordIDs, 4)
}

func TestWalkReturnsPartialResultOnFetchFailure(t *testing.T) {
	w := newTestWalker(t, func(_ context.Context, rawURL string) ([]byte, error) {
		if requestedPage(t, rawURL) == 2 {
			return nil, fmt.Errorf("boom")
		}
		return searchPage(1, 3, []string{"1", "2", "3"}), nil
	})

	result, err := w.Walk(context.Background(), directory.WorkUnit{ID: 51}, 500)
	require.Error(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, result.RecordIDs)
	assert.Equal(t, 1, result.PagesWalked)
}

func TestNewRejectsDetailPatternWithoutCaptureGroup(t *testing.T) {
	cfg := testCfg
	cfg.DetailPattern = `/attorney/Licensee/Detail/\d+`
	_, err := New(fetchFunc(nil), cfg, nil)
	require.Error(t, err)
}

func TestSleepWithJitterRespectsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	SleepWithJitter(ctx, 30*time.Second)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleepWithJitterZeroBaseReturnsImmediately(t *testing.T) {
	start := time.Now()
	SleepWithJitter(context.Background(), 0)
	assert.Less(t, time.Since(start), time.Second)
}
