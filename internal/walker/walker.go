// Package walker pages through one work unit's search results and collects
// detail-record identifiers.
package walker

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/metrics"
)

// Config controls URL construction and pacing.
type Config struct {
	SearchURL   string
	FilterParam string
	PageParam   string
	// DetailPattern matches detail links; its first capture group is the
	// record identifier.
	DetailPattern string
	PageDelay     time.Duration
}

// Result is the outcome of walking one work unit. On a page-fetch failure
// the identifiers collected so far are still returned alongside the error.
type Result struct {
	RecordIDs   []string
	PagesWalked int
	TotalPages  int
	Truncated   bool
}

var pageOfPattern = regexp.MustCompile(`(?i)Page\s+\d+\s+of\s+(\d+)`)

// Walker fetches and parses search-result pages sequentially, with a
// jittered politeness delay between pages.
type Walker struct {
	fetcher       directory.Fetcher
	cfg           Config
	detailPattern *regexp.Regexp
	pageParamLink *regexp.Regexp
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration)
}

// New builds a Walker. The detail pattern must contain one capture group.
func New(fetcher directory.Fetcher, cfg Config, logger *zap.Logger) (*Walker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	detailPattern, err := regexp.Compile(cfg.DetailPattern)
	if err != nil {
		return nil, fmt.Errorf("compile detail pattern: %w", err)
	}
	if detailPattern.NumSubexp() < 1 {
		return nil, fmt.Errorf("detail pattern %q needs a capture group", cfg.DetailPattern)
	}
	pageParamLink, err := regexp.Compile(regexp.QuoteMeta(cfg.PageParam) + `=(\d+)`)
	if err != nil {
		return nil, fmt.Errorf("compile page param pattern: %w", err)
	}
	return &Walker{
		fetcher:       fetcher,
		cfg:           cfg,
		detailPattern: detailPattern,
		pageParamLink: pageParamLink,
		logger:        logger,
		sleep:         SleepWithJitter,
	}, nil
}

// Walk collects record identifiers for the unit, in encounter order, until
// all pages are walked or maxRecords identifiers have been collected. A
// page-fetch failure halts the walk and returns the partial result with the
// error; earlier pages are not re-fetched within the same run.
func (w *Walker) Walk(ctx context.Context, unit directory.WorkUnit, maxRecords int) (Result, error) {
	result := Result{TotalPages: 1}

	for page := 1; page <= result.TotalPages && len(result.RecordIDs) < maxRecords; page++ {
		body, err := w.fetcher.Fetch(ctx, w.pageURL(unit, page))
		if err != nil {
			return result, fmt.Errorf("walk unit %d page %d: %w", unit.ID, page, err)
		}
		metrics.ObservePageFetched("search")

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return result, fmt.Errorf("walk unit %d page %d: parse: %w", unit.ID, page, err)
		}

		if page == 1 {
			result.TotalPages = w.totalPages(doc)
			w.logger.Debug("pagination resolved",
				zap.Int("unit_id", unit.ID),
				zap.Int("total_pages", result.TotalPages),
			)
		}

		ids := w.recordIDs(doc)
		result.RecordIDs = append(result.RecordIDs, ids...)
		result.PagesWalked++
		w.logger.Info("search page walked",
			zap.Int("unit_id", unit.ID),
			zap.Int("page", page),
			zap.Int("page_total", result.TotalPages),
			zap.Int("found", len(ids)),
		)

		if page < result.TotalPages && len(result.RecordIDs) < maxRecords {
			w.sleep(ctx, w.cfg.PageDelay)
		}
	}

	if len(result.RecordIDs) > maxRecords {
		result.RecordIDs = result.RecordIDs[:maxRecords]
		result.Truncated = true
	}
	return result, nil
}

func (w *Walker) pageURL(unit directory.WorkUnit, page int) string {
	params := url.Values{}
	params.Set(w.cfg.FilterParam, strconv.Itoa(unit.ID))
	params.Set(w.cfg.PageParam, strconv.Itoa(page))
	return w.cfg.SearchURL + "?" + params.Encode()
}

// totalPages reads the pagination indicator, preferring "Page X of Y" text
// and falling back to the largest page number referenced by page links.
func (w *Walker) totalPages(doc *goquery.Document) int {
	pagerText := doc.Find(".pager").Text()
	if pagerText == "" {
		pagerText = doc.Find(`[class*="pager"]`).Text()
	}
	if m := pageOfPattern.FindStringSubmatch(pagerText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}

	maxPage := 1
	doc.Find(`a[href*="` + w.cfg.PageParam + `="]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := w.pageParamLink.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
				maxPage = n
			}
		}
	})
	return maxPage
}

// recordIDs extracts every detail-link identifier on the page, deduplicated
// per page, in document order.
func (w *Walker) recordIDs(doc *goquery.Document) []string {
	var ids []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := w.detailPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if _, dup := seen[m[1]]; dup {
			return
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	})
	return ids
}

// SleepWithJitter waits for the base duration with ±30% jitter, never less
// than one second, so request timing looks organic. The wait is cut short by
// context cancellation. The session reuses it between detail fetches.
func SleepWithJitter(ctx context.Context, base time.Duration) {
	if base <= 0 {
		return
	}
	jitter := time.Duration((rand.Float64()*2 - 1) * 0.3 * float64(base))
	d := base + jitter
	if d < time.Second {
		d = time.Second
	}
	metrics.ObserveDelay(d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
