package harvest

import (
	"context"
	"fmt"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/extractor"
	"github.com/preintake/harvester/internal/metrics"
)

// DetailSource fetches one detail page by record identifier and extracts
// its profile. It is the production ProfileSource.
type DetailSource struct {
	fetcher   directory.Fetcher
	extractor *extractor.Extractor
	urlPrefix string
}

// NewDetailSource builds a DetailSource over the directory's detail URL
// shape.
func NewDetailSource(fetcher directory.Fetcher, ex *extractor.Extractor, urlPrefix string) *DetailSource {
	return &DetailSource{
		fetcher:   fetcher,
		extractor: ex,
		urlPrefix: urlPrefix,
	}
}

// Profile fetches and parses the record's detail page. ErrNoEmail passes
// through untouched so the caller can count it separately from errors.
func (s *DetailSource) Profile(ctx context.Context, recordID string) (extractor.Profile, error) {
	body, err := s.fetcher.Fetch(ctx, s.urlPrefix+recordID)
	if err != nil {
		return extractor.Profile{}, fmt.Errorf("detail %s: %w", recordID, err)
	}
	metrics.ObservePageFetched("detail")
	return s.extractor.Extract(body)
}
