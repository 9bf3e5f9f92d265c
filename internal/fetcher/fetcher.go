// Package fetcher implements the rate-limited HTTP fetcher using gocolly.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/metrics"
	"github.com/preintake/harvester/internal/retry"
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxAttempts bounds the total attempts per URL, including the first.
	MaxAttempts int
	// BackoffThrottled is the base delay after a 429/503; it doubles per
	// attempt. BackoffNetwork is the shorter base used for network errors.
	BackoffThrottled time.Duration
	BackoffNetwork   time.Duration
}

// Fetcher issues single HTTP GETs with bounded timeout and exponential
// backoff on transient failures. It holds no state between calls.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffThrottled == 0 {
		cfg.BackoffThrottled = 15 * time.Second
	}
	if cfg.BackoffNetwork == 0 {
		cfg.BackoffNetwork = 5 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch retrieves url, retrying 429/503 and network failures with
// exponential backoff. Any other non-2xx response fails immediately with a
// typed FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := retry.Do(ctx, retry.Config{
		MaxAttempts: f.cfg.MaxAttempts,
		BaseDelay:   f.cfg.BackoffNetwork,
		DelayFor:    f.delayFor,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.ObserveFetchRetry()
			metrics.ObserveDelay(wait)
			f.logger.Warn("fetch failed, backing off",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}, func() ([]byte, error) {
		return f.attempt(ctx, url)
	}, directory.IsTransientFetch)
	if err != nil {
		class := "terminal"
		if directory.IsTransientFetch(err) {
			class = "transient"
		}
		metrics.ObserveFetchFailure(class)
		return nil, err
	}
	return body, nil
}

// attempt performs one GET with a fresh collector clone.
func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, url); err != nil {
		if fetchErr == nil {
			fetchErr = err
		}
		return nil, &directory.FetchError{URL: url, StatusCode: status, Err: fetchErr}
	}
	if fetchErr != nil {
		return nil, &directory.FetchError{URL: url, StatusCode: status, Err: fetchErr}
	}
	return body, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) delayFor(err error) time.Duration {
	var fe *directory.FetchError
	if errors.As(err, &fe) && fe.StatusCode > 0 {
		return f.cfg.BackoffThrottled
	}
	return f.cfg.BackoffNetwork
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
