package crm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/metrics"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// ErrUnavailable is returned when every request-shape variant failed for the
// first page and no records could be obtained at all.
var ErrUnavailable = errors.New("crm: all request variants failed")

// PageAttempter executes a single page request for a variant.
type PageAttempter interface {
	AttemptPage(ctx context.Context, t model.Tenant, v *Variant, q SearchQuery, pr PageRequest, limit int) (*PageResult, error)
}

// Fetcher drives a resilient paginated search: variants are tried in order
// on the first page only, the winner is locked in for the rest of the call,
// rate-limit signals retry the same page with exponential backoff, and any
// later-page failure truncates the loop keeping what was accumulated.
type Fetcher struct {
	client        PageAttempter
	pageSize      int
	maxAttempts   int
	baseBackoff   time.Duration
	backoffFactor float64
	maxJitter     time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger

	// sleepFn and jitterFn are injected for deterministic tests.
	sleepFn  func(ctx context.Context, d time.Duration) error
	jitterFn func(max time.Duration) time.Duration
}

// NewFetcher creates a fetcher from configuration.
func NewFetcher(client PageAttempter, cfg config.CRMConfig, m *metrics.Metrics, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client:        client,
		pageSize:      cfg.PageSize,
		maxAttempts:   cfg.MaxAttempts,
		baseBackoff:   cfg.BaseBackoff,
		backoffFactor: cfg.BackoffFactor,
		maxJitter:     cfg.MaxJitter,
		metrics:       m,
		logger:        logger,
		sleepFn:       sleepContext,
		jitterFn: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// FetchPages executes the paginated search for one tenant under the budget.
// It returns the accumulated records and the number of pages fetched. The
// error is non-nil only when not a single page could be obtained.
func (f *Fetcher) FetchPages(ctx context.Context, t model.Tenant, spec SourceSpec, q SearchQuery, b Budget) ([]model.Record, int, error) {
	variant, firstPage, err := f.selectVariant(ctx, t, spec, q)
	if err != nil {
		return nil, 0, err
	}

	records := append([]model.Record(nil), firstPage.Records...)
	pages := 1
	cursor := firstPage.NextCursor
	lastPage := firstPage

	for {
		if f.done(lastPage, variant, cursor, pages, len(records), b) {
			break
		}
		if ctx.Err() != nil {
			f.logger.Warn("fetch interrupted by context, keeping partial results",
				zap.String("tenant_id", t.ID),
				zap.String("kind", string(spec.Kind)),
				zap.Int("pages", pages))
			break
		}

		pr := PageRequest{Page: pages + 1, Cursor: cursor}
		page, err := f.fetchPageWithRetry(ctx, t, spec.Kind, variant, q, pr)
		if err != nil {
			// Later-page failures truncate; what was accumulated is kept.
			f.logger.Warn("page fetch failed, truncating pagination",
				zap.String("tenant_id", t.ID),
				zap.String("kind", string(spec.Kind)),
				zap.String("variant", variant.Name),
				zap.Int("page", pr.Page),
				zap.Error(err))
			break
		}
		pages++
		records = append(records, page.Records...)
		cursor = page.NextCursor
		lastPage = page
	}

	return records, pages, nil
}

// selectVariant tries the ordered variant list on the first page and locks
// in the first one that succeeds.
func (f *Fetcher) selectVariant(ctx context.Context, t model.Tenant, spec SourceSpec, q SearchQuery) (*Variant, *PageResult, error) {
	var lastErr error
	for i := range spec.Variants {
		v := &spec.Variants[i]
		page, err := f.fetchPageWithRetry(ctx, t, spec.Kind, v, q, PageRequest{Page: 1})
		if err == nil {
			if i > 0 {
				f.logger.Info("fell back to alternate request variant",
					zap.String("tenant_id", t.ID),
					zap.String("kind", string(spec.Kind)),
					zap.String("variant", v.Name))
			}
			return v, page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		f.logger.Debug("request variant failed",
			zap.String("tenant_id", t.ID),
			zap.String("variant", v.Name),
			zap.Error(err))
	}
	return nil, nil, fmt.Errorf("%w: last error: %v", ErrUnavailable, lastErr)
}

// fetchPageWithRetry fetches one page, retrying only on rate-limit signals.
// The delay for retry attempt n is max(serverHint, base*factor^n) + jitter.
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, t model.Tenant, kind model.RecordKind, v *Variant, q SearchQuery, pr PageRequest) (*PageResult, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		page, err := f.client.AttemptPage(ctx, t, v, q, pr, f.pageSize)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !IsRateLimited(err) || attempt == f.maxAttempts-1 {
			return nil, err
		}

		delay := f.backoffDelay(attempt, RetryHint(err))
		if f.metrics != nil {
			f.metrics.RecordRateLimitRetry(string(kind))
		}
		f.logger.Info("rate limited, backing off",
			zap.String("tenant_id", t.ID),
			zap.String("variant", v.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		if err := f.sleepFn(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoffDelay computes the wait before retry attempt+1.
func (f *Fetcher) backoffDelay(attempt int, serverHint time.Duration) time.Duration {
	delay := time.Duration(float64(f.baseBackoff) * math.Pow(f.backoffFactor, float64(attempt)))
	if serverHint > delay {
		delay = serverHint
	}
	return delay + f.jitterFn(f.maxJitter)
}

// done reports whether pagination should stop after the page just fetched.
func (f *Fetcher) done(page *PageResult, v *Variant, cursor string, pages, total int, b Budget) bool {
	if len(page.Records) < f.pageSize {
		return true
	}
	if v.UsesCursor && cursor == "" {
		return true
	}
	if b.MaxPages > 0 && pages >= b.MaxPages {
		return true
	}
	if b.MaxRecords > 0 && total >= b.MaxRecords {
		return true
	}
	if b.StopOlderThanMs > 0 {
		if oldest, ok := pageOldest(page); ok && oldest < b.StopOlderThanMs {
			return true
		}
	}
	return false
}

// pageOldest returns the oldest event time on a page.
func pageOldest(page *PageResult) (int64, bool) {
	var oldest int64
	found := false
	for i := range page.Records {
		ts, ok := page.Records[i].EventTime()
		if !ok {
			continue
		}
		if !found || ts < oldest {
			oldest = ts
			found = true
		}
	}
	return oldest, found
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
