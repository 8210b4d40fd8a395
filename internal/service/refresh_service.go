package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/metrics"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

// PageFetcher executes a resilient paginated remote search.
type PageFetcher interface {
	FetchPages(ctx context.Context, t model.Tenant, spec crm.SourceSpec, q crm.SearchQuery, b crm.Budget) ([]model.Record, int, error)
}

// RefreshService orchestrates one tenant's snapshot refresh: it picks the
// sync mode, bounds the remote fetch, merges against the prior snapshot and
// persists the replacement. It performs no fallback of its own; on total
// fetch failure the caller decides what to serve.
type RefreshService struct {
	snapshots store.SnapshotStore
	fetcher   PageFetcher
	cfg       config.RefreshConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger

	nowFn func() time.Time
}

// NewRefreshService creates a refresh service.
func NewRefreshService(
	snapshots store.SnapshotStore,
	fetcher PageFetcher,
	cfg config.RefreshConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RefreshService {
	return &RefreshService{
		snapshots: snapshots,
		fetcher:   fetcher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Refresh fetches fresh records for the tenant and replaces its snapshot.
//
// Mode selection: incremental iff a prior snapshot exists and forceFull is
// false. Incremental fetches are bounded by small page/record caps and a
// watermark set an overlap window before the prior snapshot's update time,
// because the remote's "updated" ordering is not a perfect clock and
// records near the boundary may be edited after the last sync. Full mode
// rebuilds from scratch but still merges against the prior records so data
// the remote no longer returns on a narrower window is not lost.
func (s *RefreshService) Refresh(ctx context.Context, t model.Tenant, kind model.RecordKind, prior *model.Snapshot, forceFull bool, q crm.SearchQuery) (*model.Snapshot, *model.RefreshOutcome, error) {
	spec, err := crm.SpecFor(kind)
	if err != nil {
		return nil, nil, err
	}

	incremental := prior != nil && !forceFull
	budget := crm.Budget{
		MaxPages:   s.cfg.FullPages,
		MaxRecords: s.cfg.FullRecords,
	}
	if incremental {
		budget = crm.Budget{
			MaxPages:        s.cfg.IncrementalPages,
			MaxRecords:      s.cfg.IncrementalRecords,
			StopOlderThanMs: watermark(prior.UpdatedAtMs, s.cfg.OverlapWindow),
		}
	}

	mode := "full"
	if incremental {
		mode = "incremental"
	}
	started := s.nowFn()

	fetched, pages, err := s.fetcher.FetchPages(ctx, t, spec, q, budget)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRefresh(string(kind), mode, "error", s.nowFn().Sub(started).Seconds())
		}
		return nil, nil, fmt.Errorf("refresh failed for tenant %s: %w", t.ID, err)
	}

	var priorRecords []model.Record
	if prior != nil {
		priorRecords = prior.Records
	}
	merged := Merge(priorRecords, fetched)

	snapshot := model.NewSnapshot(t.ID, kind, merged, s.nowFn())
	if err := s.snapshots.Write(ctx, snapshot); err != nil {
		// The fetch succeeded; serve the merged data even if persisting
		// it failed. The next refresh will try the write again.
		s.logger.Error("failed to persist snapshot",
			zap.String("tenant_id", t.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.SnapshotWriteFailures.WithLabelValues("snapshot").Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.RecordRefresh(string(kind), mode, "ok", s.nowFn().Sub(started).Seconds())
		s.metrics.RecordPagesFetched(string(kind), pages)
	}
	s.logger.Info("tenant refreshed",
		zap.String("tenant_id", t.ID),
		zap.String("kind", string(kind)),
		zap.String("mode", mode),
		zap.Int("pages", pages),
		zap.Int("fetched", len(fetched)),
		zap.Int("merged", len(merged)))

	outcome := &model.RefreshOutcome{
		TenantID:        t.ID,
		UsedIncremental: incremental,
		PagesFetched:    pages,
	}
	return snapshot, outcome, nil
}

// watermark computes the incremental stop boundary: the prior update time
// minus the overlap window, floored at zero.
func watermark(updatedAtMs int64, overlap time.Duration) int64 {
	w := updatedAtMs - overlap.Milliseconds()
	if w < 0 {
		return 0
	}
	return w
}
