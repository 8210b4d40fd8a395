package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/metrics"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

// Response source values stamped into provenance.
const (
	SourceMemory        = "memory"
	SourceSnapshot      = "snapshot"
	SourceRemoteRefresh = "remote_refresh"
	SourceEmpty         = "empty"
)

// Fallback reason codes reported in provenance and debug output.
const (
	ReasonFreshSnapshot   = "fresh_snapshot"
	ReasonDeadline        = "request_timeout_using_partial_data"
	ReasonBudgetExhausted = "refresh_budget_exceeded_using_stale_snapshots"
	ReasonAPIErrorStale   = "api_error_using_stale_snapshot"
	ReasonAPIErrorEmpty   = "api_error_no_snapshot"
)

// Refresher refreshes one tenant's snapshot.
type Refresher interface {
	Refresh(ctx context.Context, t model.Tenant, kind model.RecordKind, prior *model.Snapshot, forceFull bool, q crm.SearchQuery) (*model.Snapshot, *model.RefreshOutcome, error)
}

// TenantResult is what one tenant contributes to a dashboard response.
type TenantResult struct {
	Tenant          model.Tenant
	Snapshot        *model.Snapshot
	Records         []model.Record
	Source          string
	Refreshed       bool
	UsedIncremental bool
	PagesFetched    int
	Reason          string
	Err             string
}

// BudgetService walks the tenant list under a global deadline and a
// per-request refresh budget. At most budget tenants ever reach the remote
// platform per incoming request, independent of tenant-list size; everyone
// else is served from their snapshot, stale or not, or comes back empty.
// A single tenant's failure never fails the multi-tenant response.
type BudgetService struct {
	snapshots   store.SnapshotStore
	refresher   Refresher
	snapshotTTL time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger

	nowFn func() time.Time
}

// NewBudgetService creates a budget service.
func NewBudgetService(
	snapshots store.SnapshotStore,
	refresher Refresher,
	snapshotTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BudgetService {
	return &BudgetService{
		snapshots:   snapshots,
		refresher:   refresher,
		snapshotTTL: snapshotTTL,
		metrics:     m,
		logger:      logger,
		nowFn:       time.Now,
	}
}

// Run evaluates every tenant in list order. The deadline is checked only at
// tenant boundaries: crossing it never aborts in-flight work, it stops new
// work from starting and forces the remaining tenants onto stale or empty
// paths.
func (s *BudgetService) Run(ctx context.Context, tenants []model.Tenant, kind model.RecordKind, q crm.SearchQuery, forceBust bool, budget int, deadline time.Time) []TenantResult {
	results := make([]TenantResult, 0, len(tenants))
	remaining := budget

	for _, tenant := range tenants {
		if !s.nowFn().Before(deadline) {
			results = append(results, s.fallback(ctx, tenant, kind, ReasonDeadline, ""))
			continue
		}

		prior := s.readSnapshot(ctx, kind, tenant.ID)

		if prior != nil && !forceBust && prior.Fresh(s.nowFn(), s.snapshotTTL) {
			results = append(results, TenantResult{
				Tenant:   tenant,
				Snapshot: prior,
				Records:  prior.Records,
				Source:   SourceSnapshot,
				Reason:   ReasonFreshSnapshot,
			})
			continue
		}

		if remaining <= 0 && prior != nil {
			results = append(results, s.staleResult(tenant, prior, ReasonBudgetExhausted))
			continue
		}
		if remaining <= 0 {
			results = append(results, TenantResult{
				Tenant: tenant,
				Source: SourceEmpty,
				Reason: ReasonBudgetExhausted,
			})
			s.recordFallback(kind, ReasonBudgetExhausted)
			continue
		}

		// The attempt consumes the unit, success or not. Charging only
		// successes would let a degraded remote pull every tenant into a
		// full variant-retry cycle, which is exactly what the cap bounds.
		remaining--
		snapshot, outcome, err := s.refresher.Refresh(ctx, tenant, kind, prior, forceBust, q)
		if err != nil {
			s.logger.Warn("tenant refresh failed",
				zap.String("tenant_id", tenant.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			if prior != nil {
				r := s.staleResult(tenant, prior, ReasonAPIErrorStale)
				r.Err = err.Error()
				results = append(results, r)
				continue
			}
			results = append(results, TenantResult{
				Tenant: tenant,
				Source: SourceEmpty,
				Reason: ReasonAPIErrorEmpty,
				Err:    err.Error(),
			})
			s.recordFallback(kind, ReasonAPIErrorEmpty)
			continue
		}

		results = append(results, TenantResult{
			Tenant:          tenant,
			Snapshot:        snapshot,
			Records:         snapshot.Records,
			Source:          SourceRemoteRefresh,
			Refreshed:       true,
			UsedIncremental: outcome.UsedIncremental,
			PagesFetched:    outcome.PagesFetched,
		})
	}

	return results
}

// readSnapshot loads a tenant's snapshot, mapping every failure to absent.
func (s *BudgetService) readSnapshot(ctx context.Context, kind model.RecordKind, tenantID string) *model.Snapshot {
	snapshot, err := s.snapshots.Read(ctx, kind, tenantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("snapshot read failed, treating as absent",
				zap.String("tenant_id", tenantID), zap.Error(err))
			if s.metrics != nil {
				s.metrics.SnapshotReadFailures.WithLabelValues("snapshot").Inc()
			}
		}
		return nil
	}
	return snapshot
}

// fallback serves a tenant that cannot do remote work: its snapshot if one
// exists, stale or not, otherwise an empty result.
func (s *BudgetService) fallback(ctx context.Context, tenant model.Tenant, kind model.RecordKind, reason, errMsg string) TenantResult {
	if prior := s.readSnapshot(ctx, kind, tenant.ID); prior != nil {
		r := s.staleResult(tenant, prior, reason)
		r.Err = errMsg
		return r
	}
	s.recordFallback(kind, reason)
	return TenantResult{
		Tenant: tenant,
		Source: SourceEmpty,
		Reason: reason,
		Err:    errMsg,
	}
}

func (s *BudgetService) staleResult(tenant model.Tenant, snapshot *model.Snapshot, reason string) TenantResult {
	s.recordFallback(snapshot.Kind, reason)
	return TenantResult{
		Tenant:   tenant,
		Snapshot: snapshot,
		Records:  snapshot.Records,
		Source:   SourceSnapshot,
		Reason:   reason,
	}
}

func (s *BudgetService) recordFallback(kind model.RecordKind, reason string) {
	if s.metrics != nil {
		s.metrics.RecordFallback(string(kind), reason)
	}
}
