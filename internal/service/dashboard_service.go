package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/metrics"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

// Query is one validated dashboard request.
type Query struct {
	StartMs int64
	EndMs   int64
	Bust    bool
	Debug   bool
}

// TenantRunner fans a query out across the tenant list under budget.
type TenantRunner interface {
	Run(ctx context.Context, tenants []model.Tenant, kind model.RecordKind, q crm.SearchQuery, forceBust bool, budget int, deadline time.Time) []TenantResult
}

// DashboardService serves dashboard queries: range cache first, then the
// budgeted multi-tenant refresh, then assembly. The assembled payload is
// cached as encoded bytes so repeat requests within the TTL are
// byte-identical apart from the provenance source.
type DashboardService struct {
	cache    store.RangeCache
	budgeter TenantRunner
	tenants  []model.Tenant
	cacheTTL time.Duration
	budget   int
	deadline time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	nowFn func() time.Time
}

// NewDashboardService creates a dashboard service.
func NewDashboardService(
	cache store.RangeCache,
	budgeter TenantRunner,
	tenants []model.Tenant,
	cacheCfg config.CacheConfig,
	refreshCfg config.RefreshConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DashboardService {
	return &DashboardService{
		cache:    cache,
		budgeter: budgeter,
		tenants:  tenants,
		cacheTTL: cacheCfg.TTL,
		budget:   refreshCfg.BudgetPerRequest,
		deadline: refreshCfg.RequestDeadline,
		metrics:  m,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Dashboard answers one dashboard query.
func (s *DashboardService) Dashboard(ctx context.Context, kind model.RecordKind, q Query) (*DashboardResponse, error) {
	if !model.ValidKind(kind) {
		return nil, fmt.Errorf("unknown dashboard kind %q", kind)
	}
	started := s.nowFn()
	key := cacheKey(kind, q)

	if !q.Bust {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var resp DashboardResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				resp.Cache.Source = SourceMemory
				if s.metrics != nil {
					s.metrics.RecordCacheHit("range")
					s.metrics.RecordRequest(string(kind), SourceMemory, s.nowFn().Sub(started).Seconds())
				}
				return &resp, nil
			}
			s.logger.Warn("range cache entry undecodable, recomputing",
				zap.String("key", key), zap.Error(err))
		} else if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("range cache read failed, recomputing",
				zap.String("key", key), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss("range")
		}
	}

	deadline := s.nowFn().Add(s.deadline)
	results := s.budgeter.Run(ctx, s.tenants, kind,
		crm.SearchQuery{StartMs: q.StartMs, EndMs: q.EndMs},
		q.Bust, s.budget, deadline)

	resp := Assemble(kind, results, q.StartMs, q.EndMs, s.nowFn(), q.Debug)

	if encoded, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.cacheTTL); err != nil {
			s.logger.Warn("failed to store range cache entry",
				zap.String("key", key), zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordRequest(string(kind), resp.Cache.Source, s.nowFn().Sub(started).Seconds())
	}
	return resp, nil
}

// TenantByID finds a configured tenant.
func (s *DashboardService) TenantByID(id string) (model.Tenant, bool) {
	for _, t := range s.tenants {
		if t.ID == id {
			return t, true
		}
	}
	return model.Tenant{}, false
}

func cacheKey(kind model.RecordKind, q Query) string {
	return fmt.Sprintf("range:%s:%d:%d:%t", kind, q.StartMs, q.EndMs, q.Debug)
}
