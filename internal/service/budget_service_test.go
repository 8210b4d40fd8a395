package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

// MockRefresher is a mock implementation of Refresher
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context, t model.Tenant, kind model.RecordKind, prior *model.Snapshot, forceFull bool, q crm.SearchQuery) (*model.Snapshot, *model.RefreshOutcome, error) {
	args := m.Called(ctx, t, kind, prior, forceFull, q)
	var snap *model.Snapshot
	if args.Get(0) != nil {
		snap = args.Get(0).(*model.Snapshot)
	}
	var outcome *model.RefreshOutcome
	if args.Get(1) != nil {
		outcome = args.Get(1).(*model.RefreshOutcome)
	}
	return snap, outcome, args.Error(2)
}

func newBudgetService(snapshots *MockSnapshotStore, refresher *MockRefresher) *BudgetService {
	s := NewBudgetService(snapshots, refresher, 15*time.Minute, nil, zap.NewNop())
	s.nowFn = fixedNow
	return s
}

func tenants(ids ...string) []model.Tenant {
	out := make([]model.Tenant, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Tenant{ID: id})
	}
	return out
}

func freshSnapshot(tenantID string) *model.Snapshot {
	ts := fixedNow().UnixMilli() - 1000
	return model.NewSnapshot(tenantID, model.KindAppointments,
		[]model.Record{{ID: tenantID + "-r", TenantID: tenantID, EventTimeMs: &ts}},
		fixedNow().Add(-time.Minute))
}

func staleSnapshot(tenantID string) *model.Snapshot {
	ts := fixedNow().UnixMilli() - 7200000
	return model.NewSnapshot(tenantID, model.KindAppointments,
		[]model.Record{{ID: tenantID + "-r", TenantID: tenantID, EventTimeMs: &ts}},
		fixedNow().Add(-time.Hour))
}

func farDeadline() time.Time {
	return fixedNow().Add(time.Minute)
}

func TestBudgetService_FreshSnapshotServedWithoutRefresh(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(freshSnapshot("t1"), nil)

	results := s.Run(context.Background(), tenants("t1"), model.KindAppointments, crm.SearchQuery{}, false, 5, farDeadline())

	require.Len(t, results, 1)
	assert.Equal(t, SourceSnapshot, results[0].Source)
	assert.Equal(t, ReasonFreshSnapshot, results[0].Reason)
	assert.False(t, results[0].Refreshed)
	refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBudgetService_StaleSnapshotTriggersRefresh(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	prior := staleSnapshot("t1")
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(prior, nil)
	refreshed := freshSnapshot("t1")
	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t1"}, model.KindAppointments, prior, false, mock.Anything).
		Return(refreshed, &model.RefreshOutcome{TenantID: "t1", UsedIncremental: true, PagesFetched: 2}, nil)

	results := s.Run(context.Background(), tenants("t1"), model.KindAppointments, crm.SearchQuery{}, false, 5, farDeadline())

	require.Len(t, results, 1)
	assert.Equal(t, SourceRemoteRefresh, results[0].Source)
	assert.True(t, results[0].Refreshed)
	assert.True(t, results[0].UsedIncremental)
	assert.Equal(t, 2, results[0].PagesFetched)
}

func TestBudgetService_BudgetCapsRemoteWork(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	// Three tenants all stale, budget of one.
	for _, id := range []string{"t1", "t2", "t3"} {
		snapshots.On("Read", mock.Anything, model.KindAppointments, id).Return(staleSnapshot(id), nil)
	}
	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t1"}, model.KindAppointments, mock.Anything, false, mock.Anything).
		Return(freshSnapshot("t1"), &model.RefreshOutcome{TenantID: "t1"}, nil)

	results := s.Run(context.Background(), tenants("t1", "t2", "t3"), model.KindAppointments, crm.SearchQuery{}, false, 1, farDeadline())

	require.Len(t, results, 3)
	assert.Equal(t, SourceRemoteRefresh, results[0].Source)
	assert.Equal(t, SourceSnapshot, results[1].Source)
	assert.Equal(t, ReasonBudgetExhausted, results[1].Reason)
	assert.Equal(t, SourceSnapshot, results[2].Source)
	assert.Equal(t, ReasonBudgetExhausted, results[2].Reason)
	refresher.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestBudgetService_BudgetExhaustedNoSnapshotComesBackEmpty(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(nil, store.ErrNotFound)

	results := s.Run(context.Background(), tenants("t1"), model.KindAppointments, crm.SearchQuery{}, false, 0, farDeadline())

	require.Len(t, results, 1)
	assert.Equal(t, SourceEmpty, results[0].Source)
	assert.Equal(t, ReasonBudgetExhausted, results[0].Reason)
	assert.Empty(t, results[0].Records)
}

func TestBudgetService_DeadlineForcesFallbacks(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(staleSnapshot("t1"), nil)
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t2").Return(nil, store.ErrNotFound)

	// Deadline already crossed before the first tenant.
	results := s.Run(context.Background(), tenants("t1", "t2"), model.KindAppointments, crm.SearchQuery{}, false, 5, fixedNow())

	require.Len(t, results, 2)
	assert.Equal(t, SourceSnapshot, results[0].Source)
	assert.Equal(t, ReasonDeadline, results[0].Reason)
	assert.Equal(t, SourceEmpty, results[1].Source)
	assert.Equal(t, ReasonDeadline, results[1].Reason)
	refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBudgetService_SingleTenantFailureDoesNotPoisonOthers(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	prior := staleSnapshot("t1")
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(prior, nil)
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t2").Return(nil, store.ErrNotFound)
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t3").Return(staleSnapshot("t3"), nil)

	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t1"}, model.KindAppointments, prior, false, mock.Anything).
		Return(nil, nil, crm.ErrUnavailable)
	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t2"}, model.KindAppointments, (*model.Snapshot)(nil), false, mock.Anything).
		Return(nil, nil, crm.ErrUnavailable)
	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t3"}, model.KindAppointments, mock.Anything, false, mock.Anything).
		Return(freshSnapshot("t3"), &model.RefreshOutcome{TenantID: "t3"}, nil)

	results := s.Run(context.Background(), tenants("t1", "t2", "t3"), model.KindAppointments, crm.SearchQuery{}, false, 5, farDeadline())

	require.Len(t, results, 3)

	// t1: failed refresh, stale snapshot served with the error attached.
	assert.Equal(t, SourceSnapshot, results[0].Source)
	assert.Equal(t, ReasonAPIErrorStale, results[0].Reason)
	assert.NotEmpty(t, results[0].Err)

	// t2: failed refresh and nothing to fall back on.
	assert.Equal(t, SourceEmpty, results[1].Source)
	assert.Equal(t, ReasonAPIErrorEmpty, results[1].Reason)

	// t3: unaffected.
	assert.Equal(t, SourceRemoteRefresh, results[2].Source)
}

func TestBudgetService_FailedRefreshStillConsumesBudget(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(nil, store.ErrNotFound)
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t2").Return(nil, store.ErrNotFound)

	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t1"}, model.KindAppointments, (*model.Snapshot)(nil), false, mock.Anything).
		Return(nil, nil, crm.ErrUnavailable)

	results := s.Run(context.Background(), tenants("t1", "t2"), model.KindAppointments, crm.SearchQuery{}, false, 1, farDeadline())

	require.Len(t, results, 2)
	assert.Equal(t, SourceEmpty, results[0].Source)
	assert.Equal(t, ReasonAPIErrorEmpty, results[0].Reason)
	// t1's failed attempt spent the only unit, so t2 never reaches the remote.
	assert.Equal(t, SourceEmpty, results[1].Source)
	assert.Equal(t, ReasonBudgetExhausted, results[1].Reason)
	refresher.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestBudgetService_BudgetCapsRemoteWorkWhenEveryRefreshFails(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	ids := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, id := range ids {
		snapshots.On("Read", mock.Anything, model.KindAppointments, id).Return(nil, store.ErrNotFound)
	}
	refresher.On("Refresh", mock.Anything, mock.Anything, model.KindAppointments, mock.Anything, false, mock.Anything).
		Return(nil, nil, crm.ErrUnavailable)

	results := s.Run(context.Background(), tenants(ids...), model.KindAppointments, crm.SearchQuery{}, false, 1, farDeadline())

	require.Len(t, results, 5)
	assert.Equal(t, ReasonAPIErrorEmpty, results[0].Reason)
	for _, r := range results[1:] {
		assert.Equal(t, SourceEmpty, r.Source)
		assert.Equal(t, ReasonBudgetExhausted, r.Reason)
	}
	refresher.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestBudgetService_BustForcesFullRefreshOfFreshSnapshot(t *testing.T) {
	snapshots := new(MockSnapshotStore)
	refresher := new(MockRefresher)
	s := newBudgetService(snapshots, refresher)

	prior := freshSnapshot("t1")
	snapshots.On("Read", mock.Anything, model.KindAppointments, "t1").Return(prior, nil)
	refresher.On("Refresh", mock.Anything, model.Tenant{ID: "t1"}, model.KindAppointments, prior, true, mock.Anything).
		Return(freshSnapshot("t1"), &model.RefreshOutcome{TenantID: "t1"}, nil)

	results := s.Run(context.Background(), tenants("t1"), model.KindAppointments, crm.SearchQuery{}, true, 5, farDeadline())

	require.Len(t, results, 1)
	assert.Equal(t, SourceRemoteRefresh, results[0].Source)
	refresher.AssertExpectations(t)
}
