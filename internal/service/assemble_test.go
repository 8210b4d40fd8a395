package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

func tenantResult(tenantID string, records []model.Record) TenantResult {
	return TenantResult{
		Tenant:   model.Tenant{ID: tenantID},
		Snapshot: model.NewSnapshot(tenantID, model.KindAppointments, records, fixedNow()),
		Records:  records,
		Source:   SourceSnapshot,
		Reason:   ReasonFreshSnapshot,
	}
}

func TestAssemble_FiltersToRange(t *testing.T) {
	in := int64(5000)
	below := int64(500)
	above := int64(50000)
	records := []model.Record{
		{ID: "in", TenantID: "t1", EventTimeMs: &in},
		{ID: "below", TenantID: "t1", EventTimeMs: &below},
		{ID: "above", TenantID: "t1", EventTimeMs: &above},
	}

	resp := Assemble(model.KindAppointments, []TenantResult{tenantResult("t1", records)}, 1000, 10000, fixedNow(), false)

	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "in", resp.Rows[0].ID)
	assert.True(t, resp.OK)
}

func TestAssemble_NilTimestampKept(t *testing.T) {
	records := []model.Record{
		{ID: "no-time", TenantID: "t1"},
	}

	resp := Assemble(model.KindAppointments, []TenantResult{tenantResult("t1", records)}, 1000, 10000, fixedNow(), false)

	// Malformed remote data is surfaced, never silently hidden.
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "no-time", resp.Rows[0].ID)
}

func TestAssemble_CrossTenantFlatten(t *testing.T) {
	ts := int64(5000)
	resp := Assemble(model.KindAppointments, []TenantResult{
		tenantResult("t1", []model.Record{{ID: "a", TenantID: "t1", EventTimeMs: &ts}}),
		tenantResult("t2", []model.Record{{ID: "b", TenantID: "t2", EventTimeMs: &ts}}),
	}, 1000, 10000, fixedNow(), false)

	assert.Equal(t, 2, resp.Total)
}

func TestAssemble_ProvenanceRefreshWins(t *testing.T) {
	ts := int64(5000)
	records := []model.Record{{ID: "a", TenantID: "t1", EventTimeMs: &ts}}

	refreshed := tenantResult("t1", records)
	refreshed.Source = SourceRemoteRefresh
	refreshed.Refreshed = true
	refreshed.UsedIncremental = true
	refreshed.Reason = ""

	stale := tenantResult("t2", []model.Record{{ID: "b", TenantID: "t2", EventTimeMs: &ts}})
	stale.Reason = ReasonBudgetExhausted

	resp := Assemble(model.KindAppointments, []TenantResult{refreshed, stale}, 1000, 10000, fixedNow(), false)

	assert.Equal(t, SourceRemoteRefresh, resp.Cache.Source)
	assert.Equal(t, []string{"t1"}, resp.Cache.RefreshedTenants)
	assert.True(t, resp.Cache.UsedIncremental)
	assert.Equal(t, ReasonBudgetExhausted, resp.Cache.RefreshReason)
}

func TestAssemble_ProvenanceOldestUpdateAndUnionCoverage(t *testing.T) {
	early := int64(1000)
	late := int64(9000)

	r1 := TenantResult{
		Tenant: model.Tenant{ID: "t1"},
		Snapshot: model.NewSnapshot("t1", model.KindAppointments,
			[]model.Record{{ID: "a", TenantID: "t1", EventTimeMs: &early}}, time.UnixMilli(2000)),
		Records: []model.Record{{ID: "a", TenantID: "t1", EventTimeMs: &early}},
		Source:  SourceSnapshot,
	}
	r2 := TenantResult{
		Tenant: model.Tenant{ID: "t2"},
		Snapshot: model.NewSnapshot("t2", model.KindAppointments,
			[]model.Record{{ID: "b", TenantID: "t2", EventTimeMs: &late}}, time.UnixMilli(8000)),
		Records: []model.Record{{ID: "b", TenantID: "t2", EventTimeMs: &late}},
		Source:  SourceSnapshot,
	}

	resp := Assemble(model.KindAppointments, []TenantResult{r1, r2}, 0, 10000, fixedNow(), false)

	assert.Equal(t, model.FormatMs(2000), resp.Cache.SnapshotUpdatedAt)
	require.NotNil(t, resp.Cache.SnapshotCoverage)
	assert.Equal(t, int64(9000), resp.Cache.SnapshotCoverage.NewestMs)
	assert.Equal(t, int64(1000), resp.Cache.SnapshotCoverage.OldestMs)
}

func TestAssemble_EmptySourceWhenNoSnapshots(t *testing.T) {
	resp := Assemble(model.KindAppointments, []TenantResult{
		{Tenant: model.Tenant{ID: "t1"}, Source: SourceEmpty, Reason: ReasonAPIErrorEmpty},
	}, 0, 10000, fixedNow(), false)

	assert.Equal(t, SourceEmpty, resp.Cache.Source)
	assert.Equal(t, 0, resp.Total)
	assert.True(t, resp.OK)
}

func TestAssemble_AppointmentsKPIs(t *testing.T) {
	past := fixedNow().UnixMilli() - 1000
	future := fixedNow().UnixMilli() + 1000
	records := []model.Record{
		{ID: "a", TenantID: "t1", EventTimeMs: &future, Payload: map[string]any{"appointmentStatus": "confirmed"}},
		{ID: "b", TenantID: "t1", EventTimeMs: &past, Payload: map[string]any{"appointmentStatus": "cancelled"}},
	}

	resp := Assemble(model.KindAppointments, []TenantResult{tenantResult("t1", records)}, 0, future+1, fixedNow(), false)

	assert.Equal(t, float64(2), resp.KPIs["total"])
	assert.Equal(t, float64(1), resp.KPIs["upcoming"])
	assert.Equal(t, float64(1), resp.KPIs["status_confirmed"])
	assert.Equal(t, float64(1), resp.KPIs["status_cancelled"])
}

func TestAssemble_ConversationsKPIs(t *testing.T) {
	ts := int64(5000)
	records := []model.Record{
		{ID: "a", TenantID: "t1", EventTimeMs: &ts, Payload: map[string]any{"unreadCount": 2.0, "lastMessageDirection": "inbound"}},
		{ID: "b", TenantID: "t1", EventTimeMs: &ts, Payload: map[string]any{"unreadCount": 0.0, "lastMessageDirection": "outbound"}},
	}

	resp := Assemble(model.KindConversations, []TenantResult{tenantResult("t1", records)}, 0, 10000, fixedNow(), false)

	assert.Equal(t, float64(1), resp.KPIs["unread"])
	assert.Equal(t, float64(1), resp.KPIs["inbound"])
	assert.Equal(t, float64(1), resp.KPIs["outbound"])
}

func TestAssemble_TransactionsKPIs(t *testing.T) {
	ts := int64(5000)
	records := []model.Record{
		{ID: "a", TenantID: "t1", EventTimeMs: &ts, Payload: map[string]any{"amount": 100.0, "paymentStatus": "succeeded"}},
		{ID: "b", TenantID: "t1", EventTimeMs: &ts, Payload: map[string]any{"amount": 50.0, "paymentStatus": "failed"}},
	}

	resp := Assemble(model.KindTransactions, []TenantResult{tenantResult("t1", records)}, 0, 10000, fixedNow(), false)

	assert.Equal(t, float64(150), resp.KPIs["gross_amount"])
	assert.Equal(t, float64(75), resp.KPIs["average_amount"])
	assert.Equal(t, float64(1), resp.KPIs["succeeded"])
	assert.Equal(t, float64(1), resp.KPIs["failed"])
}

func TestAssemble_DebugBlock(t *testing.T) {
	ts := int64(5000)
	r := tenantResult("t1", []model.Record{{ID: "a", TenantID: "t1", EventTimeMs: &ts}})
	r.PagesFetched = 3
	r.UsedIncremental = true

	resp := Assemble(model.KindAppointments, []TenantResult{r}, 0, 10000, fixedNow(), true)

	require.NotNil(t, resp.Debug)
	require.Len(t, resp.Debug.Tenants, 1)
	assert.Equal(t, "t1", resp.Debug.Tenants[0].TenantID)
	assert.Equal(t, 3, resp.Debug.Tenants[0].PagesFetched)
	assert.True(t, resp.Debug.Tenants[0].UsedIncremental)

	noDebug := Assemble(model.KindAppointments, []TenantResult{r}, 0, 10000, fixedNow(), false)
	assert.Nil(t, noDebug.Debug)
}
