package service

import (
	"time"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// RangeInfo echoes the requested query range.
type RangeInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CacheInfo is the provenance block attached to every dashboard response.
type CacheInfo struct {
	Source            string          `json:"source"`
	SnapshotUpdatedAt string          `json:"snapshotUpdatedAt,omitempty"`
	SnapshotCoverage  *model.Coverage `json:"snapshotCoverage,omitempty"`
	RefreshedTenants  []string        `json:"refreshedTenants"`
	UsedIncremental   bool            `json:"usedIncremental"`
	RefreshReason     string          `json:"refreshReason,omitempty"`
}

// TenantDebug is per-tenant internal state exposed when debug is requested.
type TenantDebug struct {
	TenantID        string `json:"tenantId"`
	Source          string `json:"source"`
	Reason          string `json:"reason,omitempty"`
	Records         int    `json:"records"`
	PagesFetched    int    `json:"pagesFetched"`
	UsedIncremental bool   `json:"usedIncremental"`
	Err             string `json:"error,omitempty"`
}

// DebugInfo carries internal counters for troubleshooting.
type DebugInfo struct {
	Tenants []TenantDebug `json:"tenants"`
}

// DashboardResponse is the response envelope for every dashboard endpoint.
type DashboardResponse struct {
	OK    bool               `json:"ok"`
	Range RangeInfo          `json:"range"`
	Total int                `json:"total"`
	KPIs  map[string]float64 `json:"kpis"`
	Rows  []model.Record     `json:"rows"`
	Cache CacheInfo          `json:"cache"`
	Debug *DebugInfo         `json:"debug,omitempty"`
}

// Assemble flattens all tenants' record sets into one response: records are
// re-deduplicated across tenant boundaries (defensive; a fallback key could
// in principle collide), filtered to the requested range, aggregated into
// per-kind KPIs and stamped with cache provenance.
func Assemble(kind model.RecordKind, results []TenantResult, startMs, endMs int64, now time.Time, debug bool) *DashboardResponse {
	flat := make([]model.Record, 0)
	for i := range results {
		flat = Merge(flat, results[i].Records)
	}

	rows := make([]model.Record, 0, len(flat))
	for i := range flat {
		if flat[i].InRange(startMs, endMs) {
			rows = append(rows, flat[i])
		}
	}

	resp := &DashboardResponse{
		OK:    true,
		Range: RangeInfo{Start: model.FormatMs(startMs), End: model.FormatMs(endMs)},
		Total: len(rows),
		KPIs:  aggregate(kind, rows, now),
		Rows:  rows,
		Cache: provenance(results),
	}
	if debug {
		resp.Debug = debugInfo(results)
	}
	return resp
}

// provenance derives the cache block from the per-tenant results. The
// source reflects the freshest path any tenant took; freshness metadata is
// the most conservative across tenants (oldest snapshot update, widest
// coverage).
func provenance(results []TenantResult) CacheInfo {
	info := CacheInfo{
		Source:           SourceSnapshot,
		RefreshedTenants: make([]string, 0),
	}

	var oldestUpdate int64
	var coverage *model.Coverage
	reasons := make([]string, 0, 2)
	seenReason := make(map[string]bool)
	anySnapshot := false

	for i := range results {
		r := &results[i]
		if r.Refreshed {
			info.Source = SourceRemoteRefresh
			info.RefreshedTenants = append(info.RefreshedTenants, r.Tenant.ID)
			if r.UsedIncremental {
				info.UsedIncremental = true
			}
		}
		if r.Reason != "" && r.Reason != ReasonFreshSnapshot && !seenReason[r.Reason] {
			seenReason[r.Reason] = true
			reasons = append(reasons, r.Reason)
		}
		if r.Snapshot == nil {
			continue
		}
		anySnapshot = true
		if oldestUpdate == 0 || r.Snapshot.UpdatedAtMs < oldestUpdate {
			oldestUpdate = r.Snapshot.UpdatedAtMs
		}
		if cov, ok := r.Snapshot.Coverage(); ok {
			if coverage == nil {
				c := cov
				coverage = &c
			} else {
				if cov.NewestMs > coverage.NewestMs {
					coverage.NewestMs = cov.NewestMs
				}
				if cov.OldestMs < coverage.OldestMs {
					coverage.OldestMs = cov.OldestMs
				}
			}
		}
	}

	if !anySnapshot && info.Source == SourceSnapshot {
		info.Source = SourceEmpty
	}
	if oldestUpdate > 0 {
		info.SnapshotUpdatedAt = model.FormatMs(oldestUpdate)
	}
	info.SnapshotCoverage = coverage
	if len(reasons) > 0 {
		info.RefreshReason = reasons[0]
		for _, r := range reasons[1:] {
			info.RefreshReason += "," + r
		}
	}
	return info
}

func debugInfo(results []TenantResult) *DebugInfo {
	d := &DebugInfo{Tenants: make([]TenantDebug, 0, len(results))}
	for i := range results {
		r := &results[i]
		d.Tenants = append(d.Tenants, TenantDebug{
			TenantID:        r.Tenant.ID,
			Source:          r.Source,
			Reason:          r.Reason,
			Records:         len(r.Records),
			PagesFetched:    r.PagesFetched,
			UsedIncremental: r.UsedIncremental,
			Err:             r.Err,
		})
	}
	return d
}

// aggregate computes the per-kind KPI block.
func aggregate(kind model.RecordKind, rows []model.Record, now time.Time) map[string]float64 {
	kpis := map[string]float64{"total": float64(len(rows))}
	switch kind {
	case model.KindAppointments:
		nowMs := now.UnixMilli()
		for i := range rows {
			if ts, ok := rows[i].EventTime(); ok && ts > nowMs {
				kpis["upcoming"]++
			}
			if status := payloadString(&rows[i], "appointmentStatus", "status"); status != "" {
				kpis["status_"+status]++
			}
		}
	case model.KindConversations:
		for i := range rows {
			if payloadNumber(&rows[i], "unreadCount") > 0 {
				kpis["unread"]++
			}
			switch payloadString(&rows[i], "lastMessageDirection", "direction") {
			case "inbound":
				kpis["inbound"]++
			case "outbound":
				kpis["outbound"]++
			}
		}
	case model.KindTransactions:
		var gross float64
		for i := range rows {
			gross += payloadNumber(&rows[i], "amount")
			switch payloadString(&rows[i], "paymentStatus", "status") {
			case "succeeded", "success", "paid":
				kpis["succeeded"]++
			case "failed":
				kpis["failed"]++
			}
		}
		kpis["gross_amount"] = gross
		if len(rows) > 0 {
			kpis["average_amount"] = gross / float64(len(rows))
		}
	}
	return kpis
}

func payloadString(r *model.Record, keys ...string) string {
	for _, k := range keys {
		if s, ok := r.Payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func payloadNumber(r *model.Record, key string) float64 {
	if f, ok := r.Payload[key].(float64); ok {
		return f
	}
	return 0
}
