package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	apierrors "github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/errors"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/service"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

// AdminHandlers exposes snapshot inspection and manual refresh endpoints.
type AdminHandlers struct {
	snapshots    store.SnapshotStore
	refresher    service.Refresher
	dashboards   DashboardAPI
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(snapshots store.SnapshotStore, refresher service.Refresher, dashboards DashboardAPI, errorHandler *apierrors.Handler, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		snapshots:    snapshots,
		refresher:    refresher,
		dashboards:   dashboards,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

type snapshotSummary struct {
	Kind            model.RecordKind `json:"kind"`
	UpdatedAt       string           `json:"updated_at,omitempty"`
	NewestRecordISO string           `json:"newest_record,omitempty"`
	OldestRecordISO string           `json:"oldest_record,omitempty"`
	RecordCount     int              `json:"record_count"`
	Present         bool             `json:"present"`
}

type snapshotsResponse struct {
	OK        bool              `json:"ok"`
	TenantID  string            `json:"tenant_id"`
	Snapshots []snapshotSummary `json:"snapshots"`
}

// Snapshots reports per-kind snapshot state for one tenant.
func (h *AdminHandlers) Snapshots(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	tenantID := mux.Vars(r)["tenant_id"]

	if _, ok := h.dashboards.TenantByID(tenantID); !ok {
		h.errorHandler.WriteNotFound(w, "tenant not found", requestID)
		return
	}

	resp := snapshotsResponse{OK: true, TenantID: tenantID}
	for _, kind := range model.Kinds() {
		summary := snapshotSummary{Kind: kind}
		snap, err := h.snapshots.Read(r.Context(), kind, tenantID)
		if err == nil {
			summary.Present = true
			summary.UpdatedAt = model.FormatMs(snap.UpdatedAtMs)
			summary.NewestRecordISO = snap.NewestRecordISO
			summary.OldestRecordISO = snap.OldestRecordISO
			summary.RecordCount = len(snap.Records)
		}
		resp.Snapshots = append(resp.Snapshots, summary)
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

type refreshResponse struct {
	OK              bool             `json:"ok"`
	TenantID        string           `json:"tenant_id"`
	Kind            model.RecordKind `json:"kind"`
	UsedIncremental bool             `json:"used_incremental"`
	PagesFetched    int              `json:"pages_fetched"`
	RecordCount     int              `json:"record_count"`
}

// Refresh forces a remote refresh for one tenant and kind, bypassing the
// budget and snapshot TTL. Intended for operators recovering from bad data.
func (h *AdminHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	tenantID := mux.Vars(r)["tenant_id"]
	kind := model.RecordKind(r.URL.Query().Get("kind"))

	tenant, ok := h.dashboards.TenantByID(tenantID)
	if !ok {
		h.errorHandler.WriteNotFound(w, "tenant not found", requestID)
		return
	}
	if !model.ValidKind(kind) {
		h.errorHandler.WriteValidationError(w, "kind must be one of appointments, conversations, transactions", requestID)
		return
	}

	var prior *model.Snapshot
	if snap, err := h.snapshots.Read(r.Context(), kind, tenantID); err == nil {
		prior = snap
	}

	// A wide default window so a manual refresh rebuilds meaningful coverage.
	end := time.Now()
	start := end.AddDate(0, -3, 0)
	q := crm.SearchQuery{StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}

	snap, outcome, err := h.refresher.Refresh(r.Context(), tenant, kind, prior, true, q)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := refreshResponse{
		OK:          true,
		TenantID:    tenantID,
		Kind:        kind,
		RecordCount: len(snap.Records),
	}
	if outcome != nil {
		resp.UsedIncremental = outcome.UsedIncremental
		resp.PagesFetched = outcome.PagesFetched
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}
