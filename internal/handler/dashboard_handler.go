// Package handler provides HTTP request handlers for the dashboard API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	apierrors "github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/errors"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/service"
)

// DashboardAPI is the service surface the handlers depend on.
type DashboardAPI interface {
	Dashboard(ctx context.Context, kind model.RecordKind, q service.Query) (*service.DashboardResponse, error)
	TenantByID(id string) (model.Tenant, bool)
}

// Handlers contains the dashboard HTTP handlers and their dependencies.
type Handlers struct {
	dashboards   DashboardAPI
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(dashboards DashboardAPI, errorHandler *apierrors.Handler, logger *zap.Logger) *Handlers {
	return &Handlers{
		dashboards:   dashboards,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Dashboard returns the handler for one dashboard kind.
func (h *Handlers) Dashboard(kind model.RecordKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")

		q, err := parseQuery(r)
		if err != nil {
			h.errorHandler.WriteRangeError(w, err.Error(), requestID)
			return
		}

		resp, err := h.dashboards.Dashboard(r.Context(), kind, q)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, resp, h.logger)
	}
}

// parseQuery validates the common dashboard query contract: required start
// and end with end strictly after start, optional bust and debug flags.
// Validation happens before any I/O.
func parseQuery(r *http.Request) (service.Query, error) {
	var q service.Query

	values := r.URL.Query()
	start, err := parseTimeParam(values.Get("start"))
	if err != nil {
		return q, fmt.Errorf("invalid start: %w", err)
	}
	end, err := parseTimeParam(values.Get("end"))
	if err != nil {
		return q, fmt.Errorf("invalid end: %w", err)
	}
	if !end.After(start) {
		return q, fmt.Errorf("end must be after start")
	}

	q.StartMs = start.UnixMilli()
	q.EndMs = end.UnixMilli()
	q.Bust = boolParam(values.Get("bust"))
	q.Debug = boolParam(values.Get("debug"))
	return q, nil
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 timestamp: %q", v)
}

func boolParam(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
