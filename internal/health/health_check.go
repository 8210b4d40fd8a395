// Package health provides liveness and readiness checks for the service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

// Checker verifies the backing stores are reachable.
type Checker struct {
	snapshots store.SnapshotStore
	cache     store.RangeCache
	logger    *zap.Logger
}

// NewChecker creates a new Checker instance.
func NewChecker(snapshots store.SnapshotStore, cache store.RangeCache, logger *zap.Logger) *Checker {
	return &Checker{
		snapshots: snapshots,
		cache:     cache,
		logger:    logger,
	}
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Liveness reports that the process is up. It never touches dependencies.
func (c *Checker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, status{Status: "alive"})
}

// Readiness pings the snapshot store and range cache with a short timeout.
func (c *Checker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if err := c.snapshots.Ping(ctx); err != nil {
		c.logger.Warn("snapshot store not ready", zap.Error(err))
		checks["snapshots"] = err.Error()
		healthy = false
	} else {
		checks["snapshots"] = "ok"
	}

	if err := c.cache.Ping(ctx); err != nil {
		c.logger.Warn("range cache not ready", zap.Error(err))
		checks["cache"] = err.Error()
		healthy = false
	} else {
		checks["cache"] = "ok"
	}

	if healthy {
		writeStatus(w, http.StatusOK, status{Status: "ready", Checks: checks})
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, status{Status: "not ready", Checks: checks})
}

func writeStatus(w http.ResponseWriter, code int, s status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(s)
}
