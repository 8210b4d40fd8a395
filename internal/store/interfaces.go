// Package store provides the durable per-tenant snapshot stores and the
// short-TTL response range caches backing the dashboard engine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// ErrNotFound is returned when a key or snapshot is not found. Snapshot
// readers also map unreadable or mismatched state to ErrNotFound so the
// engine falls back to a full sync instead of failing.
var ErrNotFound = errors.New("not found")

// SnapshotStore persists one merged-record snapshot per tenant and kind.
// Writes replace the snapshot wholesale; partial updates never happen.
type SnapshotStore interface {
	Read(ctx context.Context, kind model.RecordKind, tenantID string) (*model.Snapshot, error)
	Write(ctx context.Context, snapshot *model.Snapshot) error
	Ping(ctx context.Context) error
	Close()
}

// RangeCache caches fully-computed response payloads under a query key for
// a short TTL. It is a best-effort layer, never a correctness boundary.
type RangeCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
