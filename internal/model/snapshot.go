package model

import "time"

// SnapshotVersion is the current persisted snapshot format version.
// Readers ignore snapshots written by a newer format.
const SnapshotVersion = 1

// Coverage describes the event-time span of a snapshot's records.
type Coverage struct {
	NewestMs int64 `json:"newestMs"`
	OldestMs int64 `json:"oldestMs"`
}

// Snapshot is the durable per-tenant merged record cache. It is owned by
// exactly one tenant and replaced wholesale on every successful refresh.
type Snapshot struct {
	Version         int        `json:"version"`
	TenantID        string     `json:"tenantId"`
	Kind            RecordKind `json:"kind"`
	UpdatedAtMs     int64      `json:"updatedAtMs"`
	NewestRecordISO string     `json:"newestRecordIso,omitempty"`
	OldestRecordISO string     `json:"oldestRecordIso,omitempty"`
	Records         []Record   `json:"records"`
}

// NewSnapshot builds a snapshot for the given tenant from an already-merged
// record set, computing coverage from the records' event-time extremes.
func NewSnapshot(tenantID string, kind RecordKind, records []Record, updatedAt time.Time) *Snapshot {
	s := &Snapshot{
		Version:     SnapshotVersion,
		TenantID:    tenantID,
		Kind:        kind,
		UpdatedAtMs: updatedAt.UnixMilli(),
		Records:     records,
	}
	if cov, ok := s.Coverage(); ok {
		s.NewestRecordISO = FormatMs(cov.NewestMs)
		s.OldestRecordISO = FormatMs(cov.OldestMs)
	}
	return s
}

// Coverage computes the event-time extremes of the snapshot's records.
// ok is false when no record carries a timestamp.
func (s *Snapshot) Coverage() (Coverage, bool) {
	var cov Coverage
	found := false
	for i := range s.Records {
		ts, ok := s.Records[i].EventTime()
		if !ok {
			continue
		}
		if !found {
			cov.NewestMs, cov.OldestMs = ts, ts
			found = true
			continue
		}
		if ts > cov.NewestMs {
			cov.NewestMs = ts
		}
		if ts < cov.OldestMs {
			cov.OldestMs = ts
		}
	}
	return cov, found
}

// Fresh reports whether the snapshot was updated within ttl of now.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-s.UpdatedAtMs <= ttl.Milliseconds()
}
