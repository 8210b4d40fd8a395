// Package model defines the core data types shared across the dashboard
// engine: tenants, records, snapshots and refresh outcomes.
package model

import (
	"strings"
	"time"
)

// RecordKind identifies which dashboard a record belongs to.
type RecordKind string

const (
	KindAppointments  RecordKind = "appointments"
	KindConversations RecordKind = "conversations"
	KindTransactions  RecordKind = "transactions"
)

// Kinds lists every supported dashboard kind.
func Kinds() []RecordKind {
	return []RecordKind{KindAppointments, KindConversations, KindTransactions}
}

// ValidKind reports whether k names a supported dashboard kind.
func ValidKind(k RecordKind) bool {
	switch k {
	case KindAppointments, KindConversations, KindTransactions:
		return true
	default:
		return false
	}
}

// Record is one unit of CRM activity (an appointment, a conversation or a
// transaction) normalized for the cache engine. The domain payload is kept
// verbatim so the response layer can surface whatever the remote returned.
type Record struct {
	ID           string         `json:"id,omitempty"`
	TenantID     string         `json:"tenantId"`
	Kind         RecordKind     `json:"kind"`
	FallbackKeys []string       `json:"fallbackKeys,omitempty"`
	EventTimeMs  *int64         `json:"eventTimeMs,omitempty"`
	Payload      map[string]any `json:"payload"`
}

// DedupKey returns the identity used to collapse duplicates during merge:
// the remote id when present, otherwise tenant plus the fallback identity
// fields. The empty string means the record has no derivable identity and
// must be dropped.
func (r *Record) DedupKey() string {
	if r.ID != "" {
		return r.ID
	}
	fallback := make([]string, 0, len(r.FallbackKeys))
	for _, k := range r.FallbackKeys {
		if k != "" {
			fallback = append(fallback, k)
		}
	}
	if len(fallback) == 0 {
		return ""
	}
	return r.TenantID + "|" + strings.Join(fallback, "|")
}

// EventTime returns the record's event time in epoch milliseconds, or ok
// false when the remote supplied none.
func (r *Record) EventTime() (int64, bool) {
	if r.EventTimeMs == nil {
		return 0, false
	}
	return *r.EventTimeMs, true
}

// InRange reports whether the record falls inside [startMs, endMs].
// Records without a derivable timestamp are considered in range so that
// malformed remote data is never silently hidden.
func (r *Record) InRange(startMs, endMs int64) bool {
	ts, ok := r.EventTime()
	if !ok {
		return true
	}
	return ts >= startMs && ts <= endMs
}

// FormatMs renders an epoch-millisecond timestamp as RFC 3339 UTC.
func FormatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
