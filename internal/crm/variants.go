package crm

import (
	"net/url"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// SearchQuery bounds a remote search by event time.
type SearchQuery struct {
	StartMs int64
	EndMs   int64
}

// PageRequest carries the pagination state for one page fetch. Page is
// 1-based; Cursor is used instead when the variant paginates by
// continuation token.
type PageRequest struct {
	Page   int
	Cursor string
}

// PageResult is one parsed page of remote records. NextCursor is empty for
// page-number pagination or when the remote signalled the last page.
type PageResult struct {
	Records    []model.Record
	NextCursor string
}

// Variant describes one request shape for a logical search operation.
// The platform's API differs across accounts in field naming, pagination
// style and HTTP method, so each dashboard kind carries an ordered list of
// variants tried in order on the first page only.
type Variant struct {
	Name       string
	Method     string
	Path       string
	UsesCursor bool

	// Build produces the query string and optional JSON body for a page.
	Build func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any)
	// Parse decodes a 2xx response body into records for the tenant.
	Parse func(t model.Tenant, body []byte) (*PageResult, error)
}

// SourceSpec is the full remote contract for one dashboard kind.
type SourceSpec struct {
	Kind     model.RecordKind
	Variants []Variant
}

// Budget bounds a single FetchPages call. Zero values mean unbounded.
// StopOlderThanMs is the incremental watermark: fetching stops once the
// oldest record on a page predates it.
type Budget struct {
	MaxPages        int
	MaxRecords      int
	StopOlderThanMs int64
}
