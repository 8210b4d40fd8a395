package crm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// SpecFor returns the remote contract for a dashboard kind.
func SpecFor(kind model.RecordKind) (SourceSpec, error) {
	switch kind {
	case model.KindAppointments:
		return appointmentsSpec, nil
	case model.KindConversations:
		return conversationsSpec, nil
	case model.KindTransactions:
		return transactionsSpec, nil
	default:
		return SourceSpec{}, fmt.Errorf("crm: no source spec for kind %q", kind)
	}
}

// Appointment searches. Newer accounts expose a POST search endpoint, older
// ones only the calendar events listing; both are tried in order.
var appointmentsSpec = SourceSpec{
	Kind: model.KindAppointments,
	Variants: []Variant{
		{
			Name:   "appointments_search_post",
			Method: http.MethodPost,
			Path:   "/appointments/search",
			Build: func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any) {
				return nil, map[string]any{
					"locationId": t.ID,
					"startDate":  model.FormatMs(q.StartMs),
					"endDate":    model.FormatMs(q.EndMs),
					"page":       pr.Page,
					"limit":      limit,
				}
			},
			Parse: func(t model.Tenant, body []byte) (*PageResult, error) {
				return parseListPage(t, model.KindAppointments, body, listKeys{"appointments", "events"}, appointmentRecord)
			},
		},
		{
			Name:   "calendar_events_get",
			Method: http.MethodGet,
			Path:   "/calendars/events",
			Build: func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any) {
				v := url.Values{}
				v.Set("locationId", t.ID)
				v.Set("startTime", strconv.FormatInt(q.StartMs, 10))
				v.Set("endTime", strconv.FormatInt(q.EndMs, 10))
				v.Set("page", strconv.Itoa(pr.Page))
				v.Set("limit", strconv.Itoa(limit))
				return v, nil
			},
			Parse: func(t model.Tenant, body []byte) (*PageResult, error) {
				return parseListPage(t, model.KindAppointments, body, listKeys{"events", "appointments"}, appointmentRecord)
			},
		},
	},
}

// Conversation searches. The search endpoint paginates by continuation
// token; the plain listing paginates by page number.
var conversationsSpec = SourceSpec{
	Kind: model.KindConversations,
	Variants: []Variant{
		{
			Name:       "conversations_search_post",
			Method:     http.MethodPost,
			Path:       "/conversations/search",
			UsesCursor: true,
			Build: func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any) {
				body := map[string]any{
					"locationId": t.ID,
					"sort":       "desc",
					"sortBy":     "last_message_date",
					"limit":      limit,
				}
				if pr.Cursor != "" {
					body["cursor"] = pr.Cursor
				}
				return nil, body
			},
			Parse: func(t model.Tenant, body []byte) (*PageResult, error) {
				return parseListPage(t, model.KindConversations, body, listKeys{"conversations"}, conversationRecord)
			},
		},
		{
			Name:   "conversations_get",
			Method: http.MethodGet,
			Path:   "/conversations",
			Build: func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any) {
				v := url.Values{}
				v.Set("locationId", t.ID)
				v.Set("page", strconv.Itoa(pr.Page))
				v.Set("limit", strconv.Itoa(limit))
				return v, nil
			},
			Parse: func(t model.Tenant, body []byte) (*PageResult, error) {
				return parseListPage(t, model.KindConversations, body, listKeys{"conversations"}, conversationRecord)
			},
		},
	},
}

// Transaction searches.
var transactionsSpec = SourceSpec{
	Kind: model.KindTransactions,
	Variants: []Variant{
		{
			Name:   "payments_transactions_get",
			Method: http.MethodGet,
			Path:   "/payments/transactions",
			Build: func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any) {
				v := url.Values{}
				v.Set("altId", t.ID)
				v.Set("altType", "location")
				v.Set("startAt", model.FormatMs(q.StartMs))
				v.Set("endAt", model.FormatMs(q.EndMs))
				v.Set("page", strconv.Itoa(pr.Page))
				v.Set("limit", strconv.Itoa(limit))
				return v, nil
			},
			Parse: func(t model.Tenant, body []byte) (*PageResult, error) {
				return parseListPage(t, model.KindTransactions, body, listKeys{"data", "transactions"}, transactionRecord)
			},
		},
		{
			Name:   "payments_orders_get",
			Method: http.MethodGet,
			Path:   "/payments/orders",
			Build: func(t model.Tenant, q SearchQuery, pr PageRequest, limit int) (url.Values, map[string]any) {
				v := url.Values{}
				v.Set("locationId", t.ID)
				v.Set("page", strconv.Itoa(pr.Page))
				v.Set("limit", strconv.Itoa(limit))
				return v, nil
			},
			Parse: func(t model.Tenant, body []byte) (*PageResult, error) {
				return parseListPage(t, model.KindTransactions, body, listKeys{"data", "orders"}, transactionRecord)
			},
		},
	},
}

// listKeys are the response fields, in preference order, that may hold the
// record array for a variant.
type listKeys []string

// parseListPage decodes a response envelope, locates the record list and
// maps each item through toRecord. A top-level nextCursor (or meta cursor)
// is surfaced for cursor-paginated variants.
func parseListPage(t model.Tenant, kind model.RecordKind, body []byte, keys listKeys, toRecord func(t model.Tenant, item map[string]any) model.Record) (*PageResult, error) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("crm: malformed response body: %w", err)
	}

	var items []any
	for _, k := range keys {
		if raw, ok := envelope[k].([]any); ok {
			items = raw
			break
		}
	}
	if items == nil {
		return nil, fmt.Errorf("crm: response has none of the expected list fields %v", keys)
	}

	res := &PageResult{Records: make([]model.Record, 0, len(items))}
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		res.Records = append(res.Records, toRecord(t, m))
	}

	res.NextCursor = stringField(envelope, "nextCursor", "next_cursor")
	if res.NextCursor == "" {
		if meta, ok := envelope["meta"].(map[string]any); ok {
			res.NextCursor = stringField(meta, "nextCursor", "cursor")
		}
	}
	return res, nil
}

func appointmentRecord(t model.Tenant, m map[string]any) model.Record {
	return model.Record{
		ID:       stringField(m, "id", "_id", "appointmentId"),
		TenantID: t.ID,
		Kind:     model.KindAppointments,
		FallbackKeys: []string{
			stringField(m, "contactId", "contact_id"),
			stringField(m, "startTime", "start_time"),
		},
		EventTimeMs: timeMsField(m, "startTime", "start_time", "appointmentStart"),
		Payload:     m,
	}
}

func conversationRecord(t model.Tenant, m map[string]any) model.Record {
	return model.Record{
		ID:       stringField(m, "id", "_id", "conversationId"),
		TenantID: t.ID,
		Kind:     model.KindConversations,
		FallbackKeys: []string{
			stringField(m, "contactId", "contact_id"),
		},
		EventTimeMs: timeMsField(m, "lastMessageDate", "last_message_date", "dateUpdated", "dateAdded"),
		Payload:     m,
	}
}

func transactionRecord(t model.Tenant, m map[string]any) model.Record {
	return model.Record{
		ID:       stringField(m, "_id", "id", "transactionId"),
		TenantID: t.ID,
		Kind:     model.KindTransactions,
		FallbackKeys: []string{
			stringField(m, "contactId", "contact_id"),
			numberAsString(m, "amount"),
			stringField(m, "createdAt", "created_at"),
		},
		EventTimeMs: timeMsField(m, "paidAt", "paymentDate", "createdAt", "created_at"),
		Payload:     m,
	}
}

// stringField returns the first present non-empty string among keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numberAsString renders a numeric field for use inside a fallback key.
func numberAsString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return ""
	}
}

// timeMsField extracts an event time in epoch milliseconds from the first
// parseable candidate field. The platform mixes epoch numbers and ISO
// timestamps per account, so both are accepted. nil means no usable time.
func timeMsField(m map[string]any, keys ...string) *int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			ms := int64(v)
			// Heuristic: values below ~Sep 2001 in ms are epoch seconds.
			if ms > 0 && ms < 1e12 {
				ms *= 1000
			}
			if ms > 0 {
				return &ms
			}
		case string:
			if ms, ok := parseTimeString(v); ok {
				return &ms
			}
		}
	}
	return nil
}

func parseTimeString(s string) (int64, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UnixMilli(), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n < 1e12 {
			n *= 1000
		}
		return n, true
	}
	return 0, false
}
