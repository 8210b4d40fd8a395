package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

func TestSpecFor(t *testing.T) {
	for _, kind := range model.Kinds() {
		spec, err := SpecFor(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, spec.Kind)
		assert.NotEmpty(t, spec.Variants)
	}

	_, err := SpecFor(model.RecordKind("invoices"))
	assert.Error(t, err)
}

func TestParse_AppointmentsEnvelope(t *testing.T) {
	spec, err := SpecFor(model.KindAppointments)
	require.NoError(t, err)

	body := []byte(`{
		"appointments": [
			{"id": "apt-1", "contactId": "c-1", "startTime": "2024-01-15T10:00:00Z", "appointmentStatus": "confirmed"},
			{"id": "apt-2", "startTime": 1705312800}
		]
	}`)

	page, err := spec.Variants[0].Parse(model.Tenant{ID: "loc-1"}, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	r := page.Records[0]
	assert.Equal(t, "apt-1", r.ID)
	assert.Equal(t, "loc-1", r.TenantID)
	assert.Equal(t, model.KindAppointments, r.Kind)
	require.NotNil(t, r.EventTimeMs)
	assert.Equal(t, int64(1705312800000), *r.EventTimeMs)
	assert.Equal(t, "confirmed", r.Payload["appointmentStatus"])

	// Epoch seconds are normalized to milliseconds.
	require.NotNil(t, page.Records[1].EventTimeMs)
	assert.Equal(t, int64(1705312800000), *page.Records[1].EventTimeMs)
}

func TestParse_AlternateListField(t *testing.T) {
	spec, err := SpecFor(model.KindAppointments)
	require.NoError(t, err)

	body := []byte(`{"events": [{"id": "ev-1", "startTime": "2024-01-15T10:00:00Z"}]}`)

	page, err := spec.Variants[0].Parse(model.Tenant{ID: "loc-1"}, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "ev-1", page.Records[0].ID)
}

func TestParse_ConversationsCursor(t *testing.T) {
	spec, err := SpecFor(model.KindConversations)
	require.NoError(t, err)

	body := []byte(`{
		"conversations": [
			{"id": "conv-1", "lastMessageDate": "2024-01-15T10:00:00Z", "unreadCount": 3}
		],
		"nextCursor": "abc123"
	}`)

	page, err := spec.Variants[0].Parse(model.Tenant{ID: "loc-1"}, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "abc123", page.NextCursor)
	assert.Equal(t, model.KindConversations, page.Records[0].Kind)
}

func TestParse_TransactionsFallbackIdentity(t *testing.T) {
	spec, err := SpecFor(model.KindTransactions)
	require.NoError(t, err)

	// No id at all: identity comes from contact, amount and creation time.
	body := []byte(`{"data": [
		{"contactId": "c-9", "amount": 49.5, "createdAt": "2024-01-15T10:00:00Z", "paymentStatus": "succeeded"}
	]}`)

	page, err := spec.Variants[0].Parse(model.Tenant{ID: "loc-1"}, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	r := page.Records[0]
	assert.Empty(t, r.ID)
	assert.Equal(t, "loc-1|c-9|49.5|2024-01-15T10:00:00Z", r.DedupKey())
}

func TestParse_UnexpectedEnvelope(t *testing.T) {
	spec, err := SpecFor(model.KindAppointments)
	require.NoError(t, err)

	_, err = spec.Variants[0].Parse(model.Tenant{ID: "loc-1"}, []byte(`{"message": "Not found"}`))
	assert.Error(t, err)

	_, err = spec.Variants[0].Parse(model.Tenant{ID: "loc-1"}, []byte(`not json`))
	assert.Error(t, err)
}

func TestTimeMsField_Heuristics(t *testing.T) {
	ptr := timeMsField(map[string]any{"startTime": float64(1705312800)}, "startTime")
	require.NotNil(t, ptr)
	assert.Equal(t, int64(1705312800000), *ptr)

	ptr = timeMsField(map[string]any{"startTime": float64(1705312800000)}, "startTime")
	require.NotNil(t, ptr)
	assert.Equal(t, int64(1705312800000), *ptr)

	assert.Nil(t, timeMsField(map[string]any{"startTime": "garbage"}, "startTime"))
	assert.Nil(t, timeMsField(map[string]any{}, "startTime"))
}
