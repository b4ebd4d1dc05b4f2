package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puretrack/internal/core"
	"puretrack/internal/types"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// mockAlertQueue implements AlertQueue for testing.
type mockAlertQueue struct {
	publishFn func(ctx context.Context, event types.RawAlertEvent) (string, error)

	calls    int
	captured types.RawAlertEvent
}

func (m *mockAlertQueue) Publish(ctx context.Context, event types.RawAlertEvent) (string, error) {
	m.calls++
	m.captured = event
	if m.publishFn != nil {
		return m.publishFn(ctx, event)
	}
	return "trace-123", nil
}

// =============================================================================
// Test Helpers
// =============================================================================

func newAlertsRouter(queue AlertQueue) chi.Router {
	logger := testLogger()
	h := NewAlertsHandler(queue, core.NewValidator(logger), logger)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func validAlertEventBody(t *testing.T) []byte {
	t.Helper()
	value := 11.2
	event := types.RawAlertEvent{
		EventID:        "evt-1",
		Parameter:      "ph",
		Value:          &value,
		Severity:       types.SeverityCritical,
		DeviceName:     "Tank 3 Sensor",
		Timestamp:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		RecipientUID:   "user-1",
		RecipientEmail: "ops@plant.example",
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func postEvent(router chi.Router, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/alerts/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// POST /v1/alerts/events
// =============================================================================

func TestIngestEvent_Accepted(t *testing.T) {
	queue := &mockAlertQueue{}
	router := newAlertsRouter(queue)

	rec := postEvent(router, validAlertEventBody(t))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, queue.calls)
	assert.Equal(t, "evt-1", queue.captured.EventID)
	assert.Equal(t, "ph", queue.captured.Parameter)

	var envelope struct {
		Data IngestResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "evt-1", envelope.Data.EventID)
	assert.Equal(t, "trace-123", envelope.Data.TraceID)
}

func TestIngestEvent_MalformedJSON(t *testing.T) {
	queue := &mockAlertQueue{}
	router := newAlertsRouter(queue)

	rec := postEvent(router, []byte(`{"event_id":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, queue.calls)
}

func TestIngestEvent_UnknownField(t *testing.T) {
	queue := &mockAlertQueue{}
	router := newAlertsRouter(queue)

	rec := postEvent(router, []byte(`{"event_id":"evt-1","bogus_field":true}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, queue.calls)
}

func TestIngestEvent_ValidationFailure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(event *types.RawAlertEvent)
	}{
		{
			name:   "missing event ID",
			mutate: func(e *types.RawAlertEvent) { e.EventID = "" },
		},
		{
			name:   "unknown severity",
			mutate: func(e *types.RawAlertEvent) { e.Severity = "Catastrophic" },
		},
		{
			name:   "invalid recipient email",
			mutate: func(e *types.RawAlertEvent) { e.RecipientEmail = "not-an-email" },
		},
		{
			name:   "missing timestamp",
			mutate: func(e *types.RawAlertEvent) { e.Timestamp = time.Time{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var event types.RawAlertEvent
			require.NoError(t, json.Unmarshal(validAlertEventBody(t), &event))
			tt.mutate(&event)
			body, err := json.Marshal(event)
			require.NoError(t, err)

			queue := &mockAlertQueue{}
			router := newAlertsRouter(queue)
			rec := postEvent(router, body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, queue.calls, "invalid events must not be enqueued")
			assert.Equal(t, string(types.ErrCodeValidationMissingField), decodeErrorCode(t, rec))
		})
	}
}

func TestIngestEvent_QueueFailure(t *testing.T) {
	queue := &mockAlertQueue{
		publishFn: func(ctx context.Context, event types.RawAlertEvent) (string, error) {
			return "", assert.AnError
		},
	}
	router := newAlertsRouter(queue)

	rec := postEvent(router, validAlertEventBody(t))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(types.ErrCodeUpstreamQueue), decodeErrorCode(t, rec))
	// The queue error detail must not leak to the client.
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestIngestEvent_EmptyBody(t *testing.T) {
	queue := &mockAlertQueue{}
	router := newAlertsRouter(queue)

	req := httptest.NewRequest(http.MethodPost, "/alerts/events", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, queue.calls)
}
