package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"puretrack/internal/core"
	"puretrack/internal/types"
)

// AlertQueue enqueues a validated alert event for the aggregation worker.
// Implemented by queue.AlertPublisher.
type AlertQueue interface {
	Publish(ctx context.Context, event types.RawAlertEvent) (string, error)
}

// IngestResponse acknowledges an accepted alert event. The trace ID lets
// the gateway correlate the event through the worker and send audit logs.
type IngestResponse struct {
	EventID string `json:"event_id"`
	TraceID string `json:"trace_id"`
}

// AlertsHandler serves the ingest endpoint the device gateway posts raw
// alert events to. The endpoint only validates and enqueues; aggregation
// happens in the worker so burst ingest cannot stall request handling.
type AlertsHandler struct {
	queue     AlertQueue
	validator *core.Validator
	logger    *slog.Logger
}

// NewAlertsHandler creates an AlertsHandler.
func NewAlertsHandler(queue AlertQueue, validator *core.Validator, l *slog.Logger) *AlertsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AlertsHandler{
		queue:     queue,
		validator: validator,
		logger:    l,
	}
}

// RegisterRoutes mounts the ingest route onto the provided router. The
// caller is responsible for applying APIKeyAuthMiddleware; the route must
// never be exposed unauthenticated.
func (h *AlertsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/alerts/events", h.IngestEvent)
}

// IngestEvent handles POST /v1/alerts/events.
//
//  1. Decode the RawAlertEvent (strict JSON, 1 MB cap).
//  2. Validate required fields and the severity enum.
//  3. Enqueue for the aggregation worker.
//  4. Return 202 Accepted with the assigned trace ID.
func (h *AlertsHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var event types.RawAlertEvent
	if err := core.DecodeJSON(w, r, &event); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(event); err != nil {
		core.Error(w, r, err)
		return
	}

	traceID, err := h.queue.Publish(r.Context(), event)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enqueue alert event",
			"event_id", event.EventID,
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeUpstreamQueue,
			"failed to enqueue alert event",
			err,
		))
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: IngestResponse{
		EventID: event.EventID,
		TraceID: traceID,
	}})
}
