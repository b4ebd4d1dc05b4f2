// Package handlers contains the HTTP handler implementations for the
// PureTrack digest API.
//
// Each handler defines the service interfaces it needs locally, following
// the handler injection pattern: no coupling to concrete service types,
// straightforward test mocking.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"puretrack/internal/core"
	"puretrack/internal/types"
)

// Acknowledger validates a digest acknowledgment token and applies the
// terminal transition. Implemented by digest.AckService.
type Acknowledger interface {
	Acknowledge(ctx context.Context, digestID, token, actorUID string) error
}

// AckRequest is the request body for POST /v1/digests/{digestID}/ack.
// The GET variant carries the token as a query parameter instead, so the
// link embedded in digest emails works from any mail client.
type AckRequest struct {
	Token string `json:"token" validate:"required"`
}

// AckResponse is returned for both first-time and repeated acknowledgments.
type AckResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	DigestID string `json:"digest_id"`
}

// emailLinkActor is recorded as acknowledged_by when the acknowledgment
// arrives through the tokenized email link, which carries no other
// identity.
const emailLinkActor = "email_link"

// AckHandler serves the acknowledgment endpoint that terminates a digest's
// send lifecycle.
type AckHandler struct {
	acks   Acknowledger
	logger *slog.Logger
}

// NewAckHandler creates an AckHandler.
func NewAckHandler(acks Acknowledger, l *slog.Logger) *AckHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AckHandler{
		acks:   acks,
		logger: l,
	}
}

// RegisterRoutes mounts acknowledgment routes onto the provided router.
// Both verbs are served: GET for the email link, POST for programmatic
// clients.
func (h *AckHandler) RegisterRoutes(r chi.Router) {
	r.Get("/digests/{digestID}/ack", h.AckFromLink)
	r.Post("/digests/{digestID}/ack", h.Ack)
}

// AckFromLink handles GET /v1/digests/{digestID}/ack?token=...
//
// The route is public; the token is the sole credential. An unknown
// digest returns 404 and a wrong token on an existing digest returns 401,
// but a wrong token never reveals whether the digest has already been
// acknowledged.
func (h *AckHandler) AckFromLink(w http.ResponseWriter, r *http.Request) {
	digestID := chi.URLParam(r, "digestID")
	token := r.URL.Query().Get("token")
	h.acknowledge(w, r, digestID, token)
}

// Ack handles POST /v1/digests/{digestID}/ack with a JSON body.
func (h *AckHandler) Ack(w http.ResponseWriter, r *http.Request) {
	digestID := chi.URLParam(r, "digestID")

	var req AckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	h.acknowledge(w, r, digestID, req.Token)
}

func (h *AckHandler) acknowledge(w http.ResponseWriter, r *http.Request, digestID, token string) {
	if digestID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"digest ID is required",
			nil,
		))
		return
	}

	actorUID := emailLinkActor
	if actor, ok := types.GetActor(r.Context()); ok && actor.ID != "" {
		actorUID = actor.ID
	}

	err := h.acks.Acknowledge(r.Context(), digestID, token, actorUID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeAckAlreadyDone {
			// Repeated clicks on the same email link are fine.
			core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AckResponse{
				Success:  true,
				Message:  "digest was already acknowledged",
				DigestID: digestID,
			}})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AckResponse{
		Success:  true,
		Message:  "digest acknowledged; no further emails will be sent for it",
		DigestID: digestID,
	}})
}
