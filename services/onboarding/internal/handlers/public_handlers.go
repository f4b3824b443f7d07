package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/diagnosis/agency-portal/pkg/response"
	"github.com/diagnosis/agency-portal/pkg/validate"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxFormBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(v); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return false
	}
	return true
}

// SubmitOnboarding stores the post-purchase project questionnaire.
func (h *Handlers) SubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmissionReq
	if !decodeBody(w, r, &req) {
		return
	}

	sub, err := h.onboardingService.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err, "store submission")
		return
	}

	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":      sub.ID,
		"status":  sub.Status,
		"message": "Thanks! We will review your project and get back to you shortly.",
	})
}

func (h *Handlers) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var req domain.ContactReq
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.onboardingService.Contact(r.Context(), &req); err != nil {
		writeServiceError(w, r, err, "send contact request")
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "Message received"})
}

func (h *Handlers) InspectProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.approvalService.Inspect(r.Context(), chi.URLParam(r, "proposalID"), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, err, "load proposal")
		return
	}
	response.WriteJSON(w, http.StatusOK, proposal)
}

// Decide records the customer's answer. The body is optional and only carries a comment.
func (h *Handlers) Decide(decision domain.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.DecisionReq
		if r.Body != nil {
			err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req)
			if err != nil && !errors.Is(err, io.EOF) {
				response.BadRequest(w, "Invalid JSON body")
				return
			}
		}
		req.Comment = validate.NormalizeString(req.Comment)
		if !validate.MaxLen(req.Comment, 2000) {
			response.BadRequest(w, "Comment too long")
			return
		}

		res, err := h.approvalService.Decide(r.Context(), chi.URLParam(r, "proposalID"), r.URL.Query().Get("token"), decision, req.Comment)
		if err != nil {
			writeServiceError(w, r, err, "record decision")
			return
		}
		response.WriteJSON(w, http.StatusOK, res)
	}
}
