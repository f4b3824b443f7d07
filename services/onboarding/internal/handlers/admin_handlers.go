package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/diagnosis/agency-portal/pkg/auth"
	"github.com/diagnosis/agency-portal/pkg/response"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
)

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decodeBody(w, r, &req) {
		return
	}

	token, expiresAt, err := h.adminService.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		response.Unauthorized(w, "Invalid email or password")
		return
	}
	if err != nil {
		writeServiceError(w, r, err, "log in")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var status *domain.SubmissionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, ok := domain.ParseStatus(v)
		if !ok {
			response.BadRequest(w, "Invalid status parameter")
			return
		}
		status = &st
	}

	subs, err := h.onboardingService.ListSubmissions(r.Context(), status, limit, offset)
	if err != nil {
		writeServiceError(w, r, err, "list submissions")
		return
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *Handlers) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		response.BadRequest(w, "Invalid submission ID")
		return
	}

	sub, err := h.onboardingService.GetSubmission(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "load submission")
		return
	}
	if sub == nil {
		response.NotFound(w, "Submission not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handlers) UpdateSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		response.BadRequest(w, "Invalid submission ID")
		return
	}

	var patch domain.StatusPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	status, ok := domain.ParseStatus(patch.Status)
	if !ok {
		response.BadRequest(w, "Invalid status")
		return
	}

	sub, err := h.onboardingService.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeServiceError(w, r, err, "update submission")
		return
	}
	response.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handlers) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		response.BadRequest(w, "Invalid submission ID")
		return
	}

	deleted, err := h.onboardingService.DeleteSubmission(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "delete submission")
		return
	}
	if !deleted {
		response.NotFound(w, "Submission not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RequestApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		response.BadRequest(w, "Invalid submission ID")
		return
	}

	var req domain.ApprovalReq
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.approvalService.RequestApproval(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, r, err, "request approval")
		return
	}
	response.WriteJSON(w, http.StatusCreated, res)
}
