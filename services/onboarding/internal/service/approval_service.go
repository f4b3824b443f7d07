package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/diagnosis/agency-portal/pkg/approval"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/repository"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every approval token failure. Callers must not tell them apart.
var ErrInvalidToken = errors.New("invalid or expired token")

type ApprovalService interface {
	RequestApproval(ctx context.Context, submissionID int64, req *domain.ApprovalReq) (*domain.ApprovalRes, error)
	Inspect(ctx context.Context, proposalID, token string) (*domain.Proposal, error)
	Decide(ctx context.Context, proposalID, token string, decision domain.Decision, comment string) (*domain.DecisionRes, error)
}

type approvalService struct {
	tokens        *approval.Service
	proposals     repository.ProposalStore
	submissions   repository.SubmissionRepository
	bus           events.Publisher
	publicBaseURL string
	currency      string
	now           func() time.Time
}

func NewApprovalService(
	tokens *approval.Service,
	proposals repository.ProposalStore,
	submissions repository.SubmissionRepository,
	bus events.Publisher,
	publicBaseURL string,
	currency string,
) ApprovalService {
	return &approvalService{
		tokens:        tokens,
		proposals:     proposals,
		submissions:   submissions,
		bus:           bus,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		currency:      currency,
		now:           time.Now,
	}
}

func (s *approvalService) RequestApproval(ctx context.Context, submissionID int64, req *domain.ApprovalReq) (*domain.ApprovalRes, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	if sub.Status == domain.StatusApproved || sub.Status == domain.StatusRejected {
		return nil, fmt.Errorf("%w: submission already %s", domain.ErrInvalidState, sub.Status)
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.currency
	}

	token, payload, err := s.tokens.Issue(sub.CustomerID, sub.Email, sub.ProjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate approval token: %w", err)
	}

	proposal := &domain.Proposal{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		CustomerID:   payload.CustomerID,
		Email:        payload.Email,
		Name:         sub.ContactName,
		ProjectType:  payload.ProjectType,
		Summary:      req.Summary,
		PriceCents:   req.PriceCents,
		Currency:     currency,
		CreatedAt:    time.UnixMilli(payload.CreatedAt).UTC(),
		ExpiresAt:    time.UnixMilli(payload.ExpiresAt).UTC(),
	}

	// Only the newest proposal for a submission can be decided.
	revoked, err := s.proposals.Revoke(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke previous proposal: %w", err)
	}
	if revoked != "" {
		logger.InfoContext(ctx, "Previous proposal revoked", "proposal_id", revoked, "submission_id", sub.ID)
	}

	// The record never outlives the token that can act on it.
	if err := s.proposals.Create(ctx, proposal.ID, proposal, approval.TokenTTL); err != nil {
		return nil, fmt.Errorf("failed to store proposal: %w", err)
	}

	res := &domain.ApprovalRes{
		ProposalID: proposal.ID,
		ApproveURL: s.link(proposal.ID, token, domain.DecisionApprove),
		RejectURL:  s.link(proposal.ID, token, domain.DecisionReject),
		ExpiresAt:  proposal.ExpiresAt,
	}

	evt := events.ApprovalRequestedEvent{
		ProposalID:   proposal.ID,
		SubmissionID: proposal.SubmissionID,
		CustomerID:   proposal.CustomerID,
		Email:        proposal.Email,
		Name:         proposal.Name,
		ProjectType:  proposal.ProjectType,
		Summary:      proposal.Summary,
		PriceCents:   proposal.PriceCents,
		Currency:     proposal.Currency,
		ApproveURL:   res.ApproveURL,
		RejectURL:    res.RejectURL,
		ExpiresAt:    proposal.ExpiresAt,
	}
	if err := s.bus.Publish(ctx, events.ApprovalRequested, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish approval requested event", "error", err, "proposal_id", proposal.ID)
	}

	if _, err := s.submissions.UpdateStatus(ctx, sub.ID, domain.StatusApprovalSent); err != nil {
		logger.ErrorContext(ctx, "Failed to mark submission approval_sent", "error", err, "submission_id", sub.ID)
	}

	logger.InfoContext(ctx, "Approval requested", "proposal_id", proposal.ID, "submission_id", sub.ID, "customer_id", proposal.CustomerID)
	return res, nil
}

func (s *approvalService) link(proposalID, token string, d domain.Decision) string {
	return fmt.Sprintf("%s/approvals/%s?token=%s&decision=%s",
		s.publicBaseURL, url.PathEscape(proposalID), url.QueryEscape(token), d)
}

// authorize validates the token and loads the proposal it must belong to.
func (s *approvalService) authorize(ctx context.Context, proposalID, token string) (*domain.Proposal, error) {
	res := s.tokens.Validate(token)
	if !res.Valid {
		logger.SecurityContext(ctx, "approval_token_rejected", "reason", string(res.Error), "proposal_id", proposalID)
		return nil, ErrInvalidToken
	}

	proposal, err := s.proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal: %w", err)
	}
	if proposal == nil {
		return nil, domain.ErrNotFound
	}

	if proposal.CustomerID != res.Data.CustomerID ||
		!strings.EqualFold(proposal.Email, res.Data.Email) ||
		proposal.ProjectType != res.Data.ProjectType {
		logger.SecurityContext(ctx, "approval_token_mismatch",
			"proposal_id", proposalID,
			"token_customer_id", res.Data.CustomerID,
			"token_project_type", res.Data.ProjectType,
		)
		return nil, ErrInvalidToken
	}
	return proposal, nil
}

func (s *approvalService) Inspect(ctx context.Context, proposalID, token string) (*domain.Proposal, error) {
	return s.authorize(ctx, proposalID, token)
}

func (s *approvalService) Decide(ctx context.Context, proposalID, token string, decision domain.Decision, comment string) (*domain.DecisionRes, error) {
	proposal, err := s.authorize(ctx, proposalID, token)
	if err != nil {
		return nil, err
	}

	sub, err := s.submissions.GetByID(ctx, proposal.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	// A submission that is gone or already decided leaves nothing to decide on.
	if sub == nil || sub.Status == domain.StatusApproved || sub.Status == domain.StatusRejected {
		if _, err := s.proposals.Delete(ctx, proposalID); err != nil {
			logger.ErrorContext(ctx, "Failed to drop stale proposal", "error", err, "proposal_id", proposalID)
		}
		return nil, domain.ErrNotFound
	}

	removed, err := s.proposals.Delete(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume proposal: %w", err)
	}
	if !removed {
		// Another request decided first.
		return nil, domain.ErrNotFound
	}

	ctx = context.WithValue(ctx, logger.CustomerIDKey, proposal.CustomerID)

	evt := events.ApprovalDecidedEvent{
		ProposalID:   proposal.ID,
		SubmissionID: proposal.SubmissionID,
		CustomerID:   proposal.CustomerID,
		Email:        proposal.Email,
		Name:         proposal.Name,
		ProjectType:  proposal.ProjectType,
		Decision:     string(decision),
		Comment:      comment,
		DecidedAt:    s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, events.ApprovalDecided, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish approval decided event", "error", err, "proposal_id", proposal.ID)
	}

	status := domain.StatusApproved
	if decision == domain.DecisionReject {
		status = domain.StatusRejected
	}
	if _, err := s.submissions.UpdateStatus(ctx, proposal.SubmissionID, status); err != nil {
		logger.ErrorContext(ctx, "Failed to update submission after decision", "error", err, "submission_id", proposal.SubmissionID)
	}

	logger.InfoContext(ctx, "Proposal decided", "proposal_id", proposal.ID, "decision", decision)
	return &domain.DecisionRes{ProposalID: proposal.ID, Decision: decision}, nil
}
