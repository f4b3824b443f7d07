package domain

import (
	"fmt"
	"time"

	"github.com/diagnosis/agency-portal/pkg/validate"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Proposal is what the customer approves or rejects. It lives in the proposal store until a
// decision consumes it or it expires with its token.
type Proposal struct {
	ID           string    `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	CustomerID   string    `json:"customer_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ProjectType  string    `json:"project_type"`
	Summary      string    `json:"summary"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ApprovalReq struct {
	Summary    string `json:"summary"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

func (r *ApprovalReq) Validate() error {
	r.Summary = validate.NormalizeString(r.Summary)
	switch {
	case r.Summary == "" || !validate.MaxLen(r.Summary, maxLongField):
		return fmt.Errorf("%w: summary is required (max %d chars)", ErrValidation, maxLongField)
	case r.PriceCents < 0:
		return fmt.Errorf("%w: price_cents must not be negative", ErrValidation)
	case len(r.Currency) > 3:
		return fmt.Errorf("%w: currency must be an ISO code", ErrValidation)
	}
	return nil
}

type ApprovalRes struct {
	ProposalID string    `json:"proposal_id"`
	ApproveURL string    `json:"approve_url"`
	RejectURL  string    `json:"reject_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type DecisionReq struct {
	Comment string `json:"comment"`
}

type DecisionRes struct {
	ProposalID string   `json:"proposal_id"`
	Decision   Decision `json:"decision"`
}
