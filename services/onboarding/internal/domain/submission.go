package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/agency-portal/pkg/validate"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state transition")
)

type SubmissionStatus string

const (
	StatusNew          SubmissionStatus = "new"
	StatusReviewed     SubmissionStatus = "reviewed"
	StatusApprovalSent SubmissionStatus = "approval_sent"
	StatusApproved     SubmissionStatus = "approved"
	StatusRejected     SubmissionStatus = "rejected"
)

func ParseStatus(s string) (SubmissionStatus, bool) {
	switch SubmissionStatus(s) {
	case StatusNew, StatusReviewed, StatusApprovalSent, StatusApproved, StatusRejected:
		return SubmissionStatus(s), true
	default:
		return "", false
	}
}

// ProjectTypes are the questionnaire's project categories.
var ProjectTypes = []string{"landing_page", "business_site", "ecommerce", "web_app", "portfolio", "blog", "other"}

func validProjectType(s string) bool {
	for _, p := range ProjectTypes {
		if p == s {
			return true
		}
	}
	return false
}

type Submission struct {
	ID                int64            `json:"id"`
	CustomerID        string           `json:"customer_id"`
	Status            SubmissionStatus `json:"status"`
	BusinessName      string           `json:"business_name"`
	ContactName       string           `json:"contact_name"`
	Email             string           `json:"email"`
	Phone             string           `json:"phone"`
	PlanID            string           `json:"plan_id"`
	ProjectType       string           `json:"project_type"`
	Goals             string           `json:"goals"`
	Pages             []string         `json:"pages"`
	Features          []string         `json:"features"`
	Deadline          string           `json:"deadline"`
	Budget            string           `json:"budget"`
	Notes             string           `json:"notes"`
	CheckoutSessionID string           `json:"checkout_session_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type SubmissionReq struct {
	BusinessName      string   `json:"business_name"`
	ContactName       string   `json:"contact_name"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone"`
	PlanID            string   `json:"plan_id"`
	ProjectType       string   `json:"project_type"`
	Goals             string   `json:"goals"`
	Pages             []string `json:"pages"`
	Features          []string `json:"features"`
	Deadline          string   `json:"deadline"`
	Budget            string   `json:"budget"`
	Notes             string   `json:"notes"`
	CheckoutSessionID string   `json:"checkout_session_id"`
}

const (
	maxShortField = 200
	maxLongField  = 5000
	maxListItems  = 30
)

func (r *SubmissionReq) Normalize() {
	r.BusinessName = validate.NormalizeString(r.BusinessName)
	r.ContactName = validate.NormalizeString(r.ContactName)
	r.Email = validate.NormalizeEmail(r.Email)
	r.Phone = validate.NormalizePhone(r.Phone)
	r.PlanID = validate.NormalizeString(r.PlanID)
	r.ProjectType = strings.ToLower(validate.NormalizeString(r.ProjectType))
	r.Goals = validate.NormalizeString(r.Goals)
	r.Deadline = validate.NormalizeString(r.Deadline)
	r.Budget = validate.NormalizeString(r.Budget)
	r.Notes = validate.NormalizeString(r.Notes)
	r.CheckoutSessionID = validate.NormalizeString(r.CheckoutSessionID)
	r.Pages = normalizeList(r.Pages)
	r.Features = normalizeList(r.Features)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = validate.NormalizeString(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *SubmissionReq) Validate() error {
	switch {
	case r.BusinessName == "" || !validate.MaxLen(r.BusinessName, maxShortField):
		return fmt.Errorf("%w: business_name is required (max %d chars)", ErrValidation, maxShortField)
	case r.ContactName == "" || !validate.MaxLen(r.ContactName, maxShortField):
		return fmt.Errorf("%w: contact_name is required (max %d chars)", ErrValidation, maxShortField)
	case !validate.IsValidEmail(r.Email):
		return fmt.Errorf("%w: email is invalid", ErrValidation)
	case r.Phone != "" && !validate.IsValidPhone(r.Phone):
		return fmt.Errorf("%w: phone is invalid", ErrValidation)
	case !validProjectType(r.ProjectType):
		return fmt.Errorf("%w: project_type must be one of %s", ErrValidation, strings.Join(ProjectTypes, ", "))
	case !validate.MaxLen(r.Goals, maxLongField) || !validate.MaxLen(r.Notes, maxLongField):
		return fmt.Errorf("%w: goals and notes are limited to %d chars", ErrValidation, maxLongField)
	case !validate.MaxLen(r.PlanID, 50) || !validate.MaxLen(r.Deadline, 100) || !validate.MaxLen(r.Budget, 100):
		return fmt.Errorf("%w: plan_id, deadline or budget too long", ErrValidation)
	case len(r.Pages) > maxListItems || len(r.Features) > maxListItems:
		return fmt.Errorf("%w: at most %d pages and features", ErrValidation, maxListItems)
	}
	return nil
}

// TextFields returns the free-text values that go through the content heuristics.
func (r *SubmissionReq) TextFields() []string {
	fields := []string{r.BusinessName, r.ContactName, r.Goals, r.Deadline, r.Budget, r.Notes}
	fields = append(fields, r.Pages...)
	return append(fields, r.Features...)
}

type StatusPatch struct {
	Status string `json:"status"`
}

type ContactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (r *ContactReq) Normalize() {
	r.Name = validate.NormalizeString(r.Name)
	r.Email = validate.NormalizeEmail(r.Email)
	r.Phone = validate.NormalizePhone(r.Phone)
	r.Subject = validate.NormalizeString(r.Subject)
	r.Message = validate.NormalizeString(r.Message)
}

func (r *ContactReq) Validate() error {
	switch {
	case r.Name == "" || !validate.MaxLen(r.Name, maxShortField):
		return fmt.Errorf("%w: name is required (max %d chars)", ErrValidation, maxShortField)
	case !validate.IsValidEmail(r.Email):
		return fmt.Errorf("%w: email is invalid", ErrValidation)
	case r.Phone != "" && !validate.IsValidPhone(r.Phone):
		return fmt.Errorf("%w: phone is invalid", ErrValidation)
	case !validate.MaxLen(r.Subject, maxShortField):
		return fmt.Errorf("%w: subject too long", ErrValidation)
	case len([]rune(r.Message)) < 10 || !validate.MaxLen(r.Message, maxLongField):
		return fmt.Errorf("%w: message must be 10 to %d chars", ErrValidation, maxLongField)
	}
	return nil
}
