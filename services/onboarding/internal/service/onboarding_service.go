package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/agency-portal/pkg/approval"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/security"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/repository"
)

// ErrSuspiciousContent is returned when a form trips one of the content heuristics.
var ErrSuspiciousContent = errors.New("suspicious content")

type OnboardingService interface {
	Submit(ctx context.Context, req *domain.SubmissionReq) (*domain.Submission, error)
	Contact(ctx context.Context, req *domain.ContactReq) error
	ListSubmissions(ctx context.Context, status *domain.SubmissionStatus, limit, offset int) ([]domain.Submission, error)
	GetSubmission(ctx context.Context, id int64) (*domain.Submission, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SubmissionStatus) (*domain.Submission, error)
	DeleteSubmission(ctx context.Context, id int64) (bool, error)
}

type onboardingService struct {
	submissions repository.SubmissionRepository
	bus         events.Publisher
	now         func() time.Time
}

func NewOnboardingService(submissions repository.SubmissionRepository, bus events.Publisher) OnboardingService {
	return &onboardingService{submissions: submissions, bus: bus, now: time.Now}
}

func (s *onboardingService) Submit(ctx context.Context, req *domain.SubmissionReq) (*domain.Submission, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := screen(ctx, "onboarding", req.TextFields()...); err != nil {
		return nil, err
	}

	customerID := approval.DeriveCustomerID(req.Email)
	sub, err := s.submissions.Create(ctx, customerID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}

	evt := events.OnboardingSubmittedEvent{
		SubmissionID: sub.ID,
		CustomerID:   sub.CustomerID,
		BusinessName: sub.BusinessName,
		ContactName:  sub.ContactName,
		Email:        sub.Email,
		Phone:        sub.Phone,
		PlanID:       sub.PlanID,
		ProjectType:  sub.ProjectType,
		SubmittedAt:  sub.CreatedAt,
	}
	if err := s.bus.Publish(ctx, events.OnboardingSubmitted, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish onboarding submitted event", "error", err, "submission_id", sub.ID)
	}

	logger.InfoContext(ctx, "Onboarding submission stored", "submission_id", sub.ID, "customer_id", sub.CustomerID)
	return sub, nil
}

func (s *onboardingService) Contact(ctx context.Context, req *domain.ContactReq) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	if err := screen(ctx, "contact", req.Name, req.Subject, req.Message); err != nil {
		return err
	}

	evt := events.ContactReceivedEvent{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Subject:    req.Subject,
		Message:    req.Message,
		ReceivedAt: s.now().UTC(),
	}
	// The event is the only record of a contact request, so a publish failure is surfaced.
	if err := s.bus.Publish(ctx, events.ContactReceived, evt); err != nil {
		return fmt.Errorf("failed to publish contact request: %w", err)
	}
	return nil
}

func (s *onboardingService) ListSubmissions(ctx context.Context, status *domain.SubmissionStatus, limit, offset int) ([]domain.Submission, error) {
	return s.submissions.List(ctx, status, limit, offset)
}

func (s *onboardingService) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	return s.submissions.GetByID(ctx, id)
}

func (s *onboardingService) UpdateStatus(ctx context.Context, id int64, status domain.SubmissionStatus) (*domain.Submission, error) {
	sub, err := s.submissions.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	logger.InfoContext(ctx, "Submission status changed", "submission_id", id, "status", status)
	return sub, nil
}

func (s *onboardingService) DeleteSubmission(ctx context.Context, id int64) (bool, error) {
	return s.submissions.Delete(ctx, id)
}

func screen(ctx context.Context, form string, fields ...string) error {
	if finding, hit := security.CheckContent(fields...); hit {
		logger.SecurityContext(ctx, "suspicious_content", "form", form, "rule", finding.Rule, "field", finding.Field)
		return fmt.Errorf("%w: %s", ErrSuspiciousContent, finding.Rule)
	}
	return nil
}
