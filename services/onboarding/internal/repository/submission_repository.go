package repository

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubmissionRepository interface {
	Create(ctx context.Context, customerID string, req *domain.SubmissionReq) (*domain.Submission, error)
	GetByID(ctx context.Context, id int64) (*domain.Submission, error)
	List(ctx context.Context, status *domain.SubmissionStatus, limit, offset int) ([]domain.Submission, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SubmissionStatus) (*domain.Submission, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type submissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepository{pool: pool}
}

const submissionCols = `id, customer_id, status, business_name, contact_name, email, phone,
plan_id, project_type, goals, pages, features, deadline, budget, notes,
checkout_session_id, created_at, updated_at`

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var s domain.Submission
	err := row.Scan(
		&s.ID, &s.CustomerID, &s.Status, &s.BusinessName, &s.ContactName, &s.Email, &s.Phone,
		&s.PlanID, &s.ProjectType, &s.Goals, &s.Pages, &s.Features, &s.Deadline, &s.Budget, &s.Notes,
		&s.CheckoutSessionID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepository) Create(ctx context.Context, customerID string, req *domain.SubmissionReq) (*domain.Submission, error) {
	const q = `INSERT INTO submissions (
		customer_id, status, business_name, contact_name, email, phone,
		plan_id, project_type, goals, pages, features, deadline, budget, notes, checkout_session_id
	) VALUES ($1,'new',$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	RETURNING ` + submissionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSubmission(r.pool.QueryRow(ctx, q,
		customerID, req.BusinessName, req.ContactName, req.Email, req.Phone,
		req.PlanID, req.ProjectType, req.Goals, req.Pages, req.Features,
		req.Deadline, req.Budget, req.Notes, req.CheckoutSessionID,
	))
}

func (r *submissionRepository) GetByID(ctx context.Context, id int64) (*domain.Submission, error) {
	const q = `SELECT ` + submissionCols + ` FROM submissions WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSubmission(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *submissionRepository) List(ctx context.Context, status *domain.SubmissionStatus, limit, offset int) ([]domain.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + submissionCols + ` FROM submissions`
	args := []any{}
	if status != nil {
		q += ` WHERE status=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *status, limit, offset)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *submissionRepository) UpdateStatus(ctx context.Context, id int64, status domain.SubmissionStatus) (*domain.Submission, error) {
	const q = `UPDATE submissions SET status=$2, updated_at=now() WHERE id=$1 RETURNING ` + submissionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSubmission(r.pool.QueryRow(ctx, q, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *submissionRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM submissions WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
