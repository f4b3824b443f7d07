package repository

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/agency-portal/services/payments/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository interface {
	CreatePending(ctx context.Context, o *domain.Order) error
	// MarkPaid inserts or completes the order for o.SessionID. Webhooks may arrive before the
	// pending row exists, so it is an upsert.
	MarkPaid(ctx context.Context, o *domain.Order) (*domain.Order, error)
	MarkExpired(ctx context.Context, sessionID string) (bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error)
}

type orderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &orderRepository{pool: pool}
}

const orderCols = `id, session_id, customer_id, customer_email, customer_name, customer_phone,
plan_id, amount_cents, currency, status, paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.SessionID, &o.CustomerID, &o.CustomerEmail, &o.CustomerName, &o.CustomerPhone,
		&o.PlanID, &o.AmountCents, &o.Currency, &o.Status, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) CreatePending(ctx context.Context, o *domain.Order) error {
	const q = `INSERT INTO orders (
		session_id, customer_id, customer_email, customer_name, customer_phone,
		plan_id, amount_cents, currency, status
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending')
	ON CONFLICT (session_id) DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		o.SessionID, o.CustomerID, o.CustomerEmail, o.CustomerName, o.CustomerPhone,
		o.PlanID, o.AmountCents, o.Currency,
	)
	return err
}

func (r *orderRepository) MarkPaid(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	const q = `INSERT INTO orders (
		session_id, customer_id, customer_email, customer_name, customer_phone,
		plan_id, amount_cents, currency, status, paid_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'paid',now())
	ON CONFLICT (session_id) DO UPDATE SET
		customer_email = COALESCE(NULLIF(EXCLUDED.customer_email, ''), orders.customer_email),
		customer_name  = COALESCE(NULLIF(EXCLUDED.customer_name, ''), orders.customer_name),
		customer_phone = COALESCE(NULLIF(EXCLUDED.customer_phone, ''), orders.customer_phone),
		amount_cents   = EXCLUDED.amount_cents,
		currency       = EXCLUDED.currency,
		status         = 'paid',
		paid_at        = COALESCE(orders.paid_at, now()),
		updated_at     = now()
	RETURNING ` + orderCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanOrder(r.pool.QueryRow(ctx, q,
		o.SessionID, o.CustomerID, o.CustomerEmail, o.CustomerName, o.CustomerPhone,
		o.PlanID, o.AmountCents, o.Currency,
	))
}

func (r *orderRepository) MarkExpired(ctx context.Context, sessionID string) (bool, error) {
	const q = `UPDATE orders SET status='expired', updated_at=now()
	WHERE session_id=$1 AND status='pending'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM orders WHERE session_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	o, err := scanOrder(r.pool.QueryRow(ctx, q, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}
