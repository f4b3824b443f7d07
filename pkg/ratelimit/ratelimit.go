package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/response"
	"github.com/diagnosis/agency-portal/pkg/security"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Limiter decides whether another request under key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PostgresLimiter is a fixed-window counter stored in the rate_limits table.
type PostgresLimiter struct {
	pool     *pgxpool.Pool
	requests int
	window   time.Duration
}

func NewPostgresLimiter(pool *pgxpool.Pool, requests int, window time.Duration) *PostgresLimiter {
	return &PostgresLimiter{pool: pool, requests: requests, window: window}
}

func (l *PostgresLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// Hash the key for privacy
	hashedKey := fmt.Sprintf("%x", sha256.Sum256([]byte(key)))

	now := time.Now()
	windowStart := now.Add(-l.window)

	// The upsert resets the counter when the stored window has slid out.
	const q = `
		INSERT INTO rate_limits (rl_key, count, window_start, expires_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (rl_key) DO UPDATE SET
			count = CASE
				WHEN rate_limits.window_start < $4 THEN 1
				ELSE rate_limits.count + 1
			END,
			window_start = CASE
				WHEN rate_limits.window_start < $4 THEN $2
				ELSE rate_limits.window_start
			END,
			expires_at = $3
		RETURNING count`

	var count int
	if err := l.pool.QueryRow(ctx, q, hashedKey, now, now.Add(l.window), windowStart).Scan(&count); err != nil {
		return true, err
	}
	return count <= l.requests, nil
}

// CleanupExpired removes windows that can no longer affect a decision.
func (l *PostgresLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := l.pool.Exec(ctx, `DELETE FROM rate_limits WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ByIP limits requests per client IP within a named scope. Limiter errors fail open.
func ByIP(limiter Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := security.ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), scope+":ip:"+ip)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err, "scope", scope)
			} else if !allowed {
				logger.SecurityContext(r.Context(), "rate_limited", "scope", scope, "ip", ip)
				response.RateLimit(w, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
