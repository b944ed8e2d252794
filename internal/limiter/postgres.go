package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool used by PG.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps a sliding failure window and lockout per (email, ip hash) in login_attempts.
type PG struct {
	db       Querier
	window   time.Duration
	maxFails int
	lockFor  time.Duration
	now      func() time.Time
}

// NewPG builds a limiter. maxFails failures inside window lock the pair for lockFor.
func NewPG(db Querier, window time.Duration, maxFails int, lockFor time.Duration) *PG {
	return &PG{db: db, window: window, maxFails: maxFails, lockFor: lockFor, now: time.Now}
}

// WithClock overrides the time source.
func (l *PG) WithClock(fn func() time.Time) *PG {
	l.now = fn
	return l
}

// HashIP avoids storing raw client addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT locked_until FROM login_attempts WHERE email=$1 AND ip_hash=$2`
	var lockedUntil time.Time
	err := l.db.QueryRow(ctx, q, email, ipHash).Scan(&lockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
	if now := l.now(); lockedUntil.After(now) {
		return false, lockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	const q = `DELETE FROM login_attempts WHERE email=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, q, email, ipHash); err != nil {
		return fmt.Errorf("limiter success: %w", err)
	}
	return nil
}

func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (email, ip_hash, failures, window_start, locked_until)
VALUES ($1, $2, 1, $3, 'epoch')
ON CONFLICT (email, ip_hash) DO UPDATE
SET failures = CASE WHEN login_attempts.window_start < $4 THEN 1 ELSE login_attempts.failures + 1 END,
    window_start = CASE WHEN login_attempts.window_start < $4 THEN $3 ELSE login_attempts.window_start END
RETURNING failures`
	now := l.now()
	var failures int
	if err := l.db.QueryRow(ctx, q, email, ipHash, now, now.Add(-l.window)).Scan(&failures); err != nil {
		return false, 0, fmt.Errorf("limiter failure: %w", err)
	}
	if failures < l.maxFails {
		return false, 0, nil
	}
	const lock = `UPDATE login_attempts SET locked_until=$3, failures=0, window_start=$4 WHERE email=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, lock, email, ipHash, now.Add(l.lockFor), now); err != nil {
		return false, 0, fmt.Errorf("limiter lock: %w", err)
	}
	return true, l.lockFor, nil
}
