package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T, maxFails int) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	l := NewPG(mock, 15*time.Minute, maxFails, 10*time.Minute).WithClock(func() time.Time { return fixedNow })
	return l, mock
}

func TestAllowWithoutHistory(t *testing.T) {
	l, mock := newLimiter(t, 5)
	ip := HashIP("10.0.0.1")
	mock.ExpectQuery(`SELECT locked_until FROM login_attempts WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs("ana@tt360.co", ip).
		WillReturnError(pgx.ErrNoRows)

	ok, wait, err := l.Allow(context.Background(), "ana@tt360.co", ip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, wait)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowWhileLocked(t *testing.T) {
	l, mock := newLimiter(t, 5)
	ip := HashIP("10.0.0.1")
	mock.ExpectQuery(`SELECT locked_until FROM login_attempts`).
		WithArgs("ana@tt360.co", ip).
		WillReturnRows(pgxmock.NewRows([]string{"locked_until"}).AddRow(fixedNow.Add(3 * time.Minute)))

	ok, wait, err := l.Allow(context.Background(), "ana@tt360.co", ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 3*time.Minute, wait)
}

func TestAllowAfterLockExpired(t *testing.T) {
	l, mock := newLimiter(t, 5)
	ip := HashIP("10.0.0.1")
	mock.ExpectQuery(`SELECT locked_until FROM login_attempts`).
		WithArgs("ana@tt360.co", ip).
		WillReturnRows(pgxmock.NewRows([]string{"locked_until"}).AddRow(fixedNow.Add(-time.Second)))

	ok, _, err := l.Allow(context.Background(), "ana@tt360.co", ip)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllowPropagatesErrors(t *testing.T) {
	l, mock := newLimiter(t, 5)
	mock.ExpectQuery(`SELECT locked_until`).WillReturnError(errors.New("db down"))

	ok, _, err := l.Allow(context.Background(), "ana@tt360.co", HashIP("x"))
	require.ErrorContains(t, err, "db down")
	require.False(t, ok)
}

func TestFailureBelowThreshold(t *testing.T) {
	l, mock := newLimiter(t, 3)
	ip := HashIP("10.0.0.1")
	mock.ExpectQuery(`INSERT INTO login_attempts`).
		WithArgs("ana@tt360.co", ip, fixedNow, fixedNow.Add(-15*time.Minute)).
		WillReturnRows(pgxmock.NewRows([]string{"failures"}).AddRow(2))

	locked, wait, err := l.Failure(context.Background(), "ana@tt360.co", ip)
	require.NoError(t, err)
	require.False(t, locked)
	require.Zero(t, wait)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailureLocksAtThreshold(t *testing.T) {
	l, mock := newLimiter(t, 3)
	ip := HashIP("10.0.0.1")
	mock.ExpectQuery(`INSERT INTO login_attempts`).
		WithArgs("ana@tt360.co", ip, fixedNow, fixedNow.Add(-15*time.Minute)).
		WillReturnRows(pgxmock.NewRows([]string{"failures"}).AddRow(3))
	mock.ExpectExec(`UPDATE login_attempts SET locked_until=\$3`).
		WithArgs("ana@tt360.co", ip, fixedNow.Add(10*time.Minute), fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	locked, wait, err := l.Failure(context.Background(), "ana@tt360.co", ip)
	require.NoError(t, err)
	require.True(t, locked)
	require.Equal(t, 10*time.Minute, wait)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccessClearsHistory(t *testing.T) {
	l, mock := newLimiter(t, 3)
	ip := HashIP("10.0.0.1")
	mock.ExpectExec(`DELETE FROM login_attempts WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs("ana@tt360.co", ip).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, l.Success(context.Background(), "ana@tt360.co", ip))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHashIPStable(t *testing.T) {
	require.Equal(t, HashIP("1.2.3.4"), HashIP("1.2.3.4"))
	require.NotEqual(t, HashIP("1.2.3.4"), HashIP("5.6.7.8"))
	require.Len(t, HashIP("1.2.3.4"), 32)
}
