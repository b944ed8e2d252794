package errs

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSentinelsMatchByKind(t *testing.T) {
	err := fmt.Errorf("load item: %w", NotFound("item %d not found", 7))

	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrDuplicate)
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, "load item: item 7 not found", err.Error())
}

func TestKindOfUnclassified(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, KindInternal, KindOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(KindDuplicate, sql.ErrConnDone, "email already registered")

	require.ErrorIs(t, err, ErrDuplicate)
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestValidationFieldsInMessage(t *testing.T) {
	err := Validation("email: must be a valid email address", "password: must be at least 8 characters")

	e, ok := As(err)
	require.True(t, ok)
	require.Len(t, e.Fields, 2)
	require.Contains(t, err.Error(), "email: must be a valid email address; password")
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited(90 * time.Second)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 90*time.Second, err.RetryAfter)
}
