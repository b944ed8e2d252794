package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tt360.co/crm/internal/obs"
)

var (
	testSecret  = base64.RawURLEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef-crm"))
	otherSecret = base64.RawURLEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210-crm"))
)

func newTokens(t *testing.T, secret string, lifetime time.Duration, now func() time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService(secret, lifetime, WithTokenClock(now))
	require.NoError(t, err)
	return svc
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(obs.SetLogger(zap.New(core)))
	return logs
}

func TestIssueThenValidateRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, lifetime := range []time.Duration{time.Second, time.Minute, 24 * time.Hour, 30 * 24 * time.Hour} {
		svc := newTokens(t, testSecret, lifetime, func() time.Time { return now })
		for _, subject := range []string{"ana@tt360.co", "x@y.z", "admin@crm.local"} {
			tok, err := svc.Issue(subject)
			require.NoError(t, err)
			require.NotEmpty(t, tok.Value)
			require.NotEmpty(t, tok.ID)
			require.True(t, now.Add(lifetime).Equal(tok.ExpiresAt))

			require.True(t, svc.Validate(tok.Value))
			got, err := svc.SubjectOf(tok.Value)
			require.NoError(t, err)
			require.Equal(t, subject, got)
		}
	}
}

func TestIssueSetsRegisteredClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTokens(t, testSecret, 0, func() time.Time { return now })

	tok, err := svc.Issue("ana@tt360.co")
	require.NoError(t, err)

	claims, err := svc.Claims(tok.Value)
	require.NoError(t, err)
	require.True(t, now.Equal(claims.IssuedAt.Time))
	require.True(t, now.Add(DefaultTokenLifetime).Equal(claims.ExpiresAt.Time))
	require.Equal(t, tok.ID, claims.ID)
}

func TestValidateRejectsExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issued
	svc := newTokens(t, testSecret, time.Hour, func() time.Time { return current })
	tok, err := svc.Issue("ana@tt360.co")
	require.NoError(t, err)

	logs := observeLogs(t)

	current = issued.Add(time.Hour)
	require.False(t, svc.Validate(tok.Value), "token must be invalid at exactly exp")

	current = issued.Add(48 * time.Hour)
	require.False(t, svc.Validate(tok.Value))

	entries := logs.FilterField(zap.String("kind", FailureExpired)).All()
	require.Len(t, entries, 2)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	now := func() time.Time { return time.Now() }
	ours := newTokens(t, testSecret, time.Hour, now)
	theirs := newTokens(t, otherSecret, time.Hour, now)

	tok, err := theirs.Issue("ana@tt360.co")
	require.NoError(t, err)

	logs := observeLogs(t)
	require.False(t, ours.Validate(tok.Value))
	require.Equal(t, 1, logs.FilterField(zap.String("kind", FailureBadSignature)).Len())
}

func TestValidateFailureKinds(t *testing.T) {
	now := time.Now()
	svc := newTokens(t, testSecret, time.Hour, func() time.Time { return now })
	key, err := DecodeSecret(testSecret)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "ana@tt360.co",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(key)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(key)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "ana@tt360.co",
	}).SignedString(key)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		kind  string
	}{
		{name: "empty", token: "", kind: FailureBadArgument},
		{name: "blank", token: "   ", kind: FailureBadArgument},
		{name: "garbage", token: "not-a-jwt", kind: FailureMalformed},
		{name: "two segments", token: "abc.def", kind: FailureMalformed},
		{name: "other algorithm", token: hs512, kind: FailureUnsupported},
		{name: "missing subject", token: noSubject, kind: FailureMalformed},
		{name: "missing expiry", token: noExpiry, kind: FailureMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := observeLogs(t)
			require.NotPanics(t, func() {
				require.False(t, svc.Validate(tc.token))
			})
			require.Equal(t, 1, logs.FilterField(zap.String("kind", tc.kind)).Len())
		})
	}
}

func TestValidateRejectsTamperedPayload(t *testing.T) {
	svc := newTokens(t, testSecret, time.Hour, time.Now)
	tok, err := svc.Issue("ana@tt360.co")
	require.NoError(t, err)

	parts := strings.Split(tok.Value, ".")
	require.Len(t, parts, 3)
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin@tt360.co","exp":4102444800}`))
	require.False(t, svc.Validate(parts[0]+"."+forged+"."+parts[2]))
}

func TestDecodeSecret(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	key, err := DecodeSecret(padded)
	require.NoError(t, err)
	require.Len(t, key, 32)

	_, err = DecodeSecret("")
	require.Error(t, err)

	_, err = DecodeSecret(base64.RawURLEncoding.EncodeToString([]byte("short")))
	require.ErrorContains(t, err, "at least 32 bytes")

	_, err = DecodeSecret("not base64 !!")
	require.Error(t, err)
}

func TestIssueRequiresSubject(t *testing.T) {
	svc := newTokens(t, testSecret, time.Hour, time.Now)
	_, err := svc.Issue("  ")
	require.Error(t, err)
}
