package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "c2VjcmV0LWtleS1mb3ItdGVzdHMtMDEyMzQ1Njc4OWFiY2RlZg"

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("CRM_JWT_SECRET", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 24*time.Hour, cfg.JWT.Expiration.Std())
	require.Equal(t, int64(1900), cfg.Billing.TaxRateBasisPoints)
	require.Equal(t, testSecret, cfg.JWT.Secret)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crm.yaml")
	content := `
environment: dev
server:
  addr: ":9090"
  cors_origins: ["http://localhost:3000"]
jwt:
  secret: from-file
  expiration: 2h
login:
  window: 5m
  max_failures: 3
  lock_for: 30m
logger:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CRM_JWT_EXPIRATION", "90m")
	t.Setenv("CRM_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Environment)
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	require.Equal(t, "from-file", cfg.JWT.Secret)
	require.Equal(t, 90*time.Minute, cfg.JWT.Expiration.Std())
	require.Equal(t, 5*time.Minute, cfg.Login.Window.Std())
	require.Equal(t, 3, cfg.Login.MaxFailures)
	require.Equal(t, "console", cfg.Logger.Format)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("CRM_JWT_SECRET", "")
	_, err := Load("")
	require.ErrorContains(t, err, "jwt.secret is required")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt:\n  secret: x\n  expiration: soon\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "invalid duration")
}

func TestValidateTaxRateBounds(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = testSecret
	cfg.Billing.TaxRateBasisPoints = 12000
	require.ErrorContains(t, cfg.Validate(), "tax_rate_basis_points")
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("CRM_JWT_SECRET", testSecret)
	t.Setenv("CRM_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.Server.TrustedProxies)

	cfg.Server.TrustedProxies = []string{"10.0.0.0/33"}
	require.ErrorContains(t, cfg.Validate(), "server.trusted_proxies")
}
