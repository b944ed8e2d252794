// Package config loads service configuration: defaults, then an optional YAML file,
// then CRM_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration decodes Go duration strings ("15m", "24h") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	JWT         JWTConfig      `yaml:"jwt"`
	Redis       RedisConfig    `yaml:"redis"`
	Login       LoginConfig    `yaml:"login"`
	Billing     BillingConfig  `yaml:"billing"`
	Logger      LoggerConfig   `yaml:"logger"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	RateBurst       int      `yaml:"rate_burst"`
	RatePerSecond   int      `yaml:"rate_per_second"`
	CORSOrigins     []string `yaml:"cors_origins"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxConns        int32    `yaml:"max_conns"`
	MinConns        int32    `yaml:"min_conns"`
	MaxConnLifetime Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool     `yaml:"migrate_on_start"`
}

// JWTConfig holds the base64url-encoded HMAC secret and the access token lifetime.
type JWTConfig struct {
	Secret     string   `yaml:"secret"`
	Expiration Duration `yaml:"expiration"`
}

// RedisConfig enables the token denylist when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LoginConfig struct {
	Window      Duration `yaml:"window"`
	MaxFailures int      `yaml:"max_failures"`
	LockFor     Duration `yaml:"lock_for"`
}

type BillingConfig struct {
	TaxRateBasisPoints int64 `yaml:"tax_rate_basis_points"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			MaxBodyBytes:    1 << 20,
			RateBurst:       40,
			RatePerSecond:   20,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: Duration(30 * time.Minute),
		},
		JWT: JWTConfig{
			Expiration: Duration(24 * time.Hour),
		},
		Login: LoginConfig{
			Window:      Duration(15 * time.Minute),
			MaxFailures: 5,
			LockFor:     Duration(15 * time.Minute),
		},
		Billing: BillingConfig{
			TaxRateBasisPoints: 1900,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Environment, "CRM_ENV")
	setString(&c.Server.Addr, "CRM_HTTP_ADDR")
	if v := os.Getenv("CRM_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("CRM_TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = splitList(v)
	}
	setString(&c.Database.DSN, "CRM_PG_DSN")
	setString(&c.JWT.Secret, "CRM_JWT_SECRET")
	setString(&c.Redis.Addr, "CRM_REDIS_ADDR")
	setString(&c.Redis.Password, "CRM_REDIS_PASSWORD")
	setString(&c.Logger.Level, "CRM_LOG_LEVEL")
	setString(&c.Logger.Format, "CRM_LOG_FORMAT")

	if err := setDuration(&c.JWT.Expiration, "CRM_JWT_EXPIRATION"); err != nil {
		return err
	}
	if err := setDuration(&c.Server.ShutdownTimeout, "CRM_SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "CRM_REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.Login.MaxFailures, "CRM_LOGIN_MAX_FAILURES"); err != nil {
		return err
	}
	if v := os.Getenv("CRM_MIGRATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CRM_MIGRATE_ON_START: %w", err)
		}
		c.Database.MigrateOnStart = b
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.JWT.Expiration.Std() <= 0 {
		problems = append(problems, "jwt.expiration must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		problems = append(problems, "server.max_body_bytes must be positive")
	}
	if c.Server.RateBurst <= 0 || c.Server.RatePerSecond <= 0 {
		problems = append(problems, "server rate limits must be positive")
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			problems = append(problems, fmt.Sprintf("server.trusted_proxies: %q is not an address or CIDR", p))
		}
	}
	if c.Login.MaxFailures <= 0 {
		problems = append(problems, "login.max_failures must be positive")
	}
	if c.Billing.TaxRateBasisPoints < 0 || c.Billing.TaxRateBasisPoints > 10000 {
		problems = append(problems, "billing.tax_rate_basis_points must be within 0..10000")
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		problems = append(problems, "logger.format must be json or console")
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func validProxy(p string) bool {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "/") {
		_, err := netip.ParsePrefix(p)
		return err == nil
	}
	_, err := netip.ParseAddr(p)
	return err == nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
