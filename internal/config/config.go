package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Degraded result policies.
const (
	DegradedPermissive = "permissive"
	DegradedBlock      = "block"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	AMQPURL        string   `mapstructure:"AMQP_URL"`
	AMQPExchange   string   `mapstructure:"AMQP_EXCHANGE"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	SchedulerEnabled      bool          `mapstructure:"SCHEDULER_ENABLED"`
	SchedulerCron         string        `mapstructure:"SCHEDULER_CRON"`
	SchedulerRunOnStartup bool          `mapstructure:"SCHEDULER_RUN_ON_STARTUP"`
	SchedulerLockTTL      time.Duration `mapstructure:"SCHEDULER_LOCK_TTL"`

	GuidelineCacheTTL    time.Duration `mapstructure:"GUIDELINE_CACHE_TTL"`
	DegradedPolicy       string        `mapstructure:"DEGRADED_POLICY"`
	AuditBreakerFailures uint32        `mapstructure:"AUDIT_BREAKER_FAILURES"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AMQP_URL", "AMQP_EXCHANGE",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SCHEDULER_ENABLED", "SCHEDULER_CRON", "SCHEDULER_RUN_ON_STARTUP", "SCHEDULER_LOCK_TTL",
	"GUIDELINE_CACHE_TTL", "DEGRADED_POLICY", "AUDIT_BREAKER_FAILURES",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AMQP_EXCHANGE", "pathway.events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_CRON", "0 2 * * *")
	v.SetDefault("SCHEDULER_RUN_ON_STARTUP", true)
	v.SetDefault("SCHEDULER_LOCK_TTL", "30m")
	v.SetDefault("GUIDELINE_CACHE_TTL", "1h")
	v.SetDefault("DEGRADED_POLICY", DegradedPermissive)
	v.SetDefault("AUDIT_BREAKER_FAILURES", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode; all requests are treated as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// StrictDegraded reports whether degraded validation results should block.
func (c *Config) StrictDegraded() bool {
	return c.DegradedPolicy == DegradedBlock
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set outside development (ENV=%q)", c.Env)
	}
	if c.DegradedPolicy != DegradedPermissive && c.DegradedPolicy != DegradedBlock {
		return fmt.Errorf("DEGRADED_POLICY must be %q or %q, got %q", DegradedPermissive, DegradedBlock, c.DegradedPolicy)
	}
	if c.SchedulerEnabled {
		if _, err := cron.ParseStandard(c.SchedulerCron); err != nil {
			return fmt.Errorf("SCHEDULER_CRON is invalid: %w", err)
		}
	}
	if c.GuidelineCacheTTL <= 0 {
		return fmt.Errorf("GUIDELINE_CACHE_TTL must be positive")
	}
	return nil
}
