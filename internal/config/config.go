package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DefaultTimezone is the facility zone used when FACILITY_TIMEZONE is unset.
const DefaultTimezone = "Asia/Kathmandu"

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DBDriver           string   `mapstructure:"DB_DRIVER"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	SQLitePath         string   `mapstructure:"SQLITE_PATH"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer         string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey     string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `mapstructure:"RATE_LIMIT_BURST"`
	LogLevel           string   `mapstructure:"LOG_LEVEL"`
	LogFile            string   `mapstructure:"LOG_FILE"`
	LogMaxSizeMB       int      `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups      int      `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays      int      `mapstructure:"LOG_MAX_AGE_DAYS"`
	TemplatesFile      string   `mapstructure:"TEMPLATES_FILE"`
	PrivilegedRoles    []string `mapstructure:"PRIVILEGED_ROLES"`
	FacilityTimezone   string   `mapstructure:"FACILITY_TIMEZONE"`
	DefaulterSweepSpec string   `mapstructure:"DEFAULTER_SWEEP_SPEC"`
	DefaulterGraceDays int      `mapstructure:"DEFAULTER_GRACE_DAYS"`
	TLSEnabled         bool     `mapstructure:"TLS_ENABLED"`
	TLSCertFile        string   `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile         string   `mapstructure:"TLS_KEY_FILE"`
}

var envKeys = []string{
	"PORT", "ENV", "DB_DRIVER", "DATABASE_URL", "SQLITE_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB",
	"LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS", "TEMPLATES_FILE", "PRIVILEGED_ROLES",
	"FACILITY_TIMEZONE", "DEFAULTER_SWEEP_SPEC", "DEFAULTER_GRACE_DAYS",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SQLITE_PATH", "./data/vaxsched.db")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("PRIVILEGED_ROLES", "admin,supervisor")
	v.SetDefault("FACILITY_TIMEZONE", DefaultTimezone)
	v.SetDefault("DEFAULTER_SWEEP_SPEC", "0 6 * * *")
	v.SetDefault("DEFAULTER_GRACE_DAYS", 0)

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

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.PrivilegedRoles = splitList(cfg.PrivilegedRoles, v.GetString("PRIVILEGED_ROLES"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development: DevAuthMiddleware grants admin to unauthenticated requests.")
	}

	return cfg, nil
}

// splitList handles comma separated env values that viper leaves as a single
// element.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" && len(parsed) == 1 {
		raw = parsed[0]
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location returns the facility time zone used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.FacilityTimezone)
}

// Validate checks that the configuration is usable before anything is
// started.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be \"postgres\" or \"sqlite\", got %q", c.DBDriver)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("FACILITY_TIMEZONE: %w", err)
	}

	if c.DefaulterSweepSpec != "" {
		if _, err := cron.ParseStandard(c.DefaulterSweepSpec); err != nil {
			return fmt.Errorf("DEFAULTER_SWEEP_SPEC: %w", err)
		}
	}
	if c.DefaulterGraceDays < 0 {
		return fmt.Errorf("DEFAULTER_GRACE_DAYS must not be negative")
	}

	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set outside development (ENV=%q)", c.Env)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
