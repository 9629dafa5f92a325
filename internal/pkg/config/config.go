package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// SiteURL is the public base URL used in password reset links.
	SiteURL string `env:"SITE_URL, default=http://localhost:3000"`

	StoreDriver string `env:"STORE_DRIVER, default=postgres"`

	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Supabase SupabaseConfig
	Auth     AuthConfig
}

type PostgresConfig struct {
	URL string `env:"DATABASE_URL"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=accounts"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type SupabaseConfig struct {
	URL            string `env:"SUPABASE_URL"`
	AnonKey        string `env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string `env:"SUPABASE_JWT_SECRET"`
}

type AuthConfig struct {
	// AdminEmails is a comma separated list granted ADMIN on registration.
	AdminEmails   []string `env:"ADMIN_EMAILS"`
	InitialStatus string   `env:"REGISTRATION_INITIAL_STATUS, default=APPROVED"`
	RateLimit     float64  `env:"AUTH_RATE_LIMIT, default=5"`
	CookieSecure  bool     `env:"COOKIE_SECURE, default=true"`
	CookieDomain  string   `env:"COOKIE_DOMAIN"`
}

// IsDevelopment reports whether ENV selects the development profile.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Validate checks the settings the service cannot start without. The service
// role key is deliberately optional: without it registration answers
// SERVER_ERROR while login keeps working.
func (c *Config) Validate() error {
	var errs []error
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.Supabase.AnonKey == "" {
		errs = append(errs, errors.New("SUPABASE_ANON_KEY is required"))
	}
	if c.Supabase.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required"))
	}
	if !domain.AccountStatus(c.Auth.InitialStatus).Known() {
		errs = append(errs, fmt.Errorf("REGISTRATION_INITIAL_STATUS must be one of %s, %s, %s or %s, got %q",
			domain.StatusPendingApproval, domain.StatusApproved, domain.StatusRejected, domain.StatusSuspended, c.Auth.InitialStatus))
	}
		switch c.StoreDriver {
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DB are required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, c.StoreDriver))
	}
	return errors.Join(errs...)
}

// LoadFrom reads configuration through the given lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}
