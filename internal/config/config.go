// Package config handles loading and validation of application configuration
// from environment variables. Supports .env files via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/besikta/inspection-server/internal/lifecycle"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const devJWTSecret = "dev-secret-change-in-production"

// Config holds all application configuration
type Config struct {
	// Server settings
	Port           int
	Environment    string // "development" | "staging" | "production"
	RequestTimeout time.Duration

	// Persistence
	Storage     string
	DatabaseURL string
	DBMaxConns  int

	// Security
	JWTSecret      string
	JWTIssuer      string
	JWTTTL         time.Duration
	AllowedOrigins []string
	RateLimitRPM   int
	// PrincipalsFile is a JSON list of principals saved to the store at
	// startup. Tokens only authenticate for principals the store knows.
	PrincipalsFile string

	// Redis (scheduler lease and notification stream). Empty runs both in
	// process.
	RedisURL     string
	NotifyStream string
	NotifyMaxLen int64

	// Merkle tree
	MerkleRebuildInterval int // minutes

	// Follow-up scheduler
	SchedulerEnabled     bool
	FollowUpSchedule     string
	Location             *time.Location
	LeaseTTL             time.Duration
	FollowUpAfterDays    int
	FollowUpIntervalDays int
	MaxFollowUps         int
	EscalateAfterDays    int
	ExpireAfterDays      int

	// Lifecycle
	AllowDirectCompletion bool
	CommitRetries         int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	defaults := lifecycle.DefaultFollowUpPolicy()
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		Environment:    getEnv("ENVIRONMENT", "development"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		Storage:     getEnv("STORAGE", StorageMemory),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 20),

		JWTSecret:      getEnv("JWT_SECRET", devJWTSecret),
		JWTIssuer:      getEnv("JWT_ISSUER", "inspection-server"),
		JWTTTL:         getEnvDuration("JWT_TTL", 12*time.Hour),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"), ","),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 120),
		PrincipalsFile: getEnv("PRINCIPALS_FILE", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		NotifyStream: getEnv("NOTIFY_STREAM", "notifications:offers"),
		NotifyMaxLen: int64(getEnvInt("NOTIFY_STREAM_MAXLEN", 10000)),

		MerkleRebuildInterval: getEnvInt("MERKLE_REBUILD_INTERVAL", 5),

		SchedulerEnabled:     getEnvBool("SCHEDULER_ENABLED", true),
		FollowUpSchedule:     getEnv("FOLLOWUP_CRON", "0 6 * * *"),
		LeaseTTL:             getEnvDuration("LEASE_TTL", 10*time.Minute),
		FollowUpAfterDays:    getEnvInt("FOLLOWUP_AFTER_DAYS", defaults.FollowUpAfterDays),
		FollowUpIntervalDays: getEnvInt("FOLLOWUP_INTERVAL_DAYS", defaults.FollowUpIntervalDays),
		MaxFollowUps:         getEnvInt("MAX_FOLLOWUPS", defaults.MaxFollowUps),
		EscalateAfterDays:    getEnvInt("ESCALATE_AFTER_DAYS", defaults.EscalateAfterDays),
		ExpireAfterDays:      getEnvInt("EXPIRE_AFTER_DAYS", defaults.ExpireAfterDays),

		AllowDirectCompletion: getEnvBool("ALLOW_DIRECT_COMPLETION", false),
		CommitRetries:         getEnvInt("COMMIT_RETRIES", 3),
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with STORAGE=postgres")
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}

	for name, v := range map[string]int{
		"FOLLOWUP_AFTER_DAYS":    c.FollowUpAfterDays,
		"FOLLOWUP_INTERVAL_DAYS": c.FollowUpIntervalDays,
		"ESCALATE_AFTER_DAYS":    c.EscalateAfterDays,
		"EXPIRE_AFTER_DAYS":      c.ExpireAfterDays,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.MerkleRebuildInterval <= 0 {
		return fmt.Errorf("MERKLE_REBUILD_INTERVAL must be positive, got %d", c.MerkleRebuildInterval)
	}
	if c.MaxFollowUps < 0 {
		return fmt.Errorf("MAX_FOLLOWUPS must not be negative, got %d", c.MaxFollowUps)
	}
	if c.CommitRetries < 0 {
		return fmt.Errorf("COMMIT_RETRIES must not be negative, got %d", c.CommitRetries)
	}

	// Validate required fields in production
	if c.Environment == "production" {
		if c.Storage != StoragePostgres {
			return fmt.Errorf("STORAGE=postgres is required in production")
		}
		if c.JWTSecret == devJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in production")
		}
	}
	return nil
}

// FollowUpPolicy returns the thresholds of the scheduled offer transitions.
func (c *Config) FollowUpPolicy() lifecycle.FollowUpPolicy {
	return lifecycle.FollowUpPolicy{
		FollowUpAfterDays:    c.FollowUpAfterDays,
		FollowUpIntervalDays: c.FollowUpIntervalDays,
		MaxFollowUps:         c.MaxFollowUps,
		EscalateAfterDays:    c.EscalateAfterDays,
		ExpireAfterDays:      c.ExpireAfterDays,
		Location:             c.Location,
	}
}

func (c *Config) AppointmentPolicy() lifecycle.AppointmentPolicy {
	return lifecycle.AppointmentPolicy{AllowDirectCompletion: c.AllowDirectCompletion}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
