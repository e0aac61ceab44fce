// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	// GetTrustedProxies lists the proxy IPs or CIDRs whose forwarding
	// headers are honoured. Empty means the socket address is the client.
	GetTrustedProxies() []string
}

// AdminConfig provides the opaque admin credential check material.
type AdminConfig interface {
	GetAdminTokenHash() string
}

// SchedulerConfig provides settings for asynq and the outbox poller.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetOutboxPollInterval() time.Duration
	GetOutboxBatchSize() int
	GetOutboxLease() time.Duration
}

// IntakeConfig provides settings for the lead intake pipeline.
type IntakeConfig interface {
	GetIntakeRateLimitMax() int
	GetIntakeRateLimitWindow() time.Duration
	GetIntakeRateLimitBackend() string
	GetIntakeRateLimitMaxKeys() int
	GetPhoneRegion() string
	GetBusinessLocation() *time.Location
}

// PricingConfig provides the optional catalog override path.
type PricingConfig interface {
	GetPricingCatalogPath() string
}

// RankerConfig provides settings for the AI window ranker.
type RankerConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetRankerTimeout() time.Duration
	IsRankerEnabled() bool
}

// EmailConfig provides settings for SMTP notifications.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetStaffEmail() string
	GetAppBaseURL() string
	IsEmailEnabled() bool
}

// CalendarConfig provides settings for the external calendar provider.
type CalendarConfig interface {
	GetCalendarBaseURL() string
	GetCalendarToken() string
	GetCalendarTimeout() time.Duration
	IsCalendarEnabled() bool
}

// TrackingConfig provides settings for conversion pings.
type TrackingConfig interface {
	GetConversionPingURL() string
	IsTrackingEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	TrustedProxies        []string
	AdminTokenHash        string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxLease           time.Duration
	IntakeRateLimitMax    int
	IntakeRateLimitWindow time.Duration
	IntakeRateLimitStore  string
	IntakeRateLimitKeys   int
	PhoneRegion           string
	BusinessTimezone      string
	businessLocation      *time.Location
	PricingCatalogPath    string
	GeminiAPIKey          string
	GeminiModel           string
	RankerTimeout         time.Duration
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	EmailFromName         string
	EmailFromAddress      string
	StaffEmail            string
	AppBaseURL            string
	CalendarBaseURL       string
	CalendarToken         string
	CalendarTimeout       time.Duration
	ConversionPingURL     string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string         { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool       { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string    { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool     { return c.CORSAllowCreds }
func (c *Config) GetTrustedProxies() []string { return c.TrustedProxies }

// AdminConfig implementation
func (c *Config) GetAdminTokenHash() string { return c.AdminTokenHash }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                  { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool            { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string            { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int             { return c.AsynqConcurrency }
func (c *Config) GetOutboxPollInterval() time.Duration { return c.OutboxPollInterval }
func (c *Config) GetOutboxBatchSize() int              { return c.OutboxBatchSize }
func (c *Config) GetOutboxLease() time.Duration        { return c.OutboxLease }

// IntakeConfig implementation
func (c *Config) GetIntakeRateLimitMax() int              { return c.IntakeRateLimitMax }
func (c *Config) GetIntakeRateLimitWindow() time.Duration { return c.IntakeRateLimitWindow }
func (c *Config) GetIntakeRateLimitBackend() string       { return c.IntakeRateLimitStore }
func (c *Config) GetIntakeRateLimitMaxKeys() int          { return c.IntakeRateLimitKeys }
func (c *Config) GetPhoneRegion() string                  { return c.PhoneRegion }
func (c *Config) GetBusinessLocation() *time.Location {
	if c.businessLocation == nil {
		return time.UTC
	}
	return c.businessLocation
}

// PricingConfig implementation
func (c *Config) GetPricingCatalogPath() string { return c.PricingCatalogPath }

// RankerConfig implementation
func (c *Config) GetGeminiAPIKey() string          { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string           { return c.GeminiModel }
func (c *Config) GetRankerTimeout() time.Duration  { return c.RankerTimeout }
func (c *Config) IsRankerEnabled() bool            { return c.GeminiAPIKey != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetStaffEmail() string       { return c.StaffEmail }
func (c *Config) GetAppBaseURL() string       { return c.AppBaseURL }
func (c *Config) IsEmailEnabled() bool        { return c.SMTPHost != "" }

// CalendarConfig implementation
func (c *Config) GetCalendarBaseURL() string         { return c.CalendarBaseURL }
func (c *Config) GetCalendarToken() string           { return c.CalendarToken }
func (c *Config) GetCalendarTimeout() time.Duration  { return c.CalendarTimeout }
func (c *Config) IsCalendarEnabled() bool            { return c.CalendarBaseURL != "" }

// TrackingConfig implementation
func (c *Config) GetConversionPingURL() string { return c.ConversionPingURL }
func (c *Config) IsTrackingEnabled() bool      { return c.ConversionPingURL != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		TrustedProxies:        splitCSV(getEnv("TRUSTED_PROXIES", "")),
		AdminTokenHash:        getEnv("ADMIN_TOKEN_HASH", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		OutboxPollInterval:    mustDuration(getEnv("OUTBOX_POLL_INTERVAL", "5s")),
		OutboxBatchSize:       mustInt(getEnv("OUTBOX_BATCH_SIZE", "25")),
		OutboxLease:           mustDuration(getEnv("OUTBOX_LEASE", "2m")),
		IntakeRateLimitMax:    mustInt(getEnv("INTAKE_RATE_LIMIT_MAX", "3")),
		IntakeRateLimitWindow: mustDuration(getEnv("INTAKE_RATE_LIMIT_WINDOW", "60s")),
		IntakeRateLimitStore:  strings.ToLower(getEnv("INTAKE_RATE_LIMIT_BACKEND", "memory")),
		IntakeRateLimitKeys:   mustInt(getEnv("INTAKE_RATE_LIMIT_MAX_KEYS", "10000")),
		PhoneRegion:           strings.ToUpper(getEnv("PHONE_REGION", "US")),
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "America/New_York"),
		PricingCatalogPath:    getEnv("PRICING_CATALOG_PATH", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		RankerTimeout:         mustDuration(getEnv("RANKER_TIMEOUT", "8s")),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "Field Ops"),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		StaffEmail:            getEnv("STAFF_EMAIL", ""),
		AppBaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CalendarBaseURL:       getEnv("CALENDAR_BASE_URL", ""),
		CalendarToken:         getEnv("CALENDAR_TOKEN", ""),
		CalendarTimeout:       mustDuration(getEnv("CALENDAR_TIMEOUT", "10s")),
		ConversionPingURL:     getEnv("CONVERSION_PING_URL", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AdminTokenHash == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN_HASH is required")
	}
	if cfg.IntakeRateLimitMax < 1 || cfg.IntakeRateLimitWindow <= 0 {
		return nil, fmt.Errorf("INTAKE_RATE_LIMIT_MAX and INTAKE_RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.IntakeRateLimitStore == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when INTAKE_RATE_LIMIT_BACKEND is redis")
	}
	if cfg.IsEmailEnabled() && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when SMTP_HOST is set")
	}
	for _, proxy := range cfg.TrustedProxies {
		if !validProxy(proxy) {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", cfg.BusinessTimezone, err)
	}
	cfg.businessLocation = loc

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

// validProxy accepts a single IP or a CIDR.
func validProxy(value string) bool {
	if net.ParseIP(value) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(value)
	return err == nil
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
