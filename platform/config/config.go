// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AutomationConfig provides settings for the automation runner.
type AutomationConfig interface {
	GetAutomationSecret() string
	GetFollowUpPageSize() int
	GetSequencePageSize() int
	GetWitheringPageSize() int
	GetBreakupPageSize() int
	GetWitheringThresholdDays() int
	GetAutomationWorkers() int
	GetAutomationConcurrentPasses() bool
	GetTaskMaxAttempts() int
}

// SchedulerConfig provides settings for the asynq-backed scheduler process.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetAutomationCronSpec() string
	GetTaskProcessingTimeout() time.Duration
	GetReclaimInterval() time.Duration
}

// EmailConfig provides settings for outbound email.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetEmailRatePerSecond() float64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	MigrationsOnRun bool
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool

	AutomationSecret           string
	FollowUpPageSize           int
	SequencePageSize           int
	WitheringPageSize          int
	BreakupPageSize            int
	WitheringThresholdDays     int
	AutomationWorkers          int
	AutomationConcurrentPasses bool
	TaskMaxAttempts            int

	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	AutomationCronSpec    string
	TaskProcessingTimeout time.Duration
	ReclaimInterval       time.Duration

	EmailEnabled       bool
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFromName      string
	EmailFromAddress   string
	EmailRatePerSecond float64
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AutomationConfig implementation
func (c *Config) GetAutomationSecret() string         { return c.AutomationSecret }
func (c *Config) GetFollowUpPageSize() int            { return c.FollowUpPageSize }
func (c *Config) GetSequencePageSize() int            { return c.SequencePageSize }
func (c *Config) GetWitheringPageSize() int           { return c.WitheringPageSize }
func (c *Config) GetBreakupPageSize() int             { return c.BreakupPageSize }
func (c *Config) GetWitheringThresholdDays() int      { return c.WitheringThresholdDays }
func (c *Config) GetAutomationWorkers() int           { return c.AutomationWorkers }
func (c *Config) GetAutomationConcurrentPasses() bool { return c.AutomationConcurrentPasses }
func (c *Config) GetTaskMaxAttempts() int             { return c.TaskMaxAttempts }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                     { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool               { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string               { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                { return c.AsynqConcurrency }
func (c *Config) GetAutomationCronSpec() string           { return c.AutomationCronSpec }
func (c *Config) GetTaskProcessingTimeout() time.Duration { return c.TaskProcessingTimeout }
func (c *Config) GetReclaimInterval() time.Duration       { return c.ReclaimInterval }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool          { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string       { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string    { return c.EmailFromAddress }
func (c *Config) GetEmailRatePerSecond() float64 { return c.EmailRatePerSecond }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MigrationsOnRun: strings.EqualFold(getEnv("MIGRATE_ON_START", "true"), "true"),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		AutomationSecret:           strings.TrimSpace(getEnv("AUTOMATION_SECRET", "")),
		FollowUpPageSize:           mustPositiveInt(getEnv("AUTOMATION_FOLLOWUP_PAGE_SIZE", "100"), 100),
		SequencePageSize:           mustPositiveInt(getEnv("AUTOMATION_SEQUENCE_PAGE_SIZE", "100"), 100),
		WitheringPageSize:          mustPositiveInt(getEnv("AUTOMATION_WITHERING_PAGE_SIZE", "100"), 100),
		BreakupPageSize:            mustPositiveInt(getEnv("AUTOMATION_BREAKUP_PAGE_SIZE", "100"), 100),
		WitheringThresholdDays:     mustPositiveInt(getEnv("WITHERING_THRESHOLD_DAYS", "14"), 14),
		AutomationWorkers:          mustPositiveInt(getEnv("AUTOMATION_WORKERS", "4"), 4),
		AutomationConcurrentPasses: strings.EqualFold(getEnv("AUTOMATION_CONCURRENT_PASSES", "true"), "true"),
		TaskMaxAttempts:            mustPositiveInt(getEnv("TASK_MAX_ATTEMPTS", "5"), 5),

		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "automations"),
		AsynqConcurrency:      mustPositiveInt(getEnv("ASYNQ_CONCURRENCY", "4"), 4),
		AutomationCronSpec:    getEnv("AUTOMATION_CRON", "@every 5m"),
		TaskProcessingTimeout: mustDuration(getEnv("TASK_PROCESSING_TIMEOUT", "15m")),
		ReclaimInterval:       mustDuration(getEnv("TASK_RECLAIM_INTERVAL", "5m")),

		EmailEnabled:       emailEnabled && smtpHost != "",
		SMTPHost:           smtpHost,
		SMTPPort:           mustPositiveInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "CRM"),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailRatePerSecond: mustFloat(getEnv("EMAIL_RATE_PER_SECOND", "5")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AutomationSecret == "" {
		return nil, fmt.Errorf("AUTOMATION_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

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

func mustPositiveInt(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || result <= 0 {
		return fallback
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
