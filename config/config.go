package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Jatri Ovijog backend service
type Config struct {
	// Server configuration
	Port           string
	TrustedProxies []string

	// Supabase (PostgREST) configuration
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseTimeout        time.Duration

	// Groq (OpenAI-compatible) configuration
	GroqAPIKey        string
	GroqModel         string
	LLMTimeout        time.Duration
	LLMMaxConcurrency int

	// Auth
	JWTSecret string

	// Mail configuration
	MailProvider   string // "smtp" or "sendgrid"
	MailFrom       string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	SendGridAPIKey string
	EmailQueueSize int
	EmailWorkers   int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server defaults
		Port:           getEnv("PORT", "8080"),
		TrustedProxies: getStringSliceEnv("TRUSTED_PROXIES", ""),

		// Supabase defaults
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseTimeout:        getDurationEnv("SUPABASE_TIMEOUT", 30*time.Second),

		// Groq defaults
		GroqAPIKey:        getEnv("GROQ_API_KEY", ""),
		GroqModel:         getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		LLMTimeout:        getDurationEnv("LLM_TIMEOUT", 15*time.Second),
		LLMMaxConcurrency: getIntEnv("LLM_MAX_CONCURRENCY", 8),

		// Auth defaults
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Mail defaults
		MailProvider:   getEnv("MAIL_PROVIDER", "smtp"),
		MailFrom:       getEnv("MAIL_FROM", ""),
		SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:       getEnv("SMTP_PORT", "587"),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailQueueSize: getIntEnv("EMAIL_QUEUE_SIZE", 64),
		EmailWorkers:   getIntEnv("EMAIL_WORKERS", 2),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getStringSliceEnv gets a comma-separated environment variable as a string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
