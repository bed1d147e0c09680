package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	TaxConfigPath      string
	JWTSecret          string
	MaxUploadSizeBytes int64
	CacheExpiration    time.Duration

	RateLimitEvery time.Duration
	RateLimitBurst int

	// Extraction pipeline
	ExtractionConfidenceThreshold float64
	ExtractionProviderTimeout     time.Duration
	ExtractionConcurrency         int

	LLMProvider     string // genai, anthropic or none
	GenAIAPIKey     string
	GenAIModel      string
	AnthropicAPIKey string
	AnthropicModel  string

	EmailServiceProvider string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail string
	SenderName  string
}

var Cfg *AppConfig

// LoadConfig reads the .env file (if any) and the process environment into Cfg.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")
	Cfg = FromEnv()

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, LLMProvider=%s, EmailProvider=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.LLMProvider, Cfg.EmailServiceProvider)
}

// FromEnv builds a configuration from the current environment without touching Cfg.
func FromEnv() *AppConfig {
	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	return &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./taxcore.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		TaxConfigPath:      getEnv("TAX_CONFIG_PATH", "data/tax_config_2024.yaml"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		CacheExpiration:    getEnvAsDuration("CACHE_EXPIRATION", 15*time.Minute),

		RateLimitEvery: getEnvAsDuration("RATE_LIMIT_EVERY", 100*time.Millisecond),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),

		ExtractionConfidenceThreshold: getEnvAsFloat("EXTRACTION_CONFIDENCE_THRESHOLD", 0.8),
		ExtractionProviderTimeout:     getEnvAsDuration("EXTRACTION_PROVIDER_TIMEOUT", 30*time.Second),
		ExtractionConcurrency:         getEnvAsInt("EXTRACTION_CONCURRENCY", 4),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		GenAIAPIKey:     getEnv("GENAI_API_KEY", ""),
		GenAIModel:      getEnv("GENAI_MODEL", "gemini-2.5-flash"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		EmailServiceProvider: strings.ToLower(getEnv("EMAIL_SERVICE_PROVIDER", "mock")),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail: getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:  getEnv("SENDER_NAME", "Taxcore"),
	}
}

// Validate reports configuration that would make the server misbehave.
// The CLI decides whether a failure is fatal.
func (c *AppConfig) Validate() error {
	if math.IsNaN(c.ExtractionConfidenceThreshold) || c.ExtractionConfidenceThreshold < 0 || c.ExtractionConfidenceThreshold > 1 {
		return fmt.Errorf("EXTRACTION_CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ExtractionConfidenceThreshold)
	}
	if c.ExtractionProviderTimeout <= 0 {
		return fmt.Errorf("EXTRACTION_PROVIDER_TIMEOUT must be positive, got %s", c.ExtractionProviderTimeout)
	}
	if c.ExtractionConcurrency < 1 {
		return fmt.Errorf("EXTRACTION_CONCURRENCY must be at least 1, got %d", c.ExtractionConcurrency)
	}
	switch c.LLMProvider {
	case "none", "":
	case "genai":
		if c.GenAIAPIKey == "" {
			return fmt.Errorf("GENAI_API_KEY is required when LLM_PROVIDER is 'genai'")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER is 'anthropic'")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.EmailServiceProvider == "mailgun" {
		if c.MailgunDomain == "" || c.MailgunPrivateAPIKey == "" {
			return fmt.Errorf("MAILGUN_DOMAIN and MAILGUN_PRIVATE_API_KEY are required when EMAIL_SERVICE_PROVIDER is 'mailgun'")
		}
		if c.SenderEmail == "noreply@example.com" || c.SenderEmail == "" {
			return fmt.Errorf("SENDER_EMAIL must be configured properly when EMAIL_SERVICE_PROVIDER is 'mailgun'")
		}
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes long, got %d", len(c.JWTSecret))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
