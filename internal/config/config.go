package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Checkout CheckoutConfig
	Risk     RiskConfig
	Secrets  SecretsConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int

	// Public base URL of this service, used to build the gateway's
	// success/failure/notify callback URLs.
	PublicBaseURL string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds the session store configuration
type RedisConfig struct {
	Addr       string
	Username   string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// GatewayConfig holds Computop paygate configuration
type GatewayConfig struct {
	BaseURL string // e.g. https://www.computop-paygate.com
	Timeout int    // request timeout in seconds (default: 30)
}

// CheckoutConfig holds the payment flow policy
type CheckoutConfig struct {
	// CreditCardMode selects REDIRECT, IFRAME or SILENT card handling.
	// Kept separate from CreditCardCaption: mode gates the silent flow,
	// caption is only display text.
	CreditCardMode    string
	CreditCardCaption string
	AutoCapture       bool

	// Shop pages the flow redirects to
	FinishURL  string
	FailureURL string
	ConfirmURL string
}

// RiskConfig holds the CRIF cache policy
type RiskConfig struct {
	InvalidateAfterDays int
	AutoCorrectAddress  bool
}

// SecretsConfig selects the merchant credential backend
type SecretsConfig struct {
	// Backend is "aws", "vault" or "local"
	Backend string

	// CredentialsPath is the secret path holding the merchant credential
	// JSON (merchant_id, cipher_password, hmac_password).
	CredentialsPath string

	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	VaultAddress string
	VaultToken   string

	LocalBasePath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnvAsInt("SERVER_PORT", 8080),
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:   getEnvAsInt("METRICS_PORT", 9090),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "computop_checkout"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Username:   getEnv("REDIS_USERNAME", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			SessionTTL: time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 30)) * time.Minute,
		},
		Gateway: GatewayConfig{
			BaseURL: getEnv("COMPUTOP_BASE_URL", "https://www.computop-paygate.com"),
			Timeout: getEnvAsInt("COMPUTOP_TIMEOUT", 30),
		},
		Checkout: CheckoutConfig{
			CreditCardMode:    getEnv("CREDITCARD_MODE", "IFRAME"),
			CreditCardCaption: getEnv("CREDITCARD_CAPTION", ""),
			AutoCapture:       getEnvAsBool("AUTO_CAPTURE", false),
			FinishURL:         getEnv("SHOP_FINISH_URL", "http://localhost:3000/checkout/finish"),
			FailureURL:        getEnv("SHOP_PAYMENT_URL", "http://localhost:3000/checkout/payment"),
			ConfirmURL:        getEnv("SHOP_CONFIRM_URL", "http://localhost:3000/checkout/confirm"),
		},
		Risk: RiskConfig{
			InvalidateAfterDays: getEnvAsInt("CRIF_INVALIDATE_AFTER_DAYS", 0),
			AutoCorrectAddress:  getEnvAsBool("CRIF_AUTO_CORRECT_ADDRESS", false),
		},
		Secrets: SecretsConfig{
			Backend:         getEnv("SECRETS_BACKEND", "local"),
			CredentialsPath: getEnv("MERCHANT_CREDENTIALS_PATH", "computop-checkout/merchant/credentials"),
			AWSRegion:       getEnv("AWS_REGION", "eu-central-1"),
			AWSProfile:      getEnv("AWS_PROFILE", ""),
			AWSEndpoint:     getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:    getEnv("VAULT_ADDR", ""),
			VaultToken:      getEnv("VAULT_TOKEN", ""),
			LocalBasePath:   getEnv("SECRETS_LOCAL_PATH", "./secrets"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Secrets.Backend == "vault" && cfg.Secrets.VaultAddress == "" {
		return nil, fmt.Errorf("VAULT_ADDR is required for the vault secrets backend")
	}
	switch cfg.Checkout.CreditCardMode {
	case "REDIRECT", "IFRAME", "SILENT":
	default:
		return nil, fmt.Errorf("CREDITCARD_MODE must be REDIRECT, IFRAME or SILENT, got %q", cfg.Checkout.CreditCardMode)
	}

	return cfg, nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
