// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Supplier    SupplierConfig
	Sync        SyncConfig
	Pricing     PricingConfig
	Scheduler   SchedulerConfig
	LogLevel    string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey string
}

// SupplierConfig drives the external product-data API client: endpoint,
// credentials, throttle spacing and the retry/backoff schedule.
type SupplierConfig struct {
	BaseURL        string
	APIKey         string
	APIHost        string
	DefaultCountry string
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
}

type SyncConfig struct {
	BatchSize    int
	BatchDelay   time.Duration
	DefaultLimit int
	MaxLimit     int
}

type PricingConfig struct {
	MarkupFactor float64
	FlatFee      float64
}

type SchedulerConfig struct {
	Enabled      bool
	CronSpec     string
	RefreshLimit int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "reseller_admin"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Supplier: SupplierConfig{
			BaseURL:        getEnv("SUPPLIER_API_BASE_URL", "https://real-time-amazon-data.p.rapidapi.com"),
			APIKey:         getEnv("SUPPLIER_API_KEY", ""),
			APIHost:        getEnv("SUPPLIER_API_HOST", "real-time-amazon-data.p.rapidapi.com"),
			DefaultCountry: getEnv("SUPPLIER_DEFAULT_COUNTRY", "AU"),
			RequestDelay:   getEnvAsDuration("SUPPLIER_REQUEST_DELAY_SECONDS", 5),
			RequestTimeout: getEnvAsDuration("SUPPLIER_TIMEOUT_SECONDS", 60),
			MaxRetries:     getEnvAsInt("SUPPLIER_MAX_RETRIES", 3),
			BackoffBase:    getEnvAsDuration("SUPPLIER_BACKOFF_BASE_SECONDS", 10),
		},
		Sync: SyncConfig{
			BatchSize:    getEnvAsInt("SYNC_BATCH_SIZE", 10),
			BatchDelay:   getEnvAsDuration("SYNC_BATCH_DELAY_SECONDS", 2),
			DefaultLimit: getEnvAsInt("SYNC_DEFAULT_LIMIT", 100),
			MaxLimit:     getEnvAsInt("SYNC_MAX_LIMIT", 1000),
		},
		Pricing: PricingConfig{
			MarkupFactor: getEnvAsFloat("PRICING_MARKUP_FACTOR", 1.35),
			FlatFee:      getEnvAsFloat("PRICING_FLAT_FEE", 0),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvAsBool("SYNC_CRON_ENABLED", false),
			CronSpec:     getEnv("SYNC_CRON_SPEC", "0 3 * * *"),
			RefreshLimit: getEnvAsInt("SYNC_CRON_LIMIT", 200),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Supplier.APIKey == "" && c.Environment == "production" {
		return fmt.Errorf("supplier API key is required in production")
	}

	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync batch size must be at least 1")
	}

	if c.Supplier.MaxRetries < 1 {
		return fmt.Errorf("supplier max retries must be at least 1")
	}

	if c.Pricing.MarkupFactor <= 0 {
		return fmt.Errorf("pricing markup factor must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}
