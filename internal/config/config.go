package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/core-coin/mintviewer/pkg/validation"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Database configuration
	DBDriver         string
	SQLitePath       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Telegram configuration
	TelegramBotToken       string
	RequiredChannels       []string
	SubscriptionPriceStars int
	SendRatePerSecond      float64
	GiftCatalogURL         string

	// Upstream stream configuration
	StreamURL           string
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
	DispatchConcurrency int
	SendTimeout         time.Duration
	DispatchTimeout     time.Duration
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 6532),
		DBDriver:         getEnv("DB_DRIVER", DriverSQLite),
		SQLitePath:       getEnv("SQLITE_PATH", "subscriptions.db"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "mintviewer"),

		TelegramBotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		RequiredChannels:       getEnvAsList("REQUIRED_CHANNELS", []string{"@Nftsgiftsnews", "@shapodev"}),
		SubscriptionPriceStars: getEnvAsInt("SUBSCRIPTION_PRICE_STARS", 15),
		SendRatePerSecond:      getEnvAsFloat("SEND_RATE_PER_SECOND", 25),
		GiftCatalogURL:         getEnv("GIFT_CATALOG_URL", ""),

		StreamURL:           getEnv("STREAM_URL", "https://gsocket.trump.tg"),
		ReconnectBaseDelay:  getEnvAsDuration("RECONNECT_BASE_DELAY", 2*time.Second),
		ReconnectMaxDelay:   getEnvAsDuration("RECONNECT_MAX_DELAY", 60*time.Second),
		DispatchConcurrency: getEnvAsInt("DISPATCH_CONCURRENCY", 16),
		SendTimeout:         getEnvAsDuration("SEND_TIMEOUT", 10*time.Second),
		DispatchTimeout:     getEnvAsDuration("DISPATCH_TIMEOUT", 45*time.Second),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set.
// Channel references are normalized in place.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	if err := validation.ValidateEndpoint(c.StreamURL); err != nil {
		return fmt.Errorf("invalid STREAM_URL: %w", err)
	}

	if len(c.RequiredChannels) == 0 {
		return fmt.Errorf("REQUIRED_CHANNELS is required")
	}
	for i, channel := range c.RequiredChannels {
		normalized, err := validation.ValidateAndNormalizeChannelID(channel)
		if err != nil {
			return fmt.Errorf("invalid REQUIRED_CHANNELS entry: %w", err)
		}
		c.RequiredChannels[i] = normalized
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case DriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.ReconnectBaseDelay <= 0 || c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY must be >= RECONNECT_BASE_DELAY > 0")
	}
	if c.DispatchConcurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive")
	}
	if c.SubscriptionPriceStars <= 0 {
		return fmt.Errorf("SUBSCRIPTION_PRICE_STARS must be positive")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsList reads a comma separated list, dropping empty entries.
func getEnvAsList(name string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
