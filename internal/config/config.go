package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultBlacklist is used when LINK_BLACKLIST is not set
var DefaultBlacklist = []string{
	"scam.com",
	"phishing",
	"malware",
	"fake-store",
	"bit.ly",
	"tinyurl.com",
}

type Config struct {
	Port        string
	MetricsPort string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	AdminAPIKey string

	// Link validation
	Blacklist         []string
	FetchTimeout      time.Duration
	FetchMaxRedirects int
	FetchMaxBodyBytes int64
	ProbeFirst        bool

	// Worker pool
	WorkerConcurrency    int
	ValidationRatePerSec float64
	DequeueTimeout       time.Duration
	RetryPollInterval    time.Duration
	SweepSchedule        string
	SweepBatchSize       int
}

// Load reads the configuration and exits when DATABASE_URL or REDIS_URL
// is missing
func Load() *Config {
	config := LoadOptional()
	if err := config.ValidateForStores(); err != nil {
		log.Fatal(err)
	}
	return config
}

// LoadOptional is Load for tools that may run without the stores, such as
// the seeder in dry-run mode. Callers check ValidateForStores themselves.
func LoadOptional() *Config {
	config := fromEnv()

	// Command line flags override environment
	flag.StringVar(&config.Port, "port", config.Port, "Server port")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level")
	flag.IntVar(&config.WorkerConcurrency, "concurrency", config.WorkerConcurrency, "Concurrent validations")
	flag.Parse()

	return config
}

func fromEnv() *Config {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	return &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		MetricsPort: getEnvWithDefault("METRICS_PORT", "9090"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		AdminAPIKey: getEnvWithDefault("ADMIN_API_KEY", ""),

		Blacklist:         getEnvAsList("LINK_BLACKLIST", DefaultBlacklist),
		FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxRedirects: getEnvAsInt("FETCH_MAX_REDIRECTS", 5),
		FetchMaxBodyBytes: int64(getEnvAsInt("FETCH_MAX_BODY_BYTES", 1024*1024)),
		ProbeFirst:        getEnvAsBool("VALIDATOR_PROBE_FIRST", false),

		WorkerConcurrency:    getEnvAsInt("WORKER_CONCURRENCY", 5),
		ValidationRatePerSec: getEnvAsFloat("VALIDATION_RATE_PER_SEC", 10),
		DequeueTimeout:       getEnvAsDuration("DEQUEUE_TIMEOUT", 5*time.Second),
		RetryPollInterval:    getEnvAsDuration("RETRY_POLL_INTERVAL", 5*time.Second),
		SweepSchedule:        getEnvWithDefault("SWEEP_SCHEDULE", "*/5 * * * *"),
		SweepBatchSize:       getEnvAsInt("SWEEP_BATCH_SIZE", 1000),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("10s") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blank entries
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ValidateForStores ensures the database and Redis URLs are present
func (c *Config) ValidateForStores() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("environment variable DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("environment variable REDIS_URL is required")
	}
	return nil
}

// ValidateForWorker ensures all required fields for worker service are present
func (c *Config) ValidateForWorker() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.ValidationRatePerSec <= 0 {
		return fmt.Errorf("VALIDATION_RATE_PER_SEC must be positive, got %v", c.ValidationRatePerSec)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.FetchMaxRedirects < 0 {
		return fmt.Errorf("FETCH_MAX_REDIRECTS must not be negative")
	}
	if c.FetchMaxBodyBytes <= 0 {
		return fmt.Errorf("FETCH_MAX_BODY_BYTES must be positive")
	}
	if c.RetryPollInterval <= 0 || c.DequeueTimeout <= 0 {
		return fmt.Errorf("RETRY_POLL_INTERVAL and DEQUEUE_TIMEOUT must be positive")
	}
	return nil
}

// ValidateForAPI ensures all required fields for API service are present
func (c *Config) ValidateForAPI() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	return nil
}
