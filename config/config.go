package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultUserAgent is sent with every upstream request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DatabaseURL      string
	Storage          string

	MaxRetries       int
	RetryBaseDelay   time.Duration
	RequestTimeout   time.Duration
	RateLimitMs      int
	BatchSize        int
	PageSize         int
	StoreConcurrency int
	UserAgent        string
	Currency         string

	ReportDir     string
	CSVOutputPath string
	LogLevel      string
	MetricsAddr   string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "tracker"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "tracker"),
		PostgresDB:       getEnv("POSTGRES_DB", "price_tracker"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Storage:          getEnv("STORAGE", "postgres"),

		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY_MS", 1000, time.Millisecond),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT_SEC", 30, time.Second),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 250),
		BatchSize:        getEnvInt("BATCH_SIZE", 50),
		PageSize:         getEnvInt("PAGE_SIZE", 100),
		StoreConcurrency: getEnvInt("STORE_CONCURRENCY", 1),
		UserAgent:        getEnv("USER_AGENT", DefaultUserAgent),
		Currency:         getEnv("CURRENCY", "EUR"),

		ReportDir:     getEnv("REPORT_DIR", "./reports"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("[config] Invalid integer for %s=%q, using default %d", key, val, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * unit
}
