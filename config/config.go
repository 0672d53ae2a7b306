package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	ExportPostgres   bool

	MaxPages         int
	MaxRecords       int
	MaxRetries       int
	RetryBaseDelayMs int
	RateLimitMs      int
	JitterMs         int
	RequestTimeout   time.Duration

	BaseURL           string
	UserAgent         string
	UseBrowser        bool
	ChromeBin         string
	SelectorRulesPath string

	CSVOutputPath string
	HTTPAddr      string
	LogLevel      string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("[config] No .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		ExportPostgres:   getEnvBool("EXPORT_POSTGRES", false),

		MaxPages:         getEnvPositive("MAX_PAGES", 5),
		MaxRecords:       getEnvInt("MAX_RECORDS", 0),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelayMs: getEnvInt("RETRY_BASE_DELAY_MS", 1000),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 2000),
		JitterMs:         getEnvInt("JITTER_MS", 1000),
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		BaseURL:           getEnv("BASE_URL", "https://www.propertyfinder.ae"),
		UserAgent:         getEnv("USER_AGENT", ""),
		UseBrowser:        getEnvBool("USE_BROWSER", false),
		ChromeBin:         getEnv("CHROME_BIN", ""),
		SelectorRulesPath: getEnv("SELECTOR_RULES_PATH", ""),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/listings.csv"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
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
	}
	return fallback
}

// getEnvPositive is getEnvInt for settings that must be at least 1.
func getEnvPositive(key string, fallback int) int {
	if n := getEnvInt(key, fallback); n >= 1 {
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}
