package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	perr "maps-scraper/errors"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	SheetID        string
	SheetCredsPath string
	SheetTab       string
	DefaultQuery   string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ChromeBin      string
	NavTimeout     time.Duration
	RateLimitMs    int
	JitterMs       int
	MaxRetries     int
	MaxConcurrency int
	EnrichTimeout  time.Duration
	EnrichVerifyMX bool

	SnapshotDir string
	LogLevel    string
	LogFormat   string

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// Load reads the .env file (if any) and returns a populated Config struct.
func Load() *Config {
	loaded := godotenv.Load() == nil

	return &Config{
		SheetID:        getEnv("GSHEET_ID", ""),
		SheetCredsPath: getEnv("GSHEET_CREDS_PATH", ""),
		SheetTab:       getEnv("GSHEET_TAB", "Places"),
		DefaultQuery:   getEnv("DEFAULT_QUERY", ""),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", ""),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", ""),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ChromeBin:      getEnv("CHROME_BIN", ""),
		NavTimeout:     getEnvMillis("NAV_TIMEOUT_MS", 45000),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1500),
		JitterMs:       getEnvInt("JITTER_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		EnrichTimeout:  getEnvMillis("ENRICH_TIMEOUT_MS", 15000),
		EnrichVerifyMX: getEnvBool("ENRICH_VERIFY_MX", false),

		SnapshotDir: getEnv("SNAPSHOT_DIR", "./output"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),

		EnvFileLoaded: loaded,
	}
}

// Validate checks the settings a run cannot start without. The sheet
// identifier and credential path are required as a pair.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.SheetID) == "" {
		missing = append(missing, "GSHEET_ID")
	}
	if strings.TrimSpace(c.SheetCredsPath) == "" {
		missing = append(missing, "GSHEET_CREDS_PATH")
	}
	if len(missing) > 0 {
		return perr.Configf("missing destination configuration: %s", strings.Join(missing, ", "))
	}
	if c.DBEnabled() && c.DBDriver != "postgres" && c.DBDriver != "mysql" {
		return perr.Configf("unsupported DB_DRIVER %q (want postgres or mysql)", c.DBDriver)
	}
	return nil
}

// DBEnabled reports whether the secondary relational target is configured.
// Absent values disable it without failing the run.
func (c *Config) DBEnabled() bool {
	return c.DBHost != "" && c.DBName != "" && c.DBUser != ""
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "mysql" {
		port := c.DBPort
		if port == "" {
			port = "3306"
		}
		return c.DBUser + ":" + c.DBPassword +
			"@tcp(" + c.DBHost + ":" + port + ")/" + c.DBName +
			"?parseTime=true&charset=utf8mb4"
	}

	port := c.DBPort
	if port == "" {
		port = "5432"
	}
	return "host=" + c.DBHost +
		" port=" + port +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil && n >= 0 {
			return n
		}
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

func getEnvMillis(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}
