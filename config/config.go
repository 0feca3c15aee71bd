package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	SinkCSV  = "csv"
	SinkSQL  = "sql"
	SinkBoth = "both"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DefaultDateFormats are the posting-date layouts tried in order.
var DefaultDateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	InputPath string
	OutputDir string

	Sink       string
	SinkDriver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	TaxonomyPath          string
	DateFormats           []string
	FallbackSkillCategory string

	NormalizeWorkers int
	BatchSize        int
	MaxRetries       int
	TopN             int

	LogLevel string
}

// Load reads the .env file (if present) and returns a populated Config struct.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		InputPath: getEnv("INPUT_PATH", "./data/raw/Wuzzuf-Jobs-Posting.csv"),
		OutputDir: getEnv("OUTPUT_DIR", "./data/processed"),

		Sink:       strings.ToLower(getEnv("SINK", SinkCSV)),
		SinkDriver: strings.ToLower(getEnv("SINK_DRIVER", DriverPostgres)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "wuzzuf"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/processed/jobs.db"),

		TaxonomyPath:          getEnv("TAXONOMY_PATH", ""),
		DateFormats:           getEnvList("DATE_FORMATS", DefaultDateFormats),
		FallbackSkillCategory: strings.ToLower(getEnv("FALLBACK_SKILL_CATEGORY", "")),

		NormalizeWorkers: getEnvInt("NORMALIZE_WORKERS", 1),
		BatchSize:        getEnvInt("BATCH_SIZE", 500),
		MaxRetries:       getEnvInt("MAX_RETRIES", 5),
		TopN:             getEnvInt("TOP_N", 10),

		LogLevel: getEnv("LOG_LEVEL", "info"),
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

// DataSource returns the connection string for the configured SQL driver.
func (c *Config) DataSource() string {
	if c.SinkDriver == DriverSQLite {
		return c.SQLitePath
	}
	return c.DSN()
}

// WantsCSV reports whether flat-file output is enabled.
func (c *Config) WantsCSV() bool {
	return c.Sink == SinkCSV || c.Sink == SinkBoth
}

// WantsSQL reports whether the relational store is enabled.
func (c *Config) WantsSQL() bool {
	return c.Sink == SinkSQL || c.Sink == SinkBoth
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

// getEnvList splits a ';'-separated value. Layouts may contain commas, so
// the separator is a semicolon.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(val, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
