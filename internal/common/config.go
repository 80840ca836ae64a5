package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Export   ExportConfig   `yaml:"export"`
}

// DatabaseConfig holds database-related configuration.
// DSN selects the backend: a postgres:// URL opens a pgx pool, anything
// else is treated as an SQLite file path.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxConns        int32    `yaml:"max_conns"`
	MinConns        int32    `yaml:"min_conns"`
	MaxConnLifetime Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime Duration `yaml:"max_conn_idle_time"`
	DialTimeout     Duration `yaml:"dial_timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string   `yaml:"http_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// FetchConfig holds document retrieval configuration
type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	MaxBytes  int64    `yaml:"max_bytes"`
	UserAgent string   `yaml:"user_agent"`
}

// ExportConfig holds spreadsheet publication configuration
type ExportConfig struct {
	WorkbookPath string `yaml:"workbook_path"`
	SheetName    string `yaml:"sheet_name"`
}

// Duration wraps time.Duration so YAML configs can use "30s" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadConfig loads configuration from environment variables, then overlays
// the YAML file named by CONFIG_FILE when one is set.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", "manifests.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Fetch: FetchConfig{
			Timeout:   getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
			MaxBytes:  getEnvAsInt64("FETCH_MAX_BYTES", 10<<20),
			UserAgent: getEnv("FETCH_USER_AGENT", "manifestd/1.0"),
		},
		Export: ExportConfig{
			WorkbookPath: getEnv("EXPORT_WORKBOOK", ""),
			SheetName:    getEnv("EXPORT_SHEET", "Shipments"),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapError(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapError(err, "parse config file")
		}
	}
	return cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_DSN is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return Duration(duration)
		}
	}
	return Duration(defaultValue)
}
