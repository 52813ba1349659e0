package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full application configuration. Values come from an
// optional TOML file first, then environment variables on top, so env
// always wins.
type Config struct {
	// HTTP server
	Port string

	// Backend selection
	DataBackend   string
	SQLiteDBPath  string
	PostgresURL   string
	DataDirectory string

	// Debounced persistence
	SaveDebounce time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	ResyncInterval time.Duration
}

// fileConfig mirrors Config for the TOML file, grouped into sections.
type fileConfig struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`
	Storage struct {
		Backend       string `toml:"backend"`
		SQLitePath    string `toml:"sqlite_path"`
		PostgresURL   string `toml:"postgres_url"`
		DataDirectory string `toml:"data_directory"`
		SaveDebounce  string `toml:"save_debounce"`
	} `toml:"storage"`
	AMQP struct {
		URL      string `toml:"url"`
		Exchange string `toml:"exchange"`
		Queue    string `toml:"queue"`
	} `toml:"amqp"`
	Sheets struct {
		SpreadsheetID string `toml:"spreadsheet_id"`
		SheetName     string `toml:"sheet_name"`
	} `toml:"sheets"`
	Worker struct {
		ResyncInterval string `toml:"resync_interval"`
	} `toml:"worker"`
}

// Load builds the configuration from the optional config file and the
// environment.
func Load() *Config {
	cfg := &Config{
		Port:           "8081",
		DataBackend:    "memory",
		SQLiteDBPath:   "./data/cashplan.db",
		SaveDebounce:   time.Second,
		AMQPExchange:   "cashplan",
		AMQPQueue:      "project_sync",
		ResyncInterval: 15 * time.Minute,
	}

	cfg.applyFile(configFilePath())

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.DataDirectory = getEnv("DATA_DIRECTORY", cfg.DataDirectory)
	cfg.SaveDebounce = getEnvDuration("SAVE_DEBOUNCE", cfg.SaveDebounce)
	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)
	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.ResyncInterval = getEnvDuration("RESYNC_INTERVAL", cfg.ResyncInterval)

	return cfg
}

func configFilePath() string {
	if p := os.Getenv("CASHPLAN_CONFIG"); p != "" {
		return p
	}
	return "cashplan.toml"
}

// applyFile overlays values from a TOML config file when present. A
// missing or malformed file leaves the defaults untouched.
func (c *Config) applyFile(path string) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return
	}

	setString(&c.Port, fc.Server.Port)
	setString(&c.DataBackend, fc.Storage.Backend)
	setString(&c.SQLiteDBPath, fc.Storage.SQLitePath)
	setString(&c.PostgresURL, fc.Storage.PostgresURL)
	setString(&c.DataDirectory, fc.Storage.DataDirectory)
	setDuration(&c.SaveDebounce, fc.Storage.SaveDebounce)
	setString(&c.AMQPURL, fc.AMQP.URL)
	setString(&c.AMQPExchange, fc.AMQP.Exchange)
	setString(&c.AMQPQueue, fc.AMQP.Queue)
	setString(&c.GoogleSpreadsheetID, fc.Sheets.SpreadsheetID)
	setString(&c.GoogleSheetName, fc.Sheets.SheetName)
	setDuration(&c.ResyncInterval, fc.Worker.ResyncInterval)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "postgres":
		if c.PostgresURL == "" {
			errors = append(errors, "Postgres URL cannot be empty when using postgres backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite postgres]", c.DataBackend))
	}

	if c.SaveDebounce < 50*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid save debounce %v: must be at least 50ms", c.SaveDebounce))
	} else if c.SaveDebounce > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid save debounce %v: must be at most 1 minute", c.SaveDebounce))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ResyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid resync interval %v: must be at least 1 second", c.ResyncInterval))
	} else if c.ResyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid resync interval %v: must be at most 24 hours", c.ResyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
