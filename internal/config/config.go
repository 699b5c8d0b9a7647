package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP change feed (empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Recalculation scheduler
	RecalcDebounce    time.Duration
	RecalcTimeout     time.Duration
	RecalcMaxAttempts int
	RecalcBackoffBase time.Duration
	RecalcBackoffCap  time.Duration

	// Rule materialization
	MaterializeWindowDays int
	MaterializeCron       string
	MaterializeWorkers    int

	// Month-summary export
	ExportEnabled bool
	ExportCron    string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/zbudget.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "zbudget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "monthly_data_changes"),

		RecalcDebounce:    getEnvDuration("RECALC_DEBOUNCE", 500*time.Millisecond),
		RecalcTimeout:     getEnvDuration("RECALC_TIMEOUT", 10*time.Second),
		RecalcMaxAttempts: getEnvInt("RECALC_MAX_ATTEMPTS", 3),
		RecalcBackoffBase: getEnvDuration("RECALC_BACKOFF_BASE", time.Second),
		RecalcBackoffCap:  getEnvDuration("RECALC_BACKOFF_CAP", 8*time.Second),

		MaterializeWindowDays: getEnvInt("MATERIALIZE_WINDOW_DAYS", 60),
		MaterializeCron:       getEnv("MATERIALIZE_CRON", "0 3 * * *"),
		MaterializeWorkers:    getEnvInt("MATERIALIZE_WORKERS", 4),

		ExportEnabled: getEnvBool("EXPORT_ENABLED", false),
		ExportCron:    getEnv("EXPORT_CRON", "30 3 * * *"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecalcDebounce < 10*time.Millisecond || c.RecalcDebounce > time.Minute {
		errs = append(errs, fmt.Sprintf("invalid recalc debounce %v: must be between 10ms and 1m", c.RecalcDebounce))
	}
	if c.RecalcTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid recalc timeout %v: must be at least 1 second", c.RecalcTimeout))
	}
	if c.RecalcMaxAttempts < 1 || c.RecalcMaxAttempts > 10 {
		errs = append(errs, fmt.Sprintf("invalid recalc max attempts %d: must be between 1 and 10", c.RecalcMaxAttempts))
	}
	if c.RecalcBackoffBase <= 0 || c.RecalcBackoffCap < c.RecalcBackoffBase {
		errs = append(errs, "invalid recalc backoff: base must be positive and cap must not be below base")
	}

	if c.MaterializeWindowDays < 1 || c.MaterializeWindowDays > 366 {
		errs = append(errs, fmt.Sprintf("invalid materialize window %d days: must be between 1 and 366", c.MaterializeWindowDays))
	}
	if c.MaterializeWorkers < 1 || c.MaterializeWorkers > 64 {
		errs = append(errs, fmt.Sprintf("invalid materialize workers %d: must be between 1 and 64", c.MaterializeWorkers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
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
