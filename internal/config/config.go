// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Site registry (sqlite)
	StoragePath          string `mapstructure:"storagepath"`
	DatabaseName         string `mapstructure:"-"` // Derived from other settings
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Event store (ClickHouse)
	ClickHouseAddr     string `mapstructure:"clickhouseaddr"`
	ClickHouseDatabase string `mapstructure:"clickhousedatabase"`
	ClickHouseUser     string `mapstructure:"clickhouseuser"`
	ClickHousePassword string `mapstructure:"clickhousepassword"`

	// Query defaults
	SampleThreshold int64 `mapstructure:"samplethreshold"`
	BreakdownLimit  int   `mapstructure:"breakdownlimit"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "statlens")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("storagepath", "storage")
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("clickhouseaddr", "localhost:9000")
		v.SetDefault("clickhousedatabase", "statlens")
		v.SetDefault("clickhouseuser", "default")
		v.SetDefault("clickhousepassword", "")
		v.SetDefault("samplethreshold", int64(20_000_000))
		v.SetDefault("breakdownlimit", 100)
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)

		// Bind environment variables
		v.BindEnv("appname", "STATLENS_APP_NAME")
		v.BindEnv("appport", "STATLENS_APP_PORT")
		v.BindEnv("environment", "STATLENS_ENV")
		v.BindEnv("loglevel", "STATLENS_LOG_LEVEL")
		v.BindEnv("storagepath", "STATLENS_STORAGE_PATH")
		v.BindEnv("dbmaxopenconns", "STATLENS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "STATLENS_DB_MAX_IDLE_CONNS")
		v.BindEnv("clickhouseaddr", "STATLENS_CLICKHOUSE_ADDR")
		v.BindEnv("clickhousedatabase", "STATLENS_CLICKHOUSE_DATABASE")
		v.BindEnv("clickhouseuser", "STATLENS_CLICKHOUSE_USER")
		v.BindEnv("clickhousepassword", "STATLENS_CLICKHOUSE_PASSWORD")
		v.BindEnv("samplethreshold", "STATLENS_SAMPLE_THRESHOLD")
		v.BindEnv("breakdownlimit", "STATLENS_BREAKDOWN_LIMIT")
		v.BindEnv("logsdir", "STATLENS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "STATLENS_LOGS_MAX_SIZE_MB")
		v.BindEnv("logsmaxbackups", "STATLENS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "STATLENS_LOGS_MAX_AGE_DAYS")

		v.AutomaticEnv()

		config := &Config{}
		if err := v.Unmarshal(config); err != nil {
			panic(fmt.Sprintf("failed to unmarshal config: %v", err))
		}

		config.DatabaseName = filepath.Join(config.StoragePath,
			fmt.Sprintf("%s-%s.db", config.AppName, config.Environment))
		cfg = config
	})
	return cfg
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest reports whether the app runs under the test environment.
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1 // Required for test stability
	}

	return 10 // Allows concurrent reads for parallel report queries
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1 // Matches MaxOpenConns for test stability
	}

	return 5 // Keep half the pool warm
}

// GetLogLevel returns the log level as a string.
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
