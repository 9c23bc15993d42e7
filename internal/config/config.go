package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	StorageMySQL    = "mysql"
	StorageSQLite   = "sqlite"
	StorageInMemory = "inmemory"
)

// Config holds every setting of the service. Each key can come from the
// environment (upper-cased), a .env file or an optional toml config file.
type Config struct {
	AppEnv            string `mapstructure:"app_env"`
	AppPort           string `mapstructure:"app_port"`
	LogLevel          string `mapstructure:"log_level"`
	LogDir            string `mapstructure:"log_dir"`
	StorageType       string `mapstructure:"storage_type"`
	DBUser            string `mapstructure:"db_user"`
	DBPass            string `mapstructure:"db_pass"`
	DBHost            string `mapstructure:"db_host"`
	DBPort            string `mapstructure:"db_port"`
	DBName            string `mapstructure:"db_name"`
	FullDSN           string `mapstructure:"full_dsn"`
	SQLitePath        string `mapstructure:"sqlite_path"`
	AnalyticsTimezone string `mapstructure:"analytics_timezone"`
}

var defaults = map[string]any{
	"app_env":            "development",
	"app_port":           "8080",
	"log_level":          "info",
	"log_dir":            "./logging/logs",
	"storage_type":       StorageMySQL,
	"db_user":            "",
	"db_pass":            "",
	"db_host":            "",
	"db_port":            "",
	"db_name":            "finance_analytics",
	"full_dsn":           "",
	"sqlite_path":        "finance_analytics.db",
	"analytics_timezone": "UTC",
}

// Load reads .env (if present), then the optional config file at configPath,
// then the environment.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AppEnv = strings.ToLower(cfg.AppEnv)
	cfg.StorageType = strings.ToLower(cfg.StorageType)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageMySQL:
		if c.FullDSN == "" && (c.DBUser == "" || c.DBPass == "" || c.DBHost == "" || c.DBPort == "") {
			return fmt.Errorf("missing required DB environment variables")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite storage requires SQLITE_PATH")
		}
	case StorageInMemory:
	default:
		return fmt.Errorf("unknown storage type: %q", c.StorageType)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location is the calendar used to cut days and months for analytics.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AnalyticsTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid analytics timezone %q: %w", c.AnalyticsTimezone, err)
	}
	return loc, nil
}
