package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Printers  PrintersConfig  `yaml:"printers"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	Staleness StalenessConfig `yaml:"staleness"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type DispatchConfig struct {
	Mode      string `yaml:"mode"`
	PageWidth int    `yaml:"page_width"`
	Currency  string `yaml:"currency"`
}

// NetworkPrinter and PrintersConfig are shared by the server's YAML file and
// the worker's JSON file.
type NetworkPrinter struct {
	Name    string `yaml:"name" mapstructure:"name" validate:"required"`
	Address string `yaml:"address" mapstructure:"address" validate:"required"`
	Default bool   `yaml:"default" mapstructure:"default"`
}

type PrintersConfig struct {
	ThermalKeywords   []string         `yaml:"thermal_keywords" mapstructure:"thermal_keywords"`
	FatalStatuses     []string         `yaml:"fatal_statuses" mapstructure:"fatal_statuses" validate:"dive,oneof=idle printing disabled error disconnected unavailable unknown"`
	Network           []NetworkPrinter `yaml:"network" mapstructure:"network" validate:"dive"`
	ConnectionTimeout time.Duration    `yaml:"connection_timeout" mapstructure:"connection_timeout" validate:"gte=0"`
}

type AuthConfig struct {
	AdminKeyHash string        `yaml:"admin_key_hash"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type EventsConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

type StalenessConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	ModeDirect = "direct"
	ModeQueued = "queued"

	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "./data/printdispatch.db",
		},
		Dispatch: DispatchConfig{
			Mode:      ModeQueued,
			PageWidth: 48,
		},
		Printers: PrintersConfig{
			FatalStatuses:     []string{"disconnected", "unavailable"},
			ConnectionTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 365 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Channel: "print_jobs.events",
		},
		Staleness: StalenessConfig{
			Interval:  time.Minute,
			Threshold: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return defaults()
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with PRINTDISPATCH_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PRINTDISPATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTDISPATCH_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv("PRINTDISPATCH_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("PRINTDISPATCH_DB_DSN"); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv("PRINTDISPATCH_MODE"); v != "" {
		c.Dispatch.Mode = strings.ToLower(v)
	}

	if v := os.Getenv("PRINTDISPATCH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}

	if v := os.Getenv("PRINTDISPATCH_ADMIN_KEY_HASH"); v != "" {
		c.Auth.AdminKeyHash = v
	}

	if v := os.Getenv("PRINTDISPATCH_REDIS_ADDR"); v != "" {
		c.Events.RedisAddr = v
	}

	if v := os.Getenv("PRINTDISPATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.ApplyEnv()
	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for pgx")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (valid: sqlite3, pgx)", c.Database.Driver)
	}

	if c.Dispatch.Mode != ModeDirect && c.Dispatch.Mode != ModeQueued {
		return fmt.Errorf("invalid dispatch mode: %s (valid: direct, queued)", c.Dispatch.Mode)
	}

	if c.Dispatch.PageWidth < 24 {
		return fmt.Errorf("page width must be at least 24 columns, got %d", c.Dispatch.PageWidth)
	}

	for _, p := range c.Printers.Network {
		if p.Name == "" || p.Address == "" {
			return fmt.Errorf("network printers need both name and address")
		}
	}

	if c.Printers.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout must be non-negative")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}

	if c.Staleness.Interval < 0 || c.Staleness.Threshold < 0 {
		return fmt.Errorf("staleness interval and threshold must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
