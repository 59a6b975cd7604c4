package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrWorkerConfigCreated is returned when LoadWorker wrote a placeholder file
// that the operator has to edit before the worker can start.
var ErrWorkerConfigCreated = errors.New("worker config file created with placeholder values")

const placeholderToken = "PASTE_WORKER_TOKEN_HERE"

// WorkerConfig is the restaurant-local worker's JSON configuration.
type WorkerConfig struct {
	ServerURL           string `mapstructure:"server_url" validate:"required,url"`
	APIToken            string `mapstructure:"api_token" validate:"required"`
	RestaurantID        int64  `mapstructure:"restaurant_id" validate:"gt=0"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" validate:"gte=1,lte=3600"`
	PrinterName         string `mapstructure:"printer_name"`
	AutoDetectPrinter   bool   `mapstructure:"auto_detect_printer"`
	MaxRetries          int    `mapstructure:"max_retries" validate:"gte=0,lte=100"`
	ClientID            string `mapstructure:"client_id"`
	LogLevel            string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Printers tunes printer selection on this host. Empty lists fall back to
	// the built-in keyword and fatal status sets.
	Printers PrintersConfig `mapstructure:"printers"`
}

func setWorkerDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("api_token", placeholderToken)
	v.SetDefault("restaurant_id", 0)
	v.SetDefault("poll_interval_seconds", 5)
	v.SetDefault("printer_name", "")
	v.SetDefault("auto_detect_printer", true)
	v.SetDefault("max_retries", 3)
	v.SetDefault("client_id", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("printers.thermal_keywords", []string{})
	v.SetDefault("printers.fatal_statuses", []string{"disconnected", "unavailable"})
	v.SetDefault("printers.network", []map[string]any{})
	v.SetDefault("printers.connection_timeout", "5s")
}

// LoadWorker reads the worker config at path. A missing file is created with
// placeholder values and ErrWorkerConfigCreated is returned.
func LoadWorker(path string) (*WorkerConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("PRINTWORKER")
	v.AutomaticEnv()
	setWorkerDefaults(v)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create config directory: %w", err)
			}
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("failed to write default worker config: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorkerConfigCreated, path)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read worker config: %w", err)
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse worker config: %w", err)
	}

	return &cfg, nil
}

func (c *WorkerConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid worker config: %w", err)
	}
	if c.APIToken == placeholderToken {
		return fmt.Errorf("invalid worker config: api_token still holds the placeholder value")
	}
	return nil
}

func (c *WorkerConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
