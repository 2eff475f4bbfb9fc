package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/0022papa/kiwoom-bot/internal/models"
)

// LoadConfig reads the JSON config file at path and applies environment
// overrides and defaults. A missing file is not an error: the defaults plus
// whatever the environment provides are enough to run.
func LoadConfig(path string) (*models.Config, error) {
	cfg := &models.Config{}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// Fall through to env and defaults.
	default:
		return nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnv lets the environment override the file. The password in
// particular is expected to come from .env rather than a checked-in file.
func applyEnv(cfg *models.Config) {
	cfg.Addr = envOrDefault("CONTROL_ADDR", cfg.Addr)
	cfg.Password = envOrDefault("DASHBOARD_PASSWORD", cfg.Password)
	cfg.Store.Backend = envOrDefault("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.CleanupDays = intFromEnv("CLEANUP_DAYS", cfg.CleanupDays)
}

func applyDefaults(cfg *models.Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

func envOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
