// Package config loads PulseBridge configuration from the environment.
// A .env file in the working directory is honored when present; explicit
// environment variables take precedence over it.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pulsebridge/internal/logger"
)

// Config holds the full runtime configuration for the hub process.
type Config struct {
	Host  string
	Port  int
	Debug bool

	// Reasoning engine (OpenAI-compatible endpoint).
	APIKey  string
	BaseURL string
	Model   string

	// Durability.
	DataDir      string
	SaveInterval time.Duration

	// History buffer capacities.
	HRCapacity     int
	WindowCapacity int
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EngineConfigured reports whether the reasoning engine credential is set.
func (c *Config) EngineConfigured() bool {
	return c.APIKey != ""
}

// Load reads configuration from a .env file (if present) and the process
// environment. It never fails on a missing .env file.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env file")
	}

	v := viper.New()
	v.SetEnvPrefix("PULSE")
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 5001)
	v.SetDefault("debug", false)
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://api.minimax.chat/v1")
	v.SetDefault("model", "MiniMax-M2.5")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("save_interval", 30)
	v.SetDefault("hr_capacity", 500)
	v.SetDefault("window_capacity", 200)

	cfg := &Config{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		Debug:          v.GetBool("debug"),
		APIKey:         v.GetString("api_key"),
		BaseURL:        v.GetString("base_url"),
		Model:          v.GetString("model"),
		DataDir:        v.GetString("data_dir"),
		SaveInterval:   time.Duration(v.GetInt("save_interval")) * time.Second,
		HRCapacity:     v.GetInt("hr_capacity"),
		WindowCapacity: v.GetInt("window_capacity"),
	}

	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 30 * time.Second
	}
	if cfg.HRCapacity <= 0 {
		cfg.HRCapacity = 500
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = 200
	}

	return cfg
}
