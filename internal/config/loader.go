package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("IWB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("iwb")
		v.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "iwb"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("http.user_agent", cfg.HTTP.UserAgent)
	v.SetDefault("http.request_timeout", cfg.HTTP.RequestTimeout)
	v.SetDefault("http.max_body_size", cfg.HTTP.MaxBodySize)
	v.SetDefault("http.max_redirects", cfg.HTTP.MaxRedirects)
	v.SetDefault("http.idle_conn_timeout", cfg.HTTP.IdleConnTimeout)
	v.SetDefault("http.max_idle_conns", cfg.HTTP.MaxIdleConns)
	v.SetDefault("http.rate_limit_wait", cfg.HTTP.RateLimitWait)

	v.SetDefault("activity.lookback_days", cfg.Activity.LookbackDays)

	v.SetDefault("dataset.repo_path", cfg.Dataset.RepoPath)
	v.SetDefault("dataset.data_dir", cfg.Dataset.DataDir)
	v.SetDefault("dataset.favicon_dir", cfg.Dataset.FaviconDir)
	v.SetDefault("dataset.icon_size", cfg.Dataset.IconSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
}
