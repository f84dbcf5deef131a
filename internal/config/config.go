package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the dataset tools.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"     yaml:"http"`
	Activity ActivityConfig `mapstructure:"activity" yaml:"activity"`
	Dataset  DatasetConfig  `mapstructure:"dataset"  yaml:"dataset"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// HTTPConfig controls the wiki fetcher.
type HTTPConfig struct {
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	RateLimitWait   time.Duration `mapstructure:"rate_limit_wait"   yaml:"rate_limit_wait"`
}

// ActivityConfig controls the recent-changes lookback window.
type ActivityConfig struct {
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`
}

// DatasetConfig locates the extension repository checkout the tools write into.
type DatasetConfig struct {
	RepoPath   string `mapstructure:"repo_path"   yaml:"repo_path"`
	DataDir    string `mapstructure:"data_dir"    yaml:"data_dir"`
	FaviconDir string `mapstructure:"favicon_dir" yaml:"favicon_dir"`
	IconSize   int    `mapstructure:"icon_size"   yaml:"icon_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:  30 * time.Second,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			MaxRedirects:    10,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
			RateLimitWait:   30 * time.Second,
		},
		Activity: ActivityConfig{
			LookbackDays: 30,
		},
		Dataset: DatasetConfig{
			RepoPath:   ".",
			DataDir:    "data",
			FaviconDir: "favicons",
			IconSize:   16,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LookbackWindow returns the activity window as a duration.
func (c *Config) LookbackWindow() time.Duration {
	return time.Duration(c.Activity.LookbackDays) * 24 * time.Hour
}
