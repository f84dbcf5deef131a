package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent must not be empty")
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be > 0")
	}
	if cfg.HTTP.MaxBodySize <= 0 {
		return fmt.Errorf("http.max_body_size must be > 0")
	}
	if cfg.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("http.max_redirects must be >= 0")
	}
	if cfg.HTTP.RateLimitWait < 0 {
		return fmt.Errorf("http.rate_limit_wait must be >= 0")
	}

	if cfg.Activity.LookbackDays < 1 {
		return fmt.Errorf("activity.lookback_days must be >= 1, got %d", cfg.Activity.LookbackDays)
	}

	if cfg.Dataset.RepoPath == "" {
		return fmt.Errorf("dataset.repo_path must not be empty")
	}
	if cfg.Dataset.IconSize < 1 {
		return fmt.Errorf("dataset.icon_size must be >= 1, got %d", cfg.Dataset.IconSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a wiki page URL.
// A missing scheme is fine, the fetcher normalizes it to https.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
