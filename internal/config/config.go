// Package config loads and validates the daemon configuration with the
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/N1c093/diverad/internal/divera"
)

// Defaults.
const (
	DefaultScanInterval = 60 * time.Second
	MinScanInterval     = 10 * time.Second
	DefaultListenAddr   = ":8080"
	DefaultDataDir      = "data"
)

// AppConfig is the complete runtime configuration of the daemon.
type AppConfig struct {
	// Upstream
	AccessKey    string        // Divera access key (required)
	BaseURL      string        // Divera instance, default https://app.divera247.com
	UCRIDs       []int         // unit selection; empty = discover the active UCR
	ScanInterval time.Duration // poll interval, floor MinScanInterval

	// HTTP surface
	ListenAddr  string // API listen address
	MetricsAddr string // separate metrics listener; empty = serve on ListenAddr
	APIToken    string // bearer token for mutating routes; empty disables auth

	// Storage
	DataDir    string // monitor export + default sqlite location
	SQLitePath string // archive database, default <DataDir>/diverad.db

	// Cache
	RedisAddr     string // optional; empty = in-memory cache
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel   string
	LogService string

	// Rate limiting
	RateLimitRPM int // per-IP requests per minute, 0 = default
}

// WithDefaults returns cfg with all empty fields replaced by defaults.
func (c AppConfig) WithDefaults() AppConfig {
	if c.BaseURL == "" {
		c.BaseURL = divera.DefaultBaseURL
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "diverad.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogService == "" {
		c.LogService = "diverad"
	}
	if c.RateLimitRPM == 0 {
		c.RateLimitRPM = 120
	}
	return c
}

// Validate checks the configuration for fatal problems.
func Validate(c AppConfig) error {
	if c.AccessKey == "" {
		return fmt.Errorf("config: access key is empty (set DIVERA_ACCESSKEY)")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("config: invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: unsupported base URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: base URL %q is missing host", c.BaseURL)
	}

	if c.ScanInterval < MinScanInterval {
		return fmt.Errorf("config: scan interval %s below floor %s", c.ScanInterval, MinScanInterval)
	}

	for _, id := range c.UCRIDs {
		if id <= 0 {
			return fmt.Errorf("config: invalid ucr id %d", id)
		}
	}
	return nil
}
