package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all temporal-mcp configuration.
// Priority: CLI flags > env vars > settings.json > defaults.
type Config struct {
	Endpoint         string `json:"endpoint"`
	OverrideEndpoint string `json:"override_endpoint"`
	APIKey           string `json:"api_key"`
	Transport        string `json:"transport"`
	ListenAddr       string `json:"listen_addr"`
	LogLevel         string `json:"log_level"`
	// CachePath enables the closed-history cache when non-empty.
	CachePath      string `json:"cache_path"`
	CacheTTL       string `json:"cache_ttl"`
	PruneSchedule  string `json:"prune_schedule"`
	RequestTimeout string `json:"request_timeout"`
	MaxRetries     int    `json:"max_retries"`
}

func defaultConfig() Config {
	return Config{
		Transport:      "stdio",
		ListenAddr:     ":4200",
		LogLevel:       "info",
		CacheTTL:       "24h",
		PruneSchedule:  "@hourly",
		RequestTimeout: "30s",
		MaxRetries:     3,
	}
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".temporal-mcp"
	}
	return filepath.Join(home, ".temporal-mcp")
}

func settingsPath() string {
	return filepath.Join(configDir(), "settings.json")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	strEnv := map[string]*string{
		"TEMPORAL_ENDPOINT":            &cfg.Endpoint,
		"TEMPORAL_OVERRIDE_ENDPOINT":   &cfg.OverrideEndpoint,
		"TEMPORAL_API_KEY":             &cfg.APIKey,
		"TEMPORAL_MCP_TRANSPORT":       &cfg.Transport,
		"TEMPORAL_MCP_LISTEN_ADDR":     &cfg.ListenAddr,
		"TEMPORAL_MCP_LOG_LEVEL":       &cfg.LogLevel,
		"TEMPORAL_MCP_CACHE_PATH":      &cfg.CachePath,
		"TEMPORAL_MCP_CACHE_TTL":       &cfg.CacheTTL,
		"TEMPORAL_MCP_PRUNE_SCHEDULE":  &cfg.PruneSchedule,
		"TEMPORAL_MCP_REQUEST_TIMEOUT": &cfg.RequestTimeout,
	}
	for key, dst := range strEnv {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("TEMPORAL_MCP_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TEMPORAL_MCP_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}

	return cfg, nil
}

// validate checks the settings that can be checked without contacting
// Temporal. The endpoint itself is checked when the client is built.
func (c Config) validate() error {
	if c.Transport != "stdio" && c.Transport != "http" {
		return fmt.Errorf("transport must be stdio or http, got %q", c.Transport)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := c.cacheTTL(); err != nil {
		return err
	}
	if _, err := c.requestTimeout(); err != nil {
		return err
	}
	return nil
}

func (c Config) cacheTTL() (time.Duration, error) {
	return parseDuration("cache_ttl", c.CacheTTL)
}

func (c Config) requestTimeout() (time.Duration, error) {
	return parseDuration("request_timeout", c.RequestTimeout)
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, s)
	}
	return d, nil
}
