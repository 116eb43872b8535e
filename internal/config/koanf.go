// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/casesync/config.yaml",
	"/etc/casesync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		CRM: CRMConfig{
			RequestTimeout: 30 * time.Second,
			RateLimit:      10,
			RateBurst:      5,
		},
		Sync: SyncConfig{
			PassTimeout:      15 * time.Minute,
			ScheduleInterval: 15 * time.Minute,
			ClaimLease:       10 * time.Minute,
			LookupMatch:      LookupMatchPrefix,
			LookupCache:      LookupCacheMemory,
			LookupCacheTTL:   time.Hour,
			LookupCachePath:  "/data/lookups",
			NoteAuthor:       "casesync",
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			DSN:          "file:/data/casesync.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			MaxOpenConns: 0,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    20 * time.Minute, // manual full syncs run inside the request
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   30,
			RateLimitWindow: time.Minute,
		},
		Events: EventsConfig{
			Backend:       EventsNone,
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "casesync",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CREATIO_BASE_URL -> crm.base_url, SYNC_PASS_TIMEOUT -> sync.pass_timeout
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"creatio_base_url":      "crm.base_url",
	"creatio_identity_url":  "crm.identity_url",
	"creatio_client_id":     "crm.client_id",
	"creatio_client_secret": "crm.client_secret",
	"creatio_csrf_token":    "crm.csrf_token",
	"crm_request_timeout":   "crm.request_timeout",
	"crm_rate_limit":        "crm.rate_limit",
	"crm_rate_burst":        "crm.rate_burst",

	"sync_pass_timeout":       "sync.pass_timeout",
	"sync_schedule_interval":  "sync.schedule_interval",
	"sync_claim_lease":        "sync.claim_lease",
	"sync_lookup_match":       "sync.lookup_match",
	"sync_lookup_cache":       "sync.lookup_cache",
	"sync_lookup_cache_ttl":   "sync.lookup_cache_ttl",
	"sync_lookup_cache_path":  "sync.lookup_cache_path",
	"sync_note_author":        "sync.note_author",
	"database_driver":         "database.driver",
	"database_dsn":            "database.dsn",
	"database_max_open_conns": "database.max_open_conns",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"encryption_key":        "security.encryption_key",
	"jwt_secret":            "security.jwt_secret",
	"cors_origins":          "security.cors_origins",
	"rate_limit_requests":   "security.rate_limit_requests",
	"rate_limit_window":     "security.rate_limit_window",
	"disable_rate_limit":    "security.rate_limit_disabled",
	"events_backend":        "events.backend",
	"nats_url":              "events.nats_url",
	"events_subject_prefix": "events.subject_prefix",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
	"log_caller":            "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unknown variables are dropped so that the process environment cannot
// inject arbitrary keys.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// normalize trims values that are compared or concatenated later.
func (c *Config) normalize() {
	c.CRM.BaseURL = strings.TrimRight(strings.TrimSpace(c.CRM.BaseURL), "/")
	c.CRM.IdentityURL = strings.TrimRight(strings.TrimSpace(c.CRM.IdentityURL), "/")
	c.Sync.LookupMatch = strings.ToLower(c.Sync.LookupMatch)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}
