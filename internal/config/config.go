// Package config loads minigit's YAML configuration: remote aliases,
// fetch defaults, and the telemetry/credential settings the fetch driver
// reads at startup. Values layer the same way gothub's did: defaults,
// then an optional file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Remotes   map[string]RemoteConfig `yaml:"remotes"`
	Fetch     FetchConfig             `yaml:"fetch"`
	Telemetry TelemetryConfig         `yaml:"telemetry"`
	Creds     CredConfig              `yaml:"credentials"`
}

// RemoteConfig is one named alias for a remote URL, so "minigit clone origin"
// can resolve without retyping a full URL.
type RemoteConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
}

type FetchConfig struct {
	Timeout         string `yaml:"timeout"` // e.g. "5m"
	VerifyPackSHA1  bool   `yaml:"verify_pack_sha1"`
	DefaultRefspec  string `yaml:"default_refspec"` // e.g. "HEAD"
}

type TelemetryConfig struct {
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	OTLPInsecure    bool   `yaml:"otlp_insecure"`
	ServiceName     string `yaml:"service_name"`
	MetricsAddr     string `yaml:"metrics_addr"` // serve-metrics listen address; empty means ":9090"
	ProvenanceDBDSN string `yaml:"provenance_db_dsn"`
}

type CredConfig struct {
	CachePath     string `yaml:"cache_path"` // relative to the repo's .git dir; empty disables the cache
	CacheTTL      string `yaml:"cache_ttl"`  // e.g. "720h"
}

func (c *Config) FetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func (c *Config) CredCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Creds.CacheTTL)
	if err != nil {
		return 720 * time.Hour
	}
	return d
}

// ValidateFetch mirrors gothub's ValidateServe: catch configuration that
// would fail mid-fetch rather than up front.
func (c *Config) ValidateFetch() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if _, err := time.ParseDuration(c.Fetch.Timeout); err != nil {
		return fmt.Errorf("fetch.timeout %q is not a valid duration", c.Fetch.Timeout)
	}
	return nil
}

func Default() *Config {
	return &Config{
		Remotes: map[string]RemoteConfig{},
		Fetch: FetchConfig{
			Timeout:        "5m",
			VerifyPackSHA1: true,
			DefaultRefspec: "HEAD",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "minigit",
		},
		Creds: CredConfig{
			CachePath: "minigit-credentials",
			CacheTTL:  "720h",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MINIGIT_FETCH_TIMEOUT"); v != "" {
		cfg.Fetch.Timeout = v
	}
	if v := os.Getenv("MINIGIT_VERIFY_PACK_SHA1"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Fetch.VerifyPackSHA1 = b
		}
	}
	if v := os.Getenv("MINIGIT_OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("MINIGIT_OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.OTLPInsecure = b
		}
	}
	if v := os.Getenv("MINIGIT_OTEL_SERVICE_NAME"); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	if v := os.Getenv("MINIGIT_METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv("MINIGIT_PROVENANCE_DB"); v != "" {
		cfg.Telemetry.ProvenanceDBDSN = v
	}
	if v := os.Getenv("MINIGIT_CREDENTIAL_CACHE_PATH"); v != "" {
		cfg.Creds.CachePath = v
	}
	if v := os.Getenv("MINIGIT_CREDENTIAL_CACHE_TTL"); v != "" {
		cfg.Creds.CacheTTL = v
	}
}
