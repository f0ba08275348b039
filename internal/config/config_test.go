package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Fetch.Timeout != "5m" {
		t.Fatalf("Fetch.Timeout = %q, want %q", cfg.Fetch.Timeout, "5m")
	}
	if !cfg.Fetch.VerifyPackSHA1 {
		t.Fatal("Fetch.VerifyPackSHA1 = false, want true")
	}
	if cfg.Creds.CachePath != "minigit-credentials" {
		t.Fatalf("Creds.CachePath = %q, want %q", cfg.Creds.CachePath, "minigit-credentials")
	}
	if err := cfg.ValidateFetch(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("MINIGIT_FETCH_TIMEOUT", "30s")
	t.Setenv("MINIGIT_VERIFY_PACK_SHA1", "false")
	t.Setenv("MINIGIT_OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("MINIGIT_OTEL_SERVICE_NAME", "minigit-test")
	t.Setenv("MINIGIT_METRICS_ADDR", ":9091")
	t.Setenv("MINIGIT_CREDENTIAL_CACHE_TTL", "24h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Fetch.Timeout != "30s" {
		t.Fatalf("Fetch.Timeout = %q, want 30s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.VerifyPackSHA1 {
		t.Fatal("Fetch.VerifyPackSHA1 = true, want false")
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Fatalf("Telemetry.OTLPEndpoint = %q", cfg.Telemetry.OTLPEndpoint)
	}
	if cfg.Telemetry.ServiceName != "minigit-test" {
		t.Fatalf("Telemetry.ServiceName = %q, want minigit-test", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.MetricsAddr != ":9091" {
		t.Fatalf("Telemetry.MetricsAddr = %q, want :9091", cfg.Telemetry.MetricsAddr)
	}
	if cfg.CredCacheTTL().Hours() != 24 {
		t.Fatalf("CredCacheTTL = %v, want 24h", cfg.CredCacheTTL())
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minigit.yaml")
	body := []byte(`
remotes:
  origin:
    url: https://example.com/repo.git
    username: alice
fetch:
  timeout: 90s
  verify_pack_sha1: false
telemetry:
  otlp_endpoint: http://collector:4318
  service_name: minigit-yaml
credentials:
  cache_path: custom-creds
  cache_ttl: 48h
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(path): %v", err)
	}

	remote, ok := cfg.Remotes["origin"]
	if !ok {
		t.Fatal("expected origin remote to be present")
	}
	if remote.URL != "https://example.com/repo.git" || remote.Username != "alice" {
		t.Fatalf("origin remote = %+v", remote)
	}
	if cfg.Fetch.Timeout != "90s" {
		t.Fatalf("Fetch.Timeout = %q, want 90s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.VerifyPackSHA1 {
		t.Fatal("Fetch.VerifyPackSHA1 = true, want false")
	}
	if cfg.Telemetry.ServiceName != "minigit-yaml" {
		t.Fatalf("Telemetry.ServiceName = %q, want minigit-yaml", cfg.Telemetry.ServiceName)
	}
	if cfg.Creds.CachePath != "custom-creds" {
		t.Fatalf("Creds.CachePath = %q, want custom-creds", cfg.Creds.CachePath)
	}
	if cfg.CredCacheTTL().Hours() != 48 {
		t.Fatalf("CredCacheTTL = %v, want 48h", cfg.CredCacheTTL())
	}
}

func TestValidateFetchRejectsBadTimeout(t *testing.T) {
	cfg := Default()
	cfg.Fetch.Timeout = "not-a-duration"
	if err := cfg.ValidateFetch(); err == nil {
		t.Fatal("expected error for invalid fetch timeout")
	}
}
