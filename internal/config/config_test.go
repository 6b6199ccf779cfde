package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "DATA_DIR", "LOG_FILE", "ANONYMIZE_IP", "DATA_RETENTION_DAYS",
		"MAX_LOG_LINES", "RATE_LIMIT_MAX_REQUESTS", "RATE_LIMIT_WINDOW", "CORS_ORIGINS",
		"ARCHIVE_BUCKET", "DLQ_DIR",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.HTTPAddr != ":5000" {
		t.Fatalf("expected default addr :5000, got %q", cfg.HTTPAddr)
	}
	if !cfg.AnonymizeIP {
		t.Fatalf("expected ip anonymization on by default")
	}
	if cfg.RetentionDays != 90 {
		t.Fatalf("expected 90 retention days, got %d", cfg.RetentionDays)
	}
	if cfg.LogFile != "data/http_access.log" {
		t.Fatalf("unexpected log file %q", cfg.LogFile)
	}
	if cfg.MaxLogLines != 10000 {
		t.Fatalf("unexpected max log lines %d", cfg.MaxLogLines)
	}
	if cfg.RateLimitMax != 100 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit policy %d/%s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if cfg.ArchiveEnabled() {
		t.Fatalf("archive should be disabled without a bucket")
	}
	if cfg.InstanceID == "" {
		t.Fatalf("expected an instance id")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/tracker")
	t.Setenv("LOG_FILE", "")
	t.Setenv("ANONYMIZE_IP", "false")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("ARCHIVE_BUCKET", "bucket")

	cfg := Load()

	if cfg.AnonymizeIP {
		t.Fatalf("expected anonymization disabled")
	}
	if cfg.LogFile != "/var/lib/tracker/http_access.log" {
		t.Fatalf("log file should follow DATA_DIR, got %q", cfg.LogFile)
	}
	if cfg.DLQDir != "/var/lib/tracker/dlq" {
		t.Fatalf("dlq dir should follow DATA_DIR, got %q", cfg.DLQDir)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("expected 30s window, got %s", cfg.RateLimitWindow)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if !cfg.ArchiveEnabled() {
		t.Fatalf("archive should be enabled with a bucket")
	}
}
