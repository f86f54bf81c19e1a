package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DefaultMaxEntries != 10 {
		t.Fatalf("default max entries = %d", cfg.DefaultMaxEntries)
	}
	if cfg.UpdateInterval.D() != 100*time.Millisecond {
		t.Fatalf("update interval = %v", cfg.UpdateInterval.D())
	}
	if _, ok := cfg.Binding("GenericIO/LLN0$EventLog"); !ok {
		t.Fatalf("default event log binding missing")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logserver.json")
	data := []byte(`{"defaultMaxEntries":50,"updateInterval":250,"logs":[{"name":"IED1/LLN0$Log","maxEntries":5,"maxAge":"1h","record":["IED1/MMXU1."]}]}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultMaxEntries != 50 {
		t.Fatalf("expected 50, got %d", cfg.DefaultMaxEntries)
	}
	if cfg.UpdateInterval.D() != 250*time.Millisecond {
		t.Fatalf("numeric interval read as %v", cfg.UpdateInterval.D())
	}
	b, ok := cfg.Binding("IED1/LLN0$Log")
	if !ok || b.MaxAge.D() != time.Hour || len(b.Record) != 1 {
		t.Fatalf("unexpected binding: %+v", b)
	}
	if cfg.MaxEntriesFor("IED1/LLN0$Log") != 5 || cfg.MaxEntriesFor("other") != 50 {
		t.Fatalf("MaxEntriesFor mismatch")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logserver.yaml")
	data := []byte(`
defaultMaxEntries: 20
retentionInterval: 30s
logs:
  - name: GenericIO/LLN0$EventLog
    maxBytes: 4096
    record: ["GenericIO/GGIO1."]
archive:
  enabled: true
  backend: s3
  endpoint: localhost:9000
  bucket: iec-logs
`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultMaxEntries != 20 || cfg.RetentionInterval.D() != 30*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if b, _ := cfg.Binding("GenericIO/LLN0$EventLog"); b.MaxBytes != 4096 {
		t.Fatalf("maxBytes not read: %+v", b)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Bucket != "iec-logs" || cfg.Archive.Prefix != "eventlog" {
		t.Fatalf("archive settings: %+v", cfg.Archive)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero bound", func(c *Config) { c.DefaultMaxEntries = 0 }},
		{"unnamed log", func(c *Config) { c.Logs = append(c.Logs, LogBinding{}) }},
		{"duplicate log", func(c *Config) { c.Logs = append(c.Logs, c.Logs[0]) }},
		{"negative limit", func(c *Config) { c.Logs[0].MaxEntries = -1 }},
		{"s3 without bucket", func(c *Config) { c.Archive.Enabled = true; c.Archive.Backend = "s3" }},
		{"unknown backend", func(c *Config) { c.Archive.Enabled = true; c.Archive.Backend = "ftp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(file, []byte("defaultMaxEntries: 0\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected error for zero bound")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("LOGSERVER_DEFAULT_MAX_ENTRIES", "25")
	t.Setenv("LOGSERVER_UPDATE_INTERVAL", "1s")
	t.Setenv("LOGSERVER_ARCHIVE_ENABLED", "true")
	t.Setenv("LOGSERVER_ARCHIVE_BUCKET", "cold")
	t.Setenv("LOGSERVER_LOG_LEVEL", "debug")
	FromEnv(&cfg)
	if cfg.DefaultMaxEntries != 25 {
		t.Fatalf("env override bound")
	}
	if cfg.UpdateInterval.D() != time.Second {
		t.Fatalf("env override interval")
	}
	if !cfg.Archive.Enabled || cfg.Archive.Bucket != "cold" {
		t.Fatalf("env override archive")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("env override log level")
	}
}

func TestDefaultYAMLReloads(t *testing.T) {
	b, err := yaml.Marshal(Default())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), "updateInterval: 100ms") {
		t.Fatalf("durations should marshal as strings:\n%s", b)
	}
	file := filepath.Join(t.TempDir(), "logserver.yaml")
	if err := os.WriteFile(file, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UpdateInterval.D() != 100*time.Millisecond || cfg.Logs[0].Name != "GenericIO/LLN0$EventLog" {
		t.Fatalf("reloaded config: %+v", cfg)
	}
}
