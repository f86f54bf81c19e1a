package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DefaultMaxEntries bounds every log that has no per-log override and no
	// persisted bound.
	DefaultMaxEntries int `json:"defaultMaxEntries" yaml:"defaultMaxEntries"`
	// ModelPath points at a YAML data model. Empty means the built-in model.
	ModelPath         string       `json:"modelPath" yaml:"modelPath"`
	UpdateInterval    Duration     `json:"updateInterval" yaml:"updateInterval"`
	RetentionInterval Duration     `json:"retentionInterval" yaml:"retentionInterval"`
	Logs              []LogBinding `json:"logs" yaml:"logs"`
	Archive           Archive      `json:"archive" yaml:"archive"`
	Logging           Logging      `json:"logging" yaml:"logging"`
}

// LogBinding binds a log reference to the attributes it records and its
// retention limits.
type LogBinding struct {
	Name string `json:"name" yaml:"name"`
	// MaxEntries overrides DefaultMaxEntries when > 0.
	MaxEntries int `json:"maxEntries" yaml:"maxEntries"`
	// MaxAge trims entries whose event time is older than now-MaxAge. Zero disables.
	MaxAge Duration `json:"maxAge" yaml:"maxAge"`
	// MaxBytes trims the oldest entries once stored bytes exceed it. Zero disables.
	MaxBytes int64 `json:"maxBytes" yaml:"maxBytes"`
	// Record lists attribute reference prefixes whose changes are appended.
	Record []string `json:"record" yaml:"record"`
}

// Archive configures cold-storage export of evicted entries.
type Archive struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Backend   string `json:"backend" yaml:"backend"` // s3 | local
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"accessKey" yaml:"accessKey"`
	SecretKey string `json:"secretKey" yaml:"secretKey"`
	Region    string `json:"region" yaml:"region"`
	UseSSL    bool   `json:"useSSL" yaml:"useSSL"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	// LocalDir defaults to <data dir>/archive.
	LocalDir  string `json:"localDir" yaml:"localDir"`
	QueueSize int    `json:"queueSize" yaml:"queueSize"`
	// Durable routes evicted batches through a persistent outbox with
	// retries instead of the in-memory queue.
	Durable     bool `json:"durable" yaml:"durable"`
	MaxAttempts int  `json:"maxAttempts" yaml:"maxAttempts"`
}

// Logging selects the process log level and format.
type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults. They mirror the reference deployment: a
// single event log on the LLN0 of the GenericIO device keeping 10 entries.
func Default() Config {
	return Config{
		DefaultMaxEntries: 10,
		UpdateInterval:    Duration(100 * time.Millisecond),
		RetentionInterval: Duration(time.Minute),
		Logs: []LogBinding{{
			Name:   "GenericIO/LLN0$EventLog",
			Record: []string{"GenericIO/GGIO1."},
		}},
		Archive: Archive{
			Backend:     "local",
			Prefix:      "eventlog",
			QueueSize:   64,
			Durable:     true,
			MaxAttempts: 5,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and binding uniqueness.
func (c Config) Validate() error {
	if c.DefaultMaxEntries < 1 {
		return fmt.Errorf("defaultMaxEntries must be >= 1, got %d", c.DefaultMaxEntries)
	}
	if c.UpdateInterval < 0 || c.RetentionInterval < 0 {
		return errors.New("intervals must not be negative")
	}
	seen := make(map[string]bool, len(c.Logs))
	for _, l := range c.Logs {
		if l.Name == "" {
			return errors.New("log binding without name")
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate log binding %q", l.Name)
		}
		seen[l.Name] = true
		if l.MaxEntries < 0 || l.MaxBytes < 0 || l.MaxAge < 0 {
			return fmt.Errorf("log %q: limits must not be negative", l.Name)
		}
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "s3":
			if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
				return errors.New("archive: s3 backend needs endpoint and bucket")
			}
		case "local", "":
		default:
			return fmt.Errorf("archive: unknown backend %q", c.Archive.Backend)
		}
	}
	return nil
}

// Binding returns the binding for a log name.
func (c Config) Binding(name string) (LogBinding, bool) {
	for _, l := range c.Logs {
		if l.Name == name {
			return l, true
		}
	}
	return LogBinding{}, false
}

// MaxEntriesFor returns the configured bound for a log.
func (c Config) MaxEntriesFor(name string) int {
	if b, ok := c.Binding(name); ok && b.MaxEntries > 0 {
		return b.MaxEntries
	}
	return c.DefaultMaxEntries
}

// Duration is a time.Duration that reads from "1m30s" style strings or from
// integer milliseconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch x := v.(type) {
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = Duration(p)
	case float64:
		*d = Duration(time.Duration(x) * time.Millisecond)
	case int:
		*d = Duration(time.Duration(x) * time.Millisecond)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
