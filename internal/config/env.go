package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays LOGSERVER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LOGSERVER_DEFAULT_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultMaxEntries = n
		}
	}
	if v := os.Getenv("LOGSERVER_MODEL"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("LOGSERVER_UPDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.UpdateInterval = Duration(d)
		}
	}
	if v := os.Getenv("LOGSERVER_RETENTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetentionInterval = Duration(d)
		}
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.Enabled = b
		}
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_BACKEND"); v != "" {
		cfg.Archive.Backend = v
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.UseSSL = b
		}
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_DURABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.Durable = b
		}
	}
	if v := os.Getenv("LOGSERVER_ARCHIVE_LOCAL_DIR"); v != "" {
		cfg.Archive.LocalDir = v
	}
	if v := os.Getenv("LOGSERVER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOGSERVER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
