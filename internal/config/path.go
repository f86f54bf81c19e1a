package config

import (
	"os"
	"path/filepath"
)

const appDir = "logserver"

// DefaultDataDir returns the data directory used when none is configured:
// $LOGSERVER_DATA_DIR, then $XDG_DATA_HOME/logserver, then /var/lib/logserver
// for root, then the platform's per-user application directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return hostDirs{
		getenv: os.Getenv,
		home:   home,
		isDir:  isDir,
		root:   os.Geteuid() == 0,
	}.dataDir()
}

// StoreDir is the Pebble directory inside a data directory.
func StoreDir(dataDir string) string { return filepath.Join(dataDir, "store") }

// ArchiveDir is the local archive directory inside a data directory.
func ArchiveDir(dataDir string) string { return filepath.Join(dataDir, "archive") }

// hostDirs is the part of the host DefaultDataDir looks at.
type hostDirs struct {
	getenv func(string) string
	home   string
	isDir  func(string) bool
	root   bool
}

func (h hostDirs) dataDir() string {
	if d := h.getenv("LOGSERVER_DATA_DIR"); d != "" {
		return d
	}
	if xdg := h.getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	if h.root && h.isDir("/var/lib") {
		return filepath.Join("/var/lib", appDir)
	}
	if h.home == "" {
		return "./data"
	}
	switch {
	case h.isDir(filepath.Join(h.home, "Library")):
		return filepath.Join(h.home, "Library", "Application Support", "LogServer")
	case h.isDir(filepath.Join(h.home, "AppData")):
		return filepath.Join(h.home, "AppData", "Local", "LogServer")
	default:
		return filepath.Join(h.home, "."+appDir)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
