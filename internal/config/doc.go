// Package config provides loading and environment overlay for the log server
// configuration. It exposes a Default() baseline, JSON and YAML file loading,
// and LOGSERVER_* environment overrides.
//
// Example:
//
//	cfg, err := config.Load("/etc/logserver.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: config.DefaultDataDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
package config
