package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	clientcmd "github.com/robindai518/libiec61850/internal/cmd/client"
	serverrun "github.com/robindai518/libiec61850/internal/cmd/server"
	cfgpkg "github.com/robindai518/libiec61850/internal/config"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

func main() {
	// Respect LOGSERVER_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("LOGSERVER_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := clientcmd.NewRoot(apiURL)
	rootCmd.Long = "logserver keeps bounded, durable IEC 61850 event logs fed by a data model. This CLI runs the server and operates on its logs."

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverCmd.AddCommand(newServerStartCommand())
	rootCmd.AddCommand(serverCmd)

	configCmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	configCmd.AddCommand(newConfigPrintCommand())
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("LOGSERVER_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// loadConfig layers the config file, LOGSERVER_* variables and flags, in that order.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.ModelPath = v
	}
	if v, _ := cmd.Flags().GetInt("update-interval-ms"); v > 0 {
		cfg.UpdateInterval = cfgpkg.Duration(time.Duration(v) * time.Millisecond)
	}
	if v, _ := cmd.Flags().GetInt("max-entries"); v > 0 {
		cfg.DefaultMaxEntries = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg, cfg.Validate()
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", os.Getenv("LOGSERVER_CONFIG"), "Config file (.yaml, .yml or .json)")
	cmd.Flags().String("model", "", "Data model file (YAML); default is the built-in GenericIO model")
	cmd.Flags().Int("update-interval-ms", 0, "Sample updater period in ms (default 100)")
	cmd.Flags().Int("max-entries", 0, "Default retention bound for logs without an override")
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "Log format: text|json (default text)")
}

func newServerStartCommand() *cobra.Command {
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the log server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			noSim, _ := cmd.Flags().GetBool("no-simulation")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:           dataDir,
				GRPCAddr:          grpcAddr,
				HTTPAddr:          httpAddr,
				Fsync:             mode,
				FsyncInterval:     time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:            cfg,
				DisableSimulation: noSim,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", os.Getenv("LOGSERVER_DATA_DIR"), "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("grpc", ":50051", "gRPC listen address (empty disables)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address (empty disables)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().Bool("no-simulation", false, "Do not drive the data model with the sample updater")
	addConfigFlags(serverStartCmd)
	return serverStartCmd
}

func newConfigPrintCommand() *cobra.Command {
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	addConfigFlags(printCmd)
	return printCmd
}
