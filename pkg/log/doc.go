// Package log provides the log server's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a bridge handler that feeds a formatter/outputs
// pipeline, so every component shares one output format.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("eventlog"), log.Str("log", "GenericIO/LLN0$EventLog"))
//	l.Info("store opened", log.Uint64("last_seq", 42))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and multiple outputs (console, file, null). Redaction and
// sampling are applied in the slog handler.
//
// # Interop
//
// Pebble and other libraries log through the standard library; RedirectStdLog
// sends those lines through the facade.
package log
