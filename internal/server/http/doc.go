// Package httpserver provides the REST and streaming gateway of the log
// server: log stats, range queries with CEL filters and long-polling, manual
// append, purge, bound changes, and live tails over WebSocket or SSE.
//
// Log references go in a single path segment with '/' escaped:
//
//	GET /v1/logs/GenericIO%2FLLN0$EventLog/entries?from=1&limit=50
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
