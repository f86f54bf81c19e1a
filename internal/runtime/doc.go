// Package runtime wires storage, config and logging into a single log server
// instance. It exposes Open/Close, a health check, and OpenLog, which hands
// out one eventlog.Store per log reference.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	defer rt.Close()
//	log, _ := rt.OpenLog("GenericIO/LLN0$EventLog")
//	_, _ = log.Append(ctx, "GenericIO/GGIO1.SPCSO1.stVal", eventlog.NewTimestamp(time.Now(), 0), payload)
package runtime
