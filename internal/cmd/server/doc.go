// Package serverrun exposes the Run entrypoint used by the CLI to start the
// log server: storage runtime, data model with its bound logs, sample updater,
// retention sweeper and the gRPC and HTTP servers, with ordered shutdown.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":50051", HTTPAddr: ":8080", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
