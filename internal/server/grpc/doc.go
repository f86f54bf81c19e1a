// Package grpcserver hosts the gRPC surface of the log server: the standard
// grpc.health.v1 service driven by the runtime health check, server
// reflection, and a read-only LogService carried in protobuf Struct messages.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
