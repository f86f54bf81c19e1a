// Package client provides the `logserver` command-line client.
//
// The CLI talks to the log server HTTP API for log operations and to the
// gRPC health service for liveness checks.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:8080. The gRPC address is read from the
// LOGSERVER_GRPC environment variable (default 127.0.0.1:50051).
//
// Usage
//
//	logserver log list
//	logserver log stats --name 'GenericIO/LLN0$EventLog'
//	logserver log query --name 'GenericIO/LLN0$EventLog' --from 1 --limit 20
//	logserver log query --name 'GenericIO/LLN0$EventLog' --filter 'change.ref.endsWith("stVal")'
//	logserver log append --name 'GenericIO/LLN0$EventLog' --entry-id op-1 --data 'manual note'
//	logserver log max-entries --name 'GenericIO/LLN0$EventLog' --value 100
//	logserver log purge --name 'GenericIO/LLN0$EventLog' --confirm
//	logserver health
//
// Notes
//
//   - query decodes data-model payloads into their change (reference, type
//     and value); --raw prints entries as the server returns them.
//   - purge removes entries but never resets the sequence counter.
package client
