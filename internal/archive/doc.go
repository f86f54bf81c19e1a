// Package archive exports entries evicted from event logs to object storage
// (MinIO/S3 through minio-go, or a local directory), one JSONL object per
// evicted range.
package archive
