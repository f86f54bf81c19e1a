// Package eventlog implements the durable, bounded event/report log that an
// IEC 61850 server binds to each log reference.
//
// # Overview
//
// Every log is a contiguous, append-ordered run of entries persisted in Pebble
// under its own key range:
//   - log/{len_be2}{name}/m           (high-water mark: lastSeq)
//   - log/{len_be2}{name}/b           (retention bound: maxEntries)
//   - log/{len_be2}{name}/e/{seq_be8} (entries)
//
// Records are stored as: varint headerLen | header | payload | crc32c(header|payload),
// where the header carries the entry id and the event timestamp.
//
// API surface (internal)
//
//	l, _ := eventlog.Open(db, "GenericIO/LLN0$EventLog", eventlog.Options{})
//	_ = l.SetMaxEntries(ctx, 10)
//	seq, _ := l.Append(ctx, "GenericIO/GGIO1.SPCSO1.stVal", eventlog.NewTimestamp(time.Now(), 0), payload)
//
//	// Lazy replay of [from, to]; to == 0 means newest at call time
//	c, _ := l.Query(seq, 0)
//	for c.Next() {
//	    _ = c.Entry()
//	}
//	_ = c.Err()
//
//	_ = l.Purge(ctx) // sequence numbers keep increasing afterwards
//	_ = l.Close()    // idempotent
//
// # Retention
//
// The bound is enforced FIFO by sequence after each append has committed, so
// the newest entry is never lost to make room for itself. TrimOlderThan and
// TrimToMaxBytes provide optional age and size retention. Entries removed by
// retention are reported through the Archiver hook.
//
// # Concurrency
//
// Mutations (append, bound changes, purge, trims, close) are serialized by a
// per-store write lock; cursors read page by page under the read lock. The
// backing database must be owned by a single process.
package eventlog
