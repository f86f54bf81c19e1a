// Package outbox implements a durable single-consumer queue with lease-based
// delivery on the shared Pebble database. The archive relay uses it so that
// evicted log entries reach object storage even across outages and restarts.
//
// # Message lifecycle
//
//  1. Enqueue: record written, indexed as ready now
//  2. Dequeue: ready index entry replaced by a lease expiring after the lease duration
//  3. Complete: record and lease deleted
//  4. Fail: lease deleted; ready again after a delay, or moved to the
//     dead-letter list once MaxAttempts failures have accumulated
//  5. Expiry: ReclaimExpired turns expired leases back into ready entries
//
// Delivery is at-least-once: a message whose lease expires mid-delivery can be
// delivered again.
package outbox
