// Package scheduler provides at-least-once, idempotent, bounded-retry
// delivery of deferred CRM sync jobs, and stalled-event recovery.
//
// The enqueue/tick/recovery skeleton is grounded in the teacher's
// internal/worker/queue_recovery.go (ticker + context-cancellable Start
// loop) and internal/worker/rss_poller.go (buffered-channel semaphore for
// bounded per-batch concurrency).
package scheduler
