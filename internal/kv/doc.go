// Package kv provides the deferred-job key-value store: a DynamoDB-backed
// Store used for scheduling delayed CRM syncs and recording idempotency
// markers, plus an in-memory Store for tests.
//
// Every item carries a group prefix (e.g. "pipedrive_sync" or
// "idempotency") and a due time; ListDue queries one group for items due
// at or before a cutoff, paginated and capped, mirroring the scheduler's
// "list keys with this prefix, process the due ones" access pattern
// (spec §6.4, §4.6).
package kv
