package kv

import (
	"context"
	"time"
)

// Item is one due key returned by ListDue. ListDue is a keys-only index
// query; callers load the value with a separate Get, so a key whose
// value has already expired out from under the listing surfaces as a
// clean "not found" rather than a stale read (spec §4.6 step 3).
type Item struct {
	Key   string
	DueAt time.Time
}

// Store is the deferred-job and idempotency-marker key-value contract.
// Implementations: DynamoDBStore (production) and MemoryStore (tests).
type Store interface {
	// Put writes value under key, recorded in groupPrefix's due-listing
	// index at dueAt, expiring after ttl.
	Put(ctx context.Context, key, groupPrefix string, dueAt time.Time, value []byte, ttl time.Duration) error

	// Get returns the value stored under key. ok is false if the key
	// doesn't exist (including if it expired).
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Delete removes key. Deleting a key that doesn't exist is not an
	// error.
	Delete(ctx context.Context, key string) error

	// ListDue returns items in groupPrefix with dueAt <= before, oldest
	// first, reading at most pageSize items per underlying page and at
	// most maxPages pages (spec §6.4's 10-page cap on the scheduler's
	// tick).
	ListDue(ctx context.Context, groupPrefix string, before time.Time, pageSize, maxPages int) ([]Item, error)
}
