package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// syncGroupPrefix groups deferred CRM jobs in the KV store (spec §6.4).
const syncGroupPrefix = "pipedrive_sync"

// idempotencyGroupPrefix groups idempotency markers in the KV store.
const idempotencyGroupPrefix = "idempotency"

// jobKey builds the `pipedrive_sync:{event_id}:{scheduled_at_ms}` key.
func jobKey(eventID string, scheduledAt time.Time) string {
	return fmt.Sprintf("%s:%s:%d", syncGroupPrefix, eventID, scheduledAt.UnixMilli())
}

// idempotencyKey hashes event_id:email:now into a stable key, per spec
// §4.6's "stable hash of event_id:email:now".
func idempotencyKey(eventID, email string, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", eventID, email, now.UnixNano())))
	return fmt.Sprintf("%s:%s", idempotencyGroupPrefix, hex.EncodeToString(sum[:]))
}

// eventIDFromJobKey recovers the event_id segment from a job key, for
// the rare path where a job's value expired before its tick reached it
// and only the key (from the GSI1 listing) is available.
func eventIDFromJobKey(key string) (string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != syncGroupPrefix {
		return "", false
	}
	return parts[1], true
}
