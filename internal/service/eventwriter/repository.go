package eventwriter

import (
	"context"
	"time"

	"github.com/ignite/pixeltrack/internal/domain"
)

// Repository defines the data access contract for event persistence.
type Repository interface {
	// Insert writes one event row. If the driver returns the
	// auto-assigned ID directly, id is non-empty and ok is true.
	// Otherwise ok is false and the caller must fall back to the
	// SELECT ladder below.
	Insert(ctx context.Context, e domain.Event) (id string, ok bool, err error)

	// FindRecentNarrow looks up the most recent row matching
	// (visitor_id, session_id, event_type, page_url, timestamp >= since).
	FindRecentNarrow(ctx context.Context, visitorID, sessionID string, eventType domain.EventType, pageURL string, since time.Time) (id string, ok bool, err error)

	// FindRecentBroad looks up the most recent row matching
	// (visitor_id, session_id, timestamp >= since).
	FindRecentBroad(ctx context.Context, visitorID, sessionID string, since time.Time) (id string, ok bool, err error)
}
