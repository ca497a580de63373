package identity

import (
	"context"
	"time"

	"github.com/ignite/pixeltrack/internal/attribution"
	"github.com/ignite/pixeltrack/internal/domain"
)

// Repository defines the data access contract for visitors and
// sessions. Insert methods return ErrCookieConflict when a concurrent
// insert already claimed the cookie — the service recovers from that
// locally, it is never surfaced to the caller.
type Repository interface {
	// GetVisitorByCookie returns ErrNotFound if no row matches.
	GetVisitorByCookie(ctx context.Context, cookie string) (domain.Visitor, error)

	// InsertVisitor creates a new visitor row with VisitCount=1.
	InsertVisitor(ctx context.Context, v domain.Visitor) error

	// TouchVisitor sets last_seen=now and increments visit_count for an
	// existing visitor, returning the row as it now stands without a
	// redundant re-read.
	TouchVisitor(ctx context.Context, visitorID string, now time.Time) (domain.Visitor, error)

	// FindActiveSession returns the most recent session for
	// (visitorID, pixelID) whose last_activity is within the session
	// window, or ok=false if none exists.
	FindActiveSession(ctx context.Context, visitorID, pixelID string, now time.Time) (session domain.Session, ok bool, err error)

	// FindEarliestUTMSession returns the visitor's earliest session on
	// this pixel that carries a non-null utm_source, for first-visit
	// attribution propagation, or ok=false if none exists.
	FindEarliestUTMSession(ctx context.Context, visitorID, pixelID string) (session domain.Session, ok bool, err error)

	// TouchSession updates an active session's last_activity,
	// increments page_views, and overwrites any UTM columns present in
	// overlay, returning the row as it now stands.
	TouchSession(ctx context.Context, sessionID string, now time.Time, overlay attribution.UTMData) (domain.Session, error)

	// InsertSession creates a new session row.
	InsertSession(ctx context.Context, s domain.Session) error
}
