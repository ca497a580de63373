package scheduler

import (
	"context"
	"time"

	"github.com/ignite/pixeltrack/internal/crm"
	"github.com/ignite/pixeltrack/internal/domain"
)

// EventRepository is the scheduler's view of event storage: the status
// writes the scheduler is the sole owner of, plus the stalled-event scan.
type EventRepository interface {
	UpdateSyncStatus(ctx context.Context, eventID string, status domain.SyncStatus, personID string, syncAt time.Time) error
	MarkErrorIfNull(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, now time.Time) error
	ListStalled(ctx context.Context, now time.Time, staleAfter time.Duration, maxRetry, limit int) ([]domain.Event, error)
}

// VisitorRepository is the scheduler's view of visitor storage, used to
// reconstruct a full deferred-job payload during stalled-event recovery.
type VisitorRepository interface {
	GetVisitor(ctx context.Context, visitorID string) (domain.Visitor, error)
	ListRecentPageURLs(ctx context.Context, visitorID string, limit int) ([]string, error)
}

// SessionRepository is the scheduler's view of session storage, used
// alongside VisitorRepository during stalled-event recovery.
type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
}

// CRMService is the scheduler's view of the CRM reconciliation service.
type CRMService interface {
	FindAndUpdate(ctx context.Context, payload domain.DeferredSyncPayload) crm.Result
}
