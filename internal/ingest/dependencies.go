package ingest

import (
	"context"

	"github.com/ignite/pixeltrack/internal/attribution"
	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/ratelimit"
)

// ProjectLookup resolves pixels and projects, the gate at ingest steps
// 4-5 (spec §4.4).
type ProjectLookup interface {
	GetPixel(ctx context.Context, pixelID string) (domain.Pixel, error)
	GetProject(ctx context.Context, projectID string) (domain.Project, error)
}

// IdentityService is the handler's view of internal/service/identity.
type IdentityService interface {
	FindOrCreateVisitor(ctx context.Context, visitorCookie, ip, userAgent string) (domain.Visitor, error)
	FindOrCreateSession(ctx context.Context, visitorID, pixelID string, utm attribution.UTMData) (domain.Session, error)
}

// EventWriter is the handler's view of internal/service/eventwriter.
type EventWriter interface {
	Insert(ctx context.Context, e domain.Event) (string, error)
}

// VisitorPages supplies the "visited_pages" CRM aggregate at enqueue
// time, the same query internal/scheduler uses during stalled-event
// payload reconstruction.
type VisitorPages interface {
	ListRecentPageURLs(ctx context.Context, visitorID string, limit int) ([]string, error)
}

// Scheduler is the handler's view of internal/scheduler: only the
// enqueue half is needed at ingest time (spec §3 ownership rule — the
// ingest path never reads deferred jobs back).
type Scheduler interface {
	ScheduleDelayedSync(ctx context.Context, payload domain.DeferredSyncPayload) error
}

// RateLimiter is the handler's view of internal/ratelimit.
type RateLimiter interface {
	Allow(ctx context.Context, routeClass ratelimit.RouteClass, ip string, limit, windowSeconds int) (ratelimit.Result, error)
}

// NewsletterClient is the optional form-submission side-effect (spec
// §1 lists it as an out-of-scope external collaborator, specified only
// by interface).
type NewsletterClient interface {
	Subscribe(ctx context.Context, email, firstName, lastName string) error
}
