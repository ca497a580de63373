package eventwriter

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/pixeltrack/internal/domain"
)

// narrowDelay and broadDelay are the two waits in the ID-recovery
// ladder (spec §4.3): a short wait before a narrow lookup, then a
// longer wait before a broader one. The source uses inconsistent
// constants across call sites (10ms/50ms/100ms); this service picks
// this one ladder and applies it uniformly everywhere.
const (
	narrowDelay       = 50 * time.Millisecond
	narrowLookback    = 2 * time.Second
	broadDelay        = 100 * time.Millisecond
	broadLookback     = 3 * time.Second
)

// Service persists tracking events.
type Service struct {
	repo  Repository
	sleep func(time.Duration)
	now   func() time.Time
}

// NewService creates an event writer backed by the given repository.
// sleep and now default to time.Sleep and time.Now; tests can replace
// sleep with a no-op to avoid real waits while still exercising the
// fallback ladder's branches.
func NewService(repo Repository, sleep func(time.Duration), now func() time.Time) *Service {
	if sleep == nil {
		sleep = time.Sleep
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, sleep: sleep, now: now}
}

// Insert persists one event row and returns its ID, using the
// driver-returned ID when available and otherwise falling back to a
// two-step SELECT ladder that tolerates replication lag.
func (s *Service) Insert(ctx context.Context, e domain.Event) (string, error) {
	id, ok, err := s.repo.Insert(ctx, e)
	if err != nil {
		return "", fmt.Errorf("eventwriter: insert: %w", err)
	}
	if ok {
		return id, nil
	}

	s.sleep(narrowDelay)
	if id, ok, err := s.repo.FindRecentNarrow(ctx, e.VisitorID, e.SessionID, e.EventType, e.PageURL, s.now().Add(-narrowLookback)); err != nil {
		return "", fmt.Errorf("eventwriter: narrow lookup: %w", err)
	} else if ok {
		return id, nil
	}

	s.sleep(broadDelay)
	if id, ok, err := s.repo.FindRecentBroad(ctx, e.VisitorID, e.SessionID, s.now().Add(-broadLookback)); err != nil {
		return "", fmt.Errorf("eventwriter: broad lookup: %w", err)
	} else if ok {
		return id, nil
	}

	return "", ErrEventIDUnavailable
}

// ResolveEventType applies spec §4.3's event-type rule: form_submit if
// either form_data is present or the caller declared it; otherwise the
// caller's declared type, defaulting to pageview.
func ResolveEventType(declared string, hasFormData bool) domain.EventType {
	if hasFormData || declared == string(domain.EventFormSubmit) {
		return domain.EventFormSubmit
	}
	if declared == "" {
		return domain.EventPageview
	}
	return domain.EventType(declared)
}
