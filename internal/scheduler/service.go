package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/kv"
	"github.com/ignite/pixeltrack/internal/pkg/distlock"
	"github.com/ignite/pixeltrack/internal/pkg/logger"
	"github.com/ignite/pixeltrack/internal/service/eventwriter"
)

// TickLockKey names the cross-instance lock guarding Tick (spec.md §5:
// the scheduler may run concurrently with itself across instances).
// Callers pass it to distlock.NewLock when wiring SetLock.
const TickLockKey = "scheduler:tick"

// TickInterval is how often Start runs a process tick (spec §4.6, §6.5).
const TickInterval = 5 * time.Minute

// maxListPages bounds a single tick's KV listing to ~10,000 keys
// (10 pages of pageSize items) per spec §4.6 step 1.
const (
	maxListPages = 10
	listPageSize = 1000

	batchSize          = 50
	batchConcurrency   = 10
	interBatchPause    = 250 * time.Millisecond
	jobProcessDeadline = 30 * time.Second

	stalledScanLimit = 10
)

// ErrKVWriteUnverified is raised when a verify-read after Put doesn't
// see the job, per spec §7's KVWriteUnverified kind.
var ErrKVWriteUnverified = fmt.Errorf("scheduler: kv write unverified")

// Scheduler drives deferred CRM sync delivery and stalled-event recovery.
type Scheduler struct {
	store    kv.Store
	crm      CRMService
	events   EventRepository
	visitors VisitorRepository
	sessions SessionRepository
	lock     distlock.DistLock
	log      *logger.Entry
	now      func() time.Time
}

// SetLock installs the cross-instance lock guarding Tick. Without one,
// Tick runs unconditionally — the default in tests and single-instance
// deployments.
func (s *Scheduler) SetLock(lock distlock.DistLock) {
	s.lock = lock
}

// New creates a Scheduler. now defaults to time.Now; tests can override
// it to exercise due-time boundaries deterministically.
func New(store kv.Store, crmSvc CRMService, events EventRepository, visitors VisitorRepository, sessions SessionRepository, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		store: store, crm: crmSvc, events: events, visitors: visitors, sessions: sessions,
		log: logger.WithComponent("scheduler"), now: now,
	}
}

// Start runs the process tick on TickInterval until ctx is cancelled,
// following the teacher's ticker + context-select loop
// (internal/worker/queue_recovery.go).
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// ScheduleDelayedSync enqueues a CRM sync job 7 minutes out, with
// idempotency-marker dedup (spec §4.6 enqueue algorithm).
func (s *Scheduler) ScheduleDelayedSync(ctx context.Context, payload domain.DeferredSyncPayload) error {
	now := s.now()
	scheduledAt := now.Add(domain.DeferredSyncDelay)
	idemKey := idempotencyKey(payload.EventID, payload.Email, now)

	if _, ok, err := s.store.Get(ctx, idemKey); err != nil {
		return fmt.Errorf("scheduler: check idempotency marker: %w", err)
	} else if ok {
		return nil
	}

	payload.ScheduledAt = scheduledAt
	payload.CreatedAt = now
	payload.IdempotencyKey = idemKey

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("scheduler: marshal job payload: %w", err)
	}

	key := jobKey(payload.EventID, scheduledAt)
	ttl := domain.DeferredSyncDelay + domain.DeferredJobTTLBuffer
	if err := s.store.Put(ctx, key, syncGroupPrefix, scheduledAt, body, ttl); err != nil {
		return fmt.Errorf("scheduler: enqueue job: %w", err)
	}

	if _, ok, err := s.store.Get(ctx, key); err != nil {
		return fmt.Errorf("scheduler: verify enqueued job: %w", err)
	} else if !ok {
		return ErrKVWriteUnverified
	}

	if err := s.store.Put(ctx, idemKey, idempotencyGroupPrefix, now, []byte("scheduled"), domain.IdempotencyMarkerTTL); err != nil {
		return fmt.Errorf("scheduler: write idempotency marker: %w", err)
	}
	return nil
}

// Tick runs one process-tick pass and then the stalled-event recovery
// pass (spec §4.6 process tick + stalled-event recovery). If a lock is
// installed (SetLock) and another instance already holds it, Tick
// returns immediately without doing any work (spec.md §5: the scheduler
// may run concurrently with itself across instances).
func (s *Scheduler) Tick(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			s.log.Error("tick lock acquire failed", "error_message", err.Error())
			return
		}
		if !acquired {
			s.log.Info("tick skipped, another instance holds the lock")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				s.log.Warn("tick lock release failed", "error_message", err.Error())
			}
		}()
	}

	now := s.now()

	items, err := s.store.ListDue(ctx, syncGroupPrefix, now, listPageSize, maxListPages)
	if err != nil {
		s.log.Error("list due jobs failed", "error_message", err.Error())
		return
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		s.processBatch(ctx, items[start:end])
		if end < len(items) {
			time.Sleep(interBatchPause)
		}
	}

	s.recoverStalled(ctx, now)
}

// processBatch runs up to batchConcurrency jobs at once, the teacher's
// buffered-channel-semaphore idiom (internal/worker/rss_poller.go).
func (s *Scheduler) processBatch(ctx context.Context, items []kv.Item) {
	sem := make(chan struct{}, batchConcurrency)
	done := make(chan struct{}, len(items))

	for _, item := range items {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
			go func(it kv.Item) {
				defer func() { <-sem; done <- struct{}{} }()
				s.processJob(ctx, it)
			}(item)
		}
	}

	for range items {
		<-done
	}
}

func (s *Scheduler) processJob(ctx context.Context, item kv.Item) {
	jobCtx, cancel := context.WithTimeout(ctx, jobProcessDeadline)
	defer cancel()

	value, ok, err := s.store.Get(ctx, item.Key)
	if err != nil {
		s.log.Warn("load job value failed", "key", item.Key, "error_message", err.Error())
		return
	}
	if !ok {
		// Expired out from under the listing before this tick reached
		// it (spec §4.6 step 3): we don't know the event ID without the
		// payload, so recover it from the key itself.
		if eventID, ok := eventIDFromJobKey(item.Key); ok {
			if err := s.events.MarkErrorIfNull(ctx, eventID); err != nil {
				s.log.Warn("mark expired job error failed", "event_id", eventID, "error_message", err.Error())
			}
		}
		s.store.Delete(ctx, item.Key)
		return
	}

	var payload domain.DeferredSyncPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		s.log.Warn("drop malformed job", "key", item.Key, "error_message", err.Error())
		s.store.Delete(ctx, item.Key)
		return
	}

	if payload.ProcessedAt != nil {
		s.store.Delete(ctx, item.Key)
		return
	}

	result := s.crm.FindAndUpdate(jobCtx, payload)
	if err := s.events.UpdateSyncStatus(ctx, payload.EventID, result.Status, result.PersonID, s.now()); err != nil {
		s.log.Error("write sync status failed", "event_id", payload.EventID, "error_message", err.Error())
	}

	if err := s.store.Put(ctx, payload.IdempotencyKey, idempotencyGroupPrefix, s.now(), []byte("processed"), domain.IdempotencyMarkerTTL); err != nil {
		s.log.Warn("mark idempotency processed failed", "event_id", payload.EventID, "error_message", err.Error())
	}
	s.store.Delete(ctx, item.Key)
}

// recoverStalled finds form_submit events whose sync status never
// resolved and re-enqueues them with a short delay and TTL, reconstructing
// the full payload via the visitor and session joins spec §4.6 requires.
func (s *Scheduler) recoverStalled(ctx context.Context, now time.Time) {
	stalled, err := s.events.ListStalled(ctx, now, domain.StalledEventThreshold, domain.MaxRetryCount, stalledScanLimit)
	if err != nil {
		s.log.Error("list stalled events failed", "error_message", err.Error())
		return
	}

	for _, e := range stalled {
		payload, err := s.reconstructPayload(ctx, e)
		if err != nil {
			s.log.Warn("reconstruct stalled payload failed", "event_id", e.ID, "error_message", err.Error())
			continue
		}

		if err := s.events.IncrementRetry(ctx, e.ID, now); err != nil {
			s.log.Warn("increment retry failed", "event_id", e.ID, "error_message", err.Error())
		}

		scheduledAt := now.Add(domain.StalledRetryDelay)
		payload.ScheduledAt = scheduledAt
		payload.CreatedAt = now
		payload.IdempotencyKey = idempotencyKey(e.ID, payload.Email, now)

		body, err := json.Marshal(payload)
		if err != nil {
			s.log.Warn("marshal stalled payload failed", "event_id", e.ID, "error_message", err.Error())
			continue
		}
		key := jobKey(e.ID, scheduledAt)
		if err := s.store.Put(ctx, key, syncGroupPrefix, scheduledAt, body, domain.StalledRetryTTL); err != nil {
			s.log.Warn("re-enqueue stalled job failed", "event_id", e.ID, "error_message", err.Error())
		}
	}
}

func (s *Scheduler) reconstructPayload(ctx context.Context, e domain.Event) (domain.DeferredSyncPayload, error) {
	visitor, err := s.visitors.GetVisitor(ctx, e.VisitorID)
	if err != nil {
		return domain.DeferredSyncPayload{}, fmt.Errorf("get visitor: %w", err)
	}
	session, err := s.sessions.GetSession(ctx, e.SessionID)
	if err != nil {
		return domain.DeferredSyncPayload{}, fmt.Errorf("get session: %w", err)
	}
	pages, err := s.visitors.ListRecentPageURLs(ctx, e.VisitorID, 50)
	if err != nil {
		return domain.DeferredSyncPayload{}, fmt.Errorf("list recent pages: %w", err)
	}

	formData, err := eventwriter.DecodeFormData(e.FormData)
	if err != nil {
		return domain.DeferredSyncPayload{}, fmt.Errorf("decode form data: %w", err)
	}
	email, firstName, lastName := eventwriter.ExtractIdentity(formData)

	return domain.DeferredSyncPayload{
		EventID:   e.ID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		VisitorID: e.VisitorID,
		SessionID: e.SessionID,
		PixelID:   e.PixelID,
		ProjectID: e.ProjectID,

		PageURL:     e.PageURL,
		PageTitle:   e.PageTitle,
		ReferrerURL: e.ReferrerURL,

		UTMSource:   e.UTMSource,
		UTMMedium:   e.UTMMedium,
		UTMCampaign: e.UTMCampaign,
		UTMContent:  e.UTMContent,
		UTMTerm:     e.UTMTerm,

		GCLID: e.GCLID, FBCLID: e.FBCLID, MSCLKID: e.MSCLKID,
		TTCLID: e.TTCLID, TWCLID: e.TWCLID, LiFatID: e.LiFatID, ScClickID: e.ScClickID,

		CampaignRegion: e.CampaignRegion,
		AdGroup:        e.AdGroup,
		AdID:           e.AdID,
		SearchQuery:    e.SearchQuery,

		Country: e.Country, Region: e.Region, City: e.City, IP: e.IP,
		UserAgent: e.UserAgent, EventType: string(e.EventType),

		VisitorLastSeen:  visitor.LastSeen,
		VisitedPages:     pages,
		SessionStartedAt: session.StartedAt,
		SessionLastSeen:  session.LastActivity,

		CreatedAt: e.CreatedAt,
	}, nil
}
