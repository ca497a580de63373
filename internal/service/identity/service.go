package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/pixeltrack/internal/attribution"
	"github.com/ignite/pixeltrack/internal/domain"
)

// Service implements the identity business logic. It is safe for
// concurrent use; all state lives in the Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an identity service backed by the given
// repository. now defaults to time.Now and is overridable for tests
// that exercise the 30-minute session window.
func NewService(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// FindOrCreateVisitor maps a visitor cookie to a stable visitor row.
// Two simultaneous first-requests may both attempt an insert; the
// unique constraint rejects one, and that caller falls back to
// select-then-update. This recovery path is mandatory, not best-effort.
func (s *Service) FindOrCreateVisitor(ctx context.Context, visitorCookie, ip, userAgent string) (domain.Visitor, error) {
	existing, err := s.repo.GetVisitorByCookie(ctx, visitorCookie)
	if err == nil {
		return s.repo.TouchVisitor(ctx, existing.ID, s.now())
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Visitor{}, fmt.Errorf("identity: lookup visitor: %w", err)
	}

	now := s.now()
	fresh := domain.Visitor{
		ID:            uuid.New().String(),
		VisitorCookie: visitorCookie,
		FirstSeen:     now,
		LastSeen:      now,
		VisitCount:    1,
		UserAgent:     userAgent,
		IP:            ip,
	}

	if err := s.repo.InsertVisitor(ctx, fresh); err != nil {
		if errors.Is(err, ErrCookieConflict) {
			// Lost the race: another request inserted first. Recover
			// by re-selecting and updating, per spec §4.2.
			winner, getErr := s.repo.GetVisitorByCookie(ctx, visitorCookie)
			if getErr != nil {
				return domain.Visitor{}, fmt.Errorf("identity: recover from insert race: %w", getErr)
			}
			return s.repo.TouchVisitor(ctx, winner.ID, now)
		}
		return domain.Visitor{}, fmt.Errorf("identity: insert visitor: %w", err)
	}

	return fresh, nil
}

// FindOrCreateSession maps a (visitor, pixel) pair to a live session,
// applying first-visit attribution propagation when the current
// request carries no UTM source and no active session exists.
func (s *Service) FindOrCreateSession(ctx context.Context, visitorID, pixelID string, utm attribution.UTMData) (domain.Session, error) {
	now := s.now()

	if active, ok, err := s.repo.FindActiveSession(ctx, visitorID, pixelID, now); err != nil {
		return domain.Session{}, fmt.Errorf("identity: find active session: %w", err)
	} else if ok {
		return s.repo.TouchSession(ctx, active.ID, now, utm)
	}

	if utm.UTMSource == "" {
		if earliest, ok, err := s.repo.FindEarliestUTMSession(ctx, visitorID, pixelID); err != nil {
			return domain.Session{}, fmt.Errorf("identity: find earliest utm session: %w", err)
		} else if ok {
			utm = propagateFirstVisit(earliest, utm)
		}
	}

	session := domain.Session{
		ID:             uuid.New().String(),
		VisitorID:      visitorID,
		PixelID:        pixelID,
		SessionCookie:  newSessionCookie(),
		StartedAt:      now,
		LastActivity:   now,
		PageViews:      1,
		UTMSource:      utm.UTMSource,
		UTMMedium:      utm.UTMMedium,
		UTMCampaign:    utm.UTMCampaign,
		UTMContent:     utm.UTMContent,
		UTMTerm:        utm.UTMTerm,
		CampaignRegion: utm.CampaignRegion,
		AdGroup:        utm.AdGroup,
		AdID:           utm.AdID,
		SearchQuery:    utm.SearchQuery,
	}

	if err := s.repo.InsertSession(ctx, session); err != nil {
		if errors.Is(err, ErrCookieConflict) {
			session.SessionCookie = newSessionCookie()
			if retryErr := s.repo.InsertSession(ctx, session); retryErr != nil {
				return domain.Session{}, fmt.Errorf("identity: insert session after cookie retry: %w", retryErr)
			}
			return session, nil
		}
		return domain.Session{}, fmt.Errorf("identity: insert session: %w", err)
	}

	return session, nil
}

// propagateFirstVisit copies a visitor's earliest UTM-bearing session
// attribution into a new session that begins without attribution.
// utm_content/utm_term are copied only if the current request lacks
// them, per spec §4.2.
func propagateFirstVisit(earliest domain.Session, current attribution.UTMData) attribution.UTMData {
	current.UTMSource = earliest.UTMSource
	current.UTMMedium = earliest.UTMMedium
	current.UTMCampaign = earliest.UTMCampaign
	current.CampaignRegion = earliest.CampaignRegion
	current.AdGroup = earliest.AdGroup
	current.AdID = earliest.AdID
	current.SearchQuery = earliest.SearchQuery
	if current.UTMContent == "" {
		current.UTMContent = earliest.UTMContent
	}
	if current.UTMTerm == "" {
		current.UTMTerm = earliest.UTMTerm
	}
	return current
}

func newSessionCookie() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "sess_" + hex.EncodeToString(b)
}
