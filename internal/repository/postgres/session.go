package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/pixeltrack/internal/attribution"
	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/service/identity"
)

// SessionRepo implements identity.Repository's session half against
// PostgreSQL.
type SessionRepo struct{ db *sql.DB }

// NewSessionRepo creates a Postgres-backed session repository.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) FindActiveSession(ctx context.Context, visitorID, pixelID string, now time.Time) (domain.Session, bool, error) {
	cutoff := now.Add(-domain.SessionWindow)
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, visitor_id, pixel_id, session_cookie, started_at, last_activity, page_views,
		       utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		       campaign_region, ad_group, ad_id, search_query
		FROM sessions
		WHERE visitor_id = $1 AND pixel_id = $2 AND last_activity >= $3
		ORDER BY last_activity DESC
		LIMIT 1
	`, visitorID, pixelID, cutoff).Scan(
		&s.ID, &s.VisitorID, &s.PixelID, &s.SessionCookie, &s.StartedAt, &s.LastActivity, &s.PageViews,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMContent, &s.UTMTerm,
		&s.CampaignRegion, &s.AdGroup, &s.AdID, &s.SearchQuery,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("find active session: %w", err)
	}
	return s, true, nil
}

func (r *SessionRepo) FindEarliestUTMSession(ctx context.Context, visitorID, pixelID string) (domain.Session, bool, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, visitor_id, pixel_id, session_cookie, started_at, last_activity, page_views,
		       utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		       campaign_region, ad_group, ad_id, search_query
		FROM sessions
		WHERE visitor_id = $1 AND pixel_id = $2 AND utm_source IS NOT NULL AND utm_source <> ''
		ORDER BY started_at ASC
		LIMIT 1
	`, visitorID, pixelID).Scan(
		&s.ID, &s.VisitorID, &s.PixelID, &s.SessionCookie, &s.StartedAt, &s.LastActivity, &s.PageViews,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMContent, &s.UTMTerm,
		&s.CampaignRegion, &s.AdGroup, &s.AdID, &s.SearchQuery,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("find earliest utm session: %w", err)
	}
	return s, true, nil
}

func (r *SessionRepo) TouchSession(ctx context.Context, sessionID string, now time.Time, overlay attribution.UTMData) (domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `
		UPDATE sessions SET
			last_activity = $2,
			page_views = page_views + 1,
			utm_source = COALESCE(NULLIF($3, ''), utm_source),
			utm_medium = COALESCE(NULLIF($4, ''), utm_medium),
			utm_campaign = COALESCE(NULLIF($5, ''), utm_campaign),
			utm_content = COALESCE(NULLIF($6, ''), utm_content),
			utm_term = COALESCE(NULLIF($7, ''), utm_term),
			campaign_region = COALESCE(NULLIF($8, ''), campaign_region),
			ad_group = COALESCE(NULLIF($9, ''), ad_group),
			ad_id = COALESCE(NULLIF($10, ''), ad_id),
			search_query = COALESCE(NULLIF($11, ''), search_query)
		WHERE id = $1
		RETURNING id, visitor_id, pixel_id, session_cookie, started_at, last_activity, page_views,
		          utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		          campaign_region, ad_group, ad_id, search_query
	`, sessionID, now, overlay.UTMSource, overlay.UTMMedium, overlay.UTMCampaign, overlay.UTMContent, overlay.UTMTerm,
		overlay.CampaignRegion, overlay.AdGroup, overlay.AdID, overlay.SearchQuery,
	).Scan(
		&s.ID, &s.VisitorID, &s.PixelID, &s.SessionCookie, &s.StartedAt, &s.LastActivity, &s.PageViews,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMContent, &s.UTMTerm,
		&s.CampaignRegion, &s.AdGroup, &s.AdID, &s.SearchQuery,
	)
	if err != nil {
		return domain.Session{}, fmt.Errorf("touch session: %w", err)
	}
	return s, nil
}

// GetSession returns a session row by ID, for deferred-job payload
// reconstruction during stalled-event recovery.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, visitor_id, pixel_id, session_cookie, started_at, last_activity, page_views,
		       utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		       campaign_region, ad_group, ad_id, search_query
		FROM sessions WHERE id = $1
	`, sessionID).Scan(
		&s.ID, &s.VisitorID, &s.PixelID, &s.SessionCookie, &s.StartedAt, &s.LastActivity, &s.PageViews,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMContent, &s.UTMTerm,
		&s.CampaignRegion, &s.AdGroup, &s.AdID, &s.SearchQuery,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, identity.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) InsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, visitor_id, pixel_id, session_cookie, started_at, last_activity, page_views,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			campaign_region, ad_group, ad_id, search_query
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, s.ID, s.VisitorID, s.PixelID, s.SessionCookie, s.StartedAt, s.LastActivity, s.PageViews,
		s.UTMSource, s.UTMMedium, s.UTMCampaign, s.UTMContent, s.UTMTerm,
		s.CampaignRegion, s.AdGroup, s.AdID, s.SearchQuery,
	)
	if isUniqueViolation(err) {
		return identity.ErrCookieConflict
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}
