package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/service/identity"
	"github.com/lib/pq"
)

// VisitorRepo implements identity.Repository's visitor half against
// PostgreSQL.
type VisitorRepo struct{ db *sql.DB }

// NewVisitorRepo creates a Postgres-backed visitor repository.
func NewVisitorRepo(db *sql.DB) *VisitorRepo { return &VisitorRepo{db: db} }

func (r *VisitorRepo) GetVisitorByCookie(ctx context.Context, cookie string) (domain.Visitor, error) {
	var v domain.Visitor
	err := r.db.QueryRowContext(ctx, `
		SELECT id, visitor_cookie, first_seen, last_seen, visit_count, user_agent, ip
		FROM visitors WHERE visitor_cookie = $1
	`, cookie).Scan(&v.ID, &v.VisitorCookie, &v.FirstSeen, &v.LastSeen, &v.VisitCount, &v.UserAgent, &v.IP)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Visitor{}, identity.ErrNotFound
	}
	if err != nil {
		return domain.Visitor{}, fmt.Errorf("get visitor by cookie: %w", err)
	}
	return v, nil
}

func (r *VisitorRepo) InsertVisitor(ctx context.Context, v domain.Visitor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO visitors (id, visitor_cookie, first_seen, last_seen, visit_count, user_agent, ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.VisitorCookie, v.FirstSeen, v.LastSeen, v.VisitCount, v.UserAgent, v.IP)
	if isUniqueViolation(err) {
		return identity.ErrCookieConflict
	}
	if err != nil {
		return fmt.Errorf("insert visitor: %w", err)
	}
	return nil
}

func (r *VisitorRepo) TouchVisitor(ctx context.Context, visitorID string, now time.Time) (domain.Visitor, error) {
	var v domain.Visitor
	err := r.db.QueryRowContext(ctx, `
		UPDATE visitors SET last_seen = $2, visit_count = visit_count + 1
		WHERE id = $1
		RETURNING id, visitor_cookie, first_seen, last_seen, visit_count, user_agent, ip
	`, visitorID, now).Scan(&v.ID, &v.VisitorCookie, &v.FirstSeen, &v.LastSeen, &v.VisitCount, &v.UserAgent, &v.IP)
	if err != nil {
		return domain.Visitor{}, fmt.Errorf("touch visitor: %w", err)
	}
	return v, nil
}

// GetVisitor returns a visitor row by ID, for deferred-job payload
// reconstruction during stalled-event recovery.
func (r *VisitorRepo) GetVisitor(ctx context.Context, visitorID string) (domain.Visitor, error) {
	var v domain.Visitor
	err := r.db.QueryRowContext(ctx, `
		SELECT id, visitor_cookie, first_seen, last_seen, visit_count, user_agent, ip
		FROM visitors WHERE id = $1
	`, visitorID).Scan(&v.ID, &v.VisitorCookie, &v.FirstSeen, &v.LastSeen, &v.VisitCount, &v.UserAgent, &v.IP)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Visitor{}, identity.ErrNotFound
	}
	if err != nil {
		return domain.Visitor{}, fmt.Errorf("get visitor: %w", err)
	}
	return v, nil
}

// ListRecentPageURLs returns up to `limit` most recent distinct
// page_url values this visitor has visited, newest first — the
// "visited_pages" CRM aggregate field (spec §4.5.1).
func (r *VisitorRepo) ListRecentPageURLs(ctx context.Context, visitorID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT page_url FROM (
			SELECT page_url, MAX(created_at) AS last_seen
			FROM events
			WHERE visitor_id = $1
			GROUP BY page_url
		) recent
		ORDER BY last_seen DESC
		LIMIT $2
	`, visitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent page urls: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan recent page url: %w", err)
		}
		out = append(out, url)
	}
	return out, rows.Err()
}

// isUniqueViolation detects a Postgres unique-constraint violation
// (SQLSTATE 23505) from lib/pq's typed *pq.Error. Errors of any other
// type are not recognized as violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
