package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/pixeltrack/internal/domain"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("not found")

// ProjectRepo implements lookups for projects and pixels.
type ProjectRepo struct{ db *sql.DB }

// NewProjectRepo creates a Postgres-backed project/pixel repository.
func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{db: db} }

// GetPixel returns the pixel row for the given ID, or ErrNotFound.
func (r *ProjectRepo) GetPixel(ctx context.Context, pixelID string) (domain.Pixel, error) {
	var p domain.Pixel
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, active FROM pixels WHERE id = $1`, pixelID,
	).Scan(&p.ID, &p.ProjectID, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Pixel{}, ErrNotFound
	}
	if err != nil {
		return domain.Pixel{}, fmt.Errorf("get pixel: %w", err)
	}
	return p, nil
}

// GetProject returns the project row for the given ID, or ErrNotFound.
// pipedrive_enabled defaults to true when the column is null.
func (r *ProjectRepo) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var p domain.Project
	var pipedriveEnabled sql.NullBool
	var retentionDays sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, active, pipedrive_enabled, retention_days
		FROM projects WHERE id = $1
	`, projectID).Scan(&p.ID, &p.Name, &p.Active, &pipedriveEnabled, &retentionDays)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.Config.PipedriveEnabled = !pipedriveEnabled.Valid || pipedriveEnabled.Bool
	p.Config.RetentionDays = int(retentionDays.Int64)
	return p, nil
}
