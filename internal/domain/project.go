package domain

// ProjectConfig holds the per-project feature toggles that influence
// ingest behavior.
type ProjectConfig struct {
	PipedriveEnabled bool `json:"pipedrive_enabled"`
	RetentionDays    int  `json:"retention_days"`
}

// Project is the tenant scope a Pixel belongs to. The repository is
// responsible for defaulting Config.PipedriveEnabled to true when the
// underlying column is null — callers can read the field directly.
type Project struct {
	ID     string        `json:"id" db:"id"`
	Name   string        `json:"name" db:"name"`
	Config ProjectConfig `json:"config" db:"-"`
	Active bool          `json:"active" db:"active"`
}

// Pixel is a tracking endpoint belonging to a Project.
type Pixel struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`
	Active    bool   `json:"active" db:"active"`
}
