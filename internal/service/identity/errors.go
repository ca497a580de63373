package identity

import "errors"

// Sentinel errors for the identity service layer.
var (
	// ErrNotFound is returned by Repository lookups that find no row.
	ErrNotFound = errors.New("identity: not found")

	// ErrCookieConflict is returned internally by the repository when a
	// unique-constraint insert race is detected. The service recovers
	// from it locally (spec §7: DuplicateInsert) and never surfaces it.
	ErrCookieConflict = errors.New("identity: cookie already exists")
)
