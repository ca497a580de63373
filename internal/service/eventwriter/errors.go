package eventwriter

import "errors"

// ErrEventIDUnavailable is a fatal ingest error: the row was inserted
// but its ID could not be recovered through the fallback SELECT ladder.
var ErrEventIDUnavailable = errors.New("eventwriter: event id unavailable")
