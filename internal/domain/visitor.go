package domain

import "time"

// Visitor is an identity bound to a browser cookie. Exactly one row
// exists per VisitorCookie.
type Visitor struct {
	ID             string    `json:"id" db:"id"`
	VisitorCookie  string    `json:"visitor_cookie" db:"visitor_cookie"`
	FirstSeen      time.Time `json:"first_seen" db:"first_seen"`
	LastSeen       time.Time `json:"last_seen" db:"last_seen"`
	VisitCount     int       `json:"visit_count" db:"visit_count"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	IP             string    `json:"ip" db:"ip"`
}
