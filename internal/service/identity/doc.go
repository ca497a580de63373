// Package identity maps each tracking request to a stable visitor and a
// live session, without losing attribution across a visitor's history.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// database/sql or net/http directly.
package identity
