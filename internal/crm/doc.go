// Package crm reconciles a form submission against the external CRM's
// contact database and updates that contact's marketing-attribution
// fields. It owns the search-by-email / search-by-name algorithm, the
// logical-to-CRM-key field mapping, and the circuit breaker guarding the
// outbound HTTP calls.
package crm
