// Package eventwriter persists exactly one tracking event per ingest
// request and makes the event ID available to the caller even under
// replication lag on the backing store.
package eventwriter
