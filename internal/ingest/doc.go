// Package ingest implements the HTTP ingest pipeline: security and bot
// filtering, rate limiting, pixel/project lookup, geo-hint extraction,
// visitor-cookie handling, identity and attribution resolution, event
// persistence, and scheduling of the deferred CRM sync job — all of it
// wired together the way the teacher's internal/tracking.Handler wires
// a publisher and a chi router, generalized to this domain's longer
// pipeline.
package ingest
