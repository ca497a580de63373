// Package newsletter is a thin client for the optional newsletter
// side-effect fired on form submissions. The collaborator itself is
// out of scope (spec §1 lists it as an external system specified only
// by interface); this client exists so the ingest handler has a
// concrete NewsletterClient to Spawn against in the default wiring.
package newsletter
