// Package registry holds the feature registrations of a session.
//
// Every routable method maps to the registrations that serve it, kept in
// registration order. A registration belongs to exactly one extension and
// may restrict itself to documents through a selector of language, scheme
// and glob pattern filters. Registrations are added statically from the
// capabilities an extension declares at initialize and dynamically through
// client/registerCapability.
package registry
