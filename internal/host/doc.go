// Package host runs an extension session.
//
// A Host owns the shared session state: the document store, the
// registration registry, the diagnostics and decoration stores and the
// settings document. It starts extensions, performs the initialize
// handshake, feeds them document events and routes feature requests and
// commands to them through the router and the command dispatcher.
//
// Extensions reach back into the host through the services in
// services.go: dynamic registration, diagnostics, decorations, messages,
// telemetry, configuration and workspace edits.
//
// Extensions without activation languages start with the host. The others
// start when the first document of one of their languages is opened.
//
// Close tears the session down: every extension is shut down and the
// registry, documents, diagnostics and decorations are cleared.
package host
