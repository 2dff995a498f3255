// Package router routes feature requests to the extensions that serve them.
//
// A request is matched against the registration registry using the
// document's language and URI, sent to every matching extension in
// parallel with a per-provider timeout, and the replies are merged per
// family: single-result families take the first non-empty reply in
// registration order, list families concatenate and deduplicate. A
// provider that fails contributes nothing and is reported alongside the
// merged result. Cancelling the caller's context abandons the request and
// returns RequestCancelled.
package router
