// Package extension is the host's view of one extension.
//
// A Client owns the connection to an extension: it runs the initialize
// handshake, forwards document synchronization through a document.Store
// subscription, carries routed feature requests and serves the requests the
// extension sends back to the host through a Services implementation.
//
// Extensions run in a Runtime. Process runs an executable speaking the
// protocol on stdio, WebSocket dials a remote peer and InProcess serves a
// server.Server over an in-memory pipe. The Lua runtime lives in the lua
// subpackage.
package extension
