// Package document owns the text of every open document in a session.
//
// The Store applies didOpen, didChange and didClose in the order the host
// issues them, enforcing version monotonicity per URI. Mutations on one URI
// are serialized; different URIs proceed in parallel. Every accepted
// mutation is published to a Feed, which delivers it to each subscribed
// extension from that subscriber's own goroutine, translated to the sync
// kind the extension negotiated.
package document
