// Package protocol defines the message catalog exchanged between a host and
// its extensions.
//
// The catalog is JSON-RPC 2.0 shaped and follows the Language Server
// Protocol where the two overlap. It covers thirty message families:
// lifecycle (initialize, shutdown, exit), document synchronization,
// dynamic registration, feature requests such as hover and completion,
// commands, configuration, diagnostics, decorations, window messages,
// telemetry and workspace notifications.
//
// # Envelope
//
// Every frame decodes into a Message via Decode, which rejects malformed
// envelopes with a CodeInvalidRequest error before any handler sees them.
//
// # Schema
//
// Schema is a versioned registry holding one Declaration per method. Each
// declaration names its direction, the catalog revision that introduced
// it, its feature family and its params and result types. Default returns
// the complete catalog.
//
// # Capabilities
//
// ServerCapabilities holds one Capability per feature family. A Capability
// is a tagged union (unsupported, enabled, or options) so callers switch
// on Kind instead of probing optional fields.
//
// # Positions
//
// Positions are zero-based and count characters in UTF-16 code units.
// LineIndex converts between positions and byte offsets.
package protocol
