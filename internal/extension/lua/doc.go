// Package lua runs extensions written in Lua.
//
// A script registers its features on the ext module and the runtime serves
// them through server.Server over an in-memory pipe, so the host talks to a
// Lua extension exactly as it talks to a process:
//
//	ext.on("textDocument/hover", function(params)
//	    local doc = ext.document(params.textDocument.uri)
//	    if doc == nil then return nil end
//	    return { contents = { kind = "plaintext", value = doc.languageId } }
//	end)
//
//	ext.command("sample.count", function(args) return #args end)
//
// The ext module provides:
//
//	ext.name                         extension name
//	ext.on(method, fn)               request handler; returns the result
//	ext.notification(method, fn)     notification handler
//	ext.command(id, fn)              command handler; fn receives the argument list
//	ext.document(uri)                the extension's copy of a document, or nil
//	ext.log(message [, type])        window/logMessage
//	ext.show(message [, type])       window/showMessage
//	ext.publish_diagnostics(uri, list)
//	ext.telemetry(name [, properties])
//
// A state is owned by one goroutine; every call into Lua goes through an
// executor and is bounded by the request context and a call timeout. Only
// the base, table, string and math libraries are opened.
package lua
