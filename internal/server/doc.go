// Package server is the extension side of the protocol.
//
// An extension creates a Server, registers handlers for the features it
// provides and calls Serve with the stream connected to the host. The
// server enforces the session lifecycle, declares capabilities derived
// from the registered handlers, keeps its own copy of every document the
// host opens and exposes the host's services through Client.
//
//	srv := server.New(protocol.Info{Name: "gopher"})
//	srv.OnHover(func(ctx context.Context, p protocol.HoverParams) (*protocol.Hover, error) {
//		doc, _ := srv.Document(p.TextDocument.URI)
//		return hoverFor(doc, p.Position), nil
//	})
//	err := srv.ServeStdio(ctx)
package server
