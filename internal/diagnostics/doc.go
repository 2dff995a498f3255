// Package diagnostics keeps the diagnostics and decorations extensions
// publish for documents.
//
// Both are keyed by document and source, where the source is the
// publishing extension. A publish replaces everything that source sent
// for the document before; publishing an empty set removes it.
package diagnostics
