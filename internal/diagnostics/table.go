package diagnostics

import (
	"sort"

	"github.com/dshills/exthost/internal/protocol"
)

// table holds one value per (document, source). It is not synchronized.
type table[T any] struct {
	docs map[protocol.DocumentURI]map[string]T
}

func newTable[T any]() table[T] {
	return table[T]{docs: make(map[protocol.DocumentURI]map[string]T)}
}

func (t table[T]) put(uri protocol.DocumentURI, source string, v T) {
	bySource, ok := t.docs[uri]
	if !ok {
		bySource = make(map[string]T)
		t.docs[uri] = bySource
	}
	bySource[source] = v
}

func (t table[T]) get(uri protocol.DocumentURI, source string) (T, bool) {
	v, ok := t.docs[uri][source]
	return v, ok
}

func (t table[T]) delete(uri protocol.DocumentURI, source string) bool {
	bySource, ok := t.docs[uri]
	if !ok {
		return false
	}
	if _, ok := bySource[source]; !ok {
		return false
	}
	delete(bySource, source)
	if len(bySource) == 0 {
		delete(t.docs, uri)
	}
	return true
}

// sources returns the sources that published for uri, sorted.
func (t table[T]) sources(uri protocol.DocumentURI) []string {
	out := make([]string, 0, len(t.docs[uri]))
	for s := range t.docs[uri] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// uris returns every document with at least one entry, sorted.
func (t table[T]) uris() []protocol.DocumentURI {
	out := make([]protocol.DocumentURI, 0, len(t.docs))
	for uri := range t.docs {
		out = append(out, uri)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dropSource removes every entry of source and returns the affected
// documents, sorted.
func (t table[T]) dropSource(source string) []protocol.DocumentURI {
	var out []protocol.DocumentURI
	for _, uri := range t.uris() {
		if t.delete(uri, source) {
			out = append(out, uri)
		}
	}
	return out
}

func (t table[T]) clear() {
	clear(t.docs)
}
