package registry

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dshills/exthost/internal/protocol"
)

// Document is what a selector is matched against.
type Document struct {
	URI        protocol.DocumentURI
	LanguageID string
}

// MatchSelector reports whether doc matches sel. A selector with no
// filters matches every document.
func MatchSelector(sel protocol.DocumentSelector, doc Document) bool {
	if len(sel) == 0 {
		return true
	}
	for _, f := range sel {
		if MatchFilter(f, doc) {
			return true
		}
	}
	return false
}

// MatchFilter reports whether doc matches every field set in f. Patterns
// are doublestar globs matched against the URI path; a pattern without a
// slash is matched against the base name.
func MatchFilter(f protocol.DocumentFilter, doc Document) bool {
	if f.Language != "" && f.Language != "*" && f.Language != doc.LanguageID {
		return false
	}
	if f.Scheme != "" && f.Scheme != doc.URI.Scheme() {
		return false
	}
	if f.Pattern != "" && !matchPattern(f.Pattern, doc.URI.Path()) {
		return false
	}
	return true
}

func matchPattern(pattern, p string) bool {
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(p))
		return ok
	}
	if !strings.HasPrefix(pattern, "/") {
		p = strings.TrimPrefix(p, "/")
	}
	ok, _ := doublestar.Match(pattern, p)
	return ok
}

// ValidateSelector checks that every pattern in sel is a valid glob.
func ValidateSelector(sel protocol.DocumentSelector) error {
	for _, f := range sel {
		if f.Pattern != "" && !doublestar.ValidatePattern(f.Pattern) {
			return protocol.Errorf(protocol.CodeInvalidParams, "invalid document pattern %q", f.Pattern)
		}
	}
	return nil
}
