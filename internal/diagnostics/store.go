package diagnostics

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// ErrInvalidDiagnostic is returned for a diagnostic with a bad range or
// severity.
var ErrInvalidDiagnostic = errors.New("diagnostics: invalid diagnostic")

// Set is the diagnostics one source published for one document.
type Set struct {
	URI         protocol.DocumentURI
	Source      string
	Version     *int32
	Diagnostics []protocol.Diagnostic
	UpdatedAt   time.Time
}

// Change describes a replaced set. An empty Diagnostics slice means the
// source no longer reports anything for the document.
type Change struct {
	URI         protocol.DocumentURI
	Source      string
	Diagnostics []protocol.Diagnostic
}

// Counts are the number of diagnostics per severity.
type Counts struct {
	Errors       int
	Warnings     int
	Information  int
	Hints        int
	Unclassified int
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	return c.Errors + c.Warnings + c.Information + c.Hints + c.Unclassified
}

// Store holds published diagnostics. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	sets        table[Set]
	maxPerSet   int
	minSeverity protocol.DiagnosticSeverity
	onChange    func(Change)
	logger      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxPerSource caps the diagnostics kept per document and source.
func WithMaxPerSource(n int) Option {
	return func(s *Store) {
		s.maxPerSet = n
	}
}

// WithMinSeverity drops diagnostics less severe than sev. Diagnostics
// without a severity are always kept.
func WithMinSeverity(sev protocol.DiagnosticSeverity) Option {
	return func(s *Store) {
		s.minSeverity = sev
	}
}

// WithChangeHandler sets a callback invoked after every replacement,
// outside the store lock.
func WithChangeHandler(fn func(Change)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty diagnostics store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sets:        newTable[Set](),
		maxPerSet:   1000,
		minSeverity: protocol.SeverityHint,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "diagnostics"))
	return s
}

// Publish replaces the diagnostics source reported for params.URI.
func (s *Store) Publish(source string, params protocol.PublishDiagnosticsParams) error {
	for _, d := range params.Diagnostics {
		if err := d.Range.Validate(); err != nil {
			return protocol.Errorf(protocol.CodeInvalidParams, "%v: %v", ErrInvalidDiagnostic, err)
		}
		if d.Severity < 0 || d.Severity > protocol.SeverityHint {
			return protocol.Errorf(protocol.CodeInvalidParams, "%v: severity %d", ErrInvalidDiagnostic, d.Severity)
		}
	}

	kept := s.filter(params.Diagnostics)

	s.mu.Lock()
	if len(kept) == 0 {
		s.sets.delete(params.URI, source)
	} else {
		s.sets.put(params.URI, source, Set{
			URI:         params.URI,
			Source:      source,
			Version:     params.Version,
			Diagnostics: kept,
			UpdatedAt:   time.Now(),
		})
	}
	s.mu.Unlock()

	s.logger.Debug("diagnostics published",
		zap.String("uri", string(params.URI)),
		zap.String("source", source),
		zap.Int("count", len(kept)),
	)
	s.notify(Change{URI: params.URI, Source: source, Diagnostics: kept})
	return nil
}

func (s *Store) filter(in []protocol.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(in))
	for _, d := range in {
		if d.Severity != 0 && d.Severity > s.minSeverity {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.Start.Before(out[j].Range.Start)
	})
	if s.maxPerSet > 0 && len(out) > s.maxPerSet {
		out = out[:s.maxPerSet]
	}
	return out
}

func (s *Store) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

// Get returns the set source published for uri.
func (s *Store) Get(uri protocol.DocumentURI, source string) (Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets.get(uri, source)
	if !ok {
		return Set{}, false
	}
	set.Diagnostics = append([]protocol.Diagnostic(nil), set.Diagnostics...)
	return set, true
}

// ForDocument returns the diagnostics of every source for uri, ordered by
// position. Equal positions keep source name order.
func (s *Store) ForDocument(uri protocol.DocumentURI) []protocol.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []protocol.Diagnostic
	for _, src := range s.sets.sources(uri) {
		set, _ := s.sets.get(uri, src)
		out = append(out, set.Diagnostics...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.Start.Before(out[j].Range.Start)
	})
	return out
}

// Sources returns the sources with diagnostics for uri.
func (s *Store) Sources(uri protocol.DocumentURI) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets.sources(uri)
}

// Documents returns every document with diagnostics.
func (s *Store) Documents() []protocol.DocumentURI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets.uris()
}

// Count returns per-severity counts for uri across all sources.
func (s *Store) Count(uri protocol.DocumentURI) Counts {
	var c Counts
	for _, d := range s.ForDocument(uri) {
		switch d.Severity {
		case protocol.SeverityError:
			c.Errors++
		case protocol.SeverityWarning:
			c.Warnings++
		case protocol.SeverityInformation:
			c.Information++
		case protocol.SeverityHint:
			c.Hints++
		default:
			c.Unclassified++
		}
	}
	return c
}

// RemoveSource drops everything source published, for example when its
// extension exits.
func (s *Store) RemoveSource(source string) {
	s.mu.Lock()
	uris := s.sets.dropSource(source)
	s.mu.Unlock()
	for _, uri := range uris {
		s.notify(Change{URI: uri, Source: source})
	}
}

// Clear drops all diagnostics without notifying.
func (s *Store) Clear() {
	s.mu.Lock()
	s.sets.clear()
	s.mu.Unlock()
}
