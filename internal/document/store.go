package document

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// Store tracks open documents. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentURI]*entry

	syncKind protocol.TextDocumentSyncKind
	feed     *Feed
	logger   *zap.Logger
	now      func() time.Time
}

// entry guards a single document. Its lock serializes mutations on one
// URI and is held while the mutation is published.
type entry struct {
	mu     sync.Mutex
	snap   Snapshot
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithSyncKind selects how didChange versions are checked. Incremental
// stores require every change to increment the version by exactly one;
// full stores accept any greater version. The default is incremental.
func WithSyncKind(kind protocol.TextDocumentSyncKind) Option {
	return func(s *Store) {
		s.syncKind = kind
	}
}

// WithFeed publishes every accepted mutation to feed instead of a feed
// owned by the store.
func WithFeed(feed *Feed) Option {
	return func(s *Store) {
		s.feed = feed
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

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		docs:     make(map[protocol.DocumentURI]*entry),
		syncKind: protocol.SyncIncremental,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.feed == nil {
		s.feed = NewFeed(s.logger)
	}
	return s
}

// SyncKind returns the store's version checking mode.
func (s *Store) SyncKind() protocol.TextDocumentSyncKind {
	return s.syncKind
}

// Open starts tracking a document.
func (s *Store) Open(item protocol.TextDocumentItem) (Snapshot, error) {
	if item.URI == "" {
		return Snapshot{}, protocol.Errorf(protocol.CodeInvalidParams, "document uri is empty")
	}
	if item.Version < 0 {
		return Snapshot{}, protocol.Errorf(protocol.CodeInvalidParams, "negative version %d", item.Version)
	}

	now := s.now()
	e := &entry{snap: Snapshot{
		URI:        item.URI,
		LanguageID: item.LanguageID,
		Version:    item.Version,
		Text:       item.Text,
		OpenedAt:   now,
		ModifiedAt: now,
	}}

	s.mu.Lock()
	if old, exists := s.docs[item.URI]; exists {
		old.mu.Lock()
		closed := old.closed
		old.mu.Unlock()
		if !closed {
			s.mu.Unlock()
			return Snapshot{}, ErrAlreadyOpen
		}
	}
	s.docs[item.URI] = e
	e.mu.Lock()
	s.mu.Unlock()
	defer e.mu.Unlock()

	s.publish(Event{Kind: EventOpen, Snapshot: e.snap})
	s.logger.Debug("document opened",
		zap.String("uri", string(item.URI)),
		zap.String("language", item.LanguageID),
		zap.Int32("version", item.Version),
	)
	return e.snap, nil
}

// Change applies content changes in array order and moves the document to
// version. The document is unchanged if any change fails.
func (s *Store) Change(id protocol.VersionedTextDocumentIdentifier, changes []protocol.TextDocumentContentChangeEvent) (Snapshot, error) {
	e, err := s.lock(id.URI)
	if err != nil {
		return Snapshot{}, err
	}
	defer e.mu.Unlock()

	if err := s.checkVersion(e.snap.Version, id.Version); err != nil {
		return Snapshot{}, err
	}

	text := e.snap.Text
	for i, change := range changes {
		if change.IsFull() {
			text = change.Text
			continue
		}
		text, err = protocol.ApplyEdit(text, *change.Range, change.Text)
		if err != nil {
			return Snapshot{}, protocol.Errorf(protocol.CodeInvalidParams, "change %d: %v", i, err)
		}
	}

	prev := e.snap
	e.snap.Text = text
	e.snap.Version = id.Version
	e.snap.ModifiedAt = s.now()

	s.publish(Event{Kind: EventChange, Snapshot: e.snap, Previous: prev.Text, Changes: changes})
	return e.snap, nil
}

// Edit applies text edits whose ranges all refer to the current text, as
// in a workspace edit, and advances the version by one. Overlapping edits
// are rejected.
func (s *Store) Edit(uri protocol.DocumentURI, edits []protocol.TextEdit) (Snapshot, error) {
	e, err := s.lock(uri)
	if err != nil {
		return Snapshot{}, err
	}
	defer e.mu.Unlock()

	if e.snap.Version == math.MaxInt32 {
		return Snapshot{}, protocol.Errorf(protocol.CodeStaleVersion, "%s: no version left after %d", uri, e.snap.Version)
	}
	text, err := applyTextEdits(e.snap.Text, edits)
	if err != nil {
		return Snapshot{}, err
	}

	prev := e.snap
	e.snap.Text = text
	e.snap.Version++
	e.snap.ModifiedAt = s.now()

	changes := []protocol.TextDocumentContentChangeEvent{{Text: text}}
	s.publish(Event{Kind: EventChange, Snapshot: e.snap, Previous: prev.Text, Changes: changes})
	return e.snap, nil
}

// Save records a save of the document. text, when set, is the saved
// content and is passed on to subscribers that asked for it.
func (s *Store) Save(uri protocol.DocumentURI, text *string) error {
	e, err := s.lock(uri)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	ev := Event{Kind: EventSave, Snapshot: e.snap}
	if text != nil {
		ev.Saved = text
	}
	s.publish(ev)
	return nil
}

// Close stops tracking a document.
func (s *Store) Close(uri protocol.DocumentURI) error {
	e, err := s.lock(uri)
	if err != nil {
		return err
	}
	e.closed = true
	s.publish(Event{Kind: EventClose, Snapshot: e.snap})
	e.mu.Unlock()

	// the entry lock is released first; Subscribe takes the store lock
	// before entry locks
	s.mu.Lock()
	if s.docs[uri] == e {
		delete(s.docs, uri)
	}
	s.mu.Unlock()

	s.logger.Debug("document closed", zap.String("uri", string(uri)))
	return nil
}

// Subscribe attaches a subscriber to the store's feed and replays didOpen
// for every document already open. No mutation can slip between the replay
// and the first live event.
func (s *Store) Subscribe(cfg SubscriberConfig, sink Sink) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []*entry
	for _, e := range s.docs {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			continue
		}
		open = append(open, e)
	}
	defer func() {
		for _, e := range open {
			e.mu.Unlock()
		}
	}()

	docs := make([]Snapshot, 0, len(open))
	for _, e := range open {
		docs = append(docs, e.snap)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].URI < docs[j].URI })

	sub := s.feed.Subscribe(cfg, sink)
	sub.replay(docs)
	return sub
}

// Feed returns the feed mutations are published to.
func (s *Store) Feed() *Feed {
	return s.feed
}

// Snapshot returns a copy of an open document.
func (s *Store) Snapshot(uri protocol.DocumentURI) (Snapshot, bool) {
	s.mu.RLock()
	e, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Snapshot{}, false
	}
	return e.snap, true
}

// IsOpen reports whether uri is open.
func (s *Store) IsOpen(uri protocol.DocumentURI) bool {
	_, ok := s.Snapshot(uri)
	return ok
}

// List returns snapshots of all open documents sorted by URI.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.docs))
	for _, e := range s.docs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.closed {
			out = append(out, e.snap)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Clear drops every document without publishing close events. It is used
// when the session is torn down.
func (s *Store) Clear() {
	s.mu.Lock()
	docs := s.docs
	s.docs = make(map[protocol.DocumentURI]*entry)
	s.mu.Unlock()

	for _, e := range docs {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
	}
}

// lock returns the locked entry for uri.
func (s *Store) lock(uri protocol.DocumentURI) (*entry, error) {
	s.mu.RLock()
	e, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, protocol.Errorf(protocol.CodeDocumentNotFound, "document not open: %s", uri)
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, protocol.Errorf(protocol.CodeDocumentNotFound, "document not open: %s", uri)
	}
	return e, nil
}

func (s *Store) checkVersion(last, next int32) error {
	if next < 0 {
		return protocol.Errorf(protocol.CodeInvalidParams, "negative version %d", next)
	}
	if s.syncKind == protocol.SyncIncremental {
		if next != last+1 {
			return protocol.Errorf(protocol.CodeStaleVersion, "version %d does not follow %d", next, last)
		}
		return nil
	}
	if next <= last {
		return protocol.Errorf(protocol.CodeStaleVersion, "version %d does not exceed %d", next, last)
	}
	return nil
}

func (s *Store) publish(ev Event) {
	s.feed.Publish(ev)
}

// applyTextEdits applies edits whose ranges refer to the original text.
func applyTextEdits(text string, edits []protocol.TextEdit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}
	idx := protocol.NewLineIndex(text)

	type span struct {
		start, end int
		newText    string
	}
	spans := make([]span, 0, len(edits))
	for i, edit := range edits {
		if err := edit.Range.Validate(); err != nil {
			return "", protocol.Errorf(protocol.CodeInvalidParams, "edit %d: %v", i, err)
		}
		spans = append(spans, span{
			start:   idx.Offset(edit.Range.Start),
			end:     idx.Offset(edit.Range.End),
			newText: edit.NewText,
		})
	}
	// stable keeps inserts at the same offset in array order
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b []byte
	pos := 0
	for i, sp := range spans {
		if sp.start < pos {
			return "", protocol.Errorf(protocol.CodeInvalidParams, "edit %d overlaps a previous edit", i)
		}
		b = append(b, text[pos:sp.start]...)
		b = append(b, sp.newText...)
		pos = sp.end
	}
	b = append(b, text[pos:]...)
	return string(b), nil
}
