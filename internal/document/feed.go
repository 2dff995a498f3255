package document

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// Sink delivers one notification to a subscriber. A jsonrpc connection's
// Notify method is a Sink.
type Sink func(ctx context.Context, method string, params any) error

// SubscriberConfig describes what a subscriber wants to receive.
type SubscriberConfig struct {
	// Name identifies the subscriber in logs.
	Name string

	// SyncKind is the change representation the subscriber negotiated.
	// SyncNone suppresses didChange.
	SyncKind protocol.TextDocumentSyncKind

	// OpenClose requests didOpen and didClose even when SyncKind is
	// SyncNone.
	OpenClose bool

	// Save requests didSave; IncludeText adds the saved text.
	Save        bool
	IncludeText bool

	// Filter, when set, limits delivery to documents it accepts. The
	// decision is made on open and sticks until close.
	Filter func(Snapshot) bool
}

// Feed fans document events out to subscribers. Publish never blocks on a
// subscriber: each one has its own queue and goroutine, so a slow
// subscriber only delays itself.
type Feed struct {
	mu     sync.Mutex
	subs   []*Subscription
	logger *zap.Logger
}

// NewFeed creates a feed. A nil logger disables logging.
func NewFeed(logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{logger: logger}
}

// Subscribe starts delivering events published from now on to sink.
// Store.Subscribe also replays documents that are already open.
func (f *Feed) Subscribe(cfg SubscriberConfig, sink Sink) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		cfg:      cfg,
		sink:     sink,
		feed:     f,
		logger:   f.logger.With(zap.String("subscriber", cfg.Name)),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		accepted: make(map[protocol.DocumentURI]bool),
	}

	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()

	go s.run()
	return s
}

// Publish queues ev for every subscriber.
func (f *Feed) Publish(ev Event) {
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()

	for _, s := range subs {
		s.enqueue(item{event: ev})
	}
}

// Len returns the number of subscribers.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Flush waits until every subscriber has delivered the events published
// before the call. Subscriptions that end meanwhile are skipped.
func (f *Feed) Flush(ctx context.Context) error {
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()

	for _, s := range subs {
		if err := s.Flush(ctx); err != nil && !errors.Is(err, ErrUnsubscribed) {
			return err
		}
	}
	return nil
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == s {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

type item struct {
	event   Event
	barrier chan struct{}
}

// Subscription is one subscriber's ordered delivery queue.
type Subscription struct {
	cfg    SubscriberConfig
	sink   Sink
	feed   *Feed
	logger *zap.Logger

	mu    sync.Mutex
	queue []item
	wake  chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	// accepted is only touched by the delivery goroutine
	accepted map[protocol.DocumentURI]bool
}

// replay queues didOpen for documents that were open before the
// subscription started.
func (s *Subscription) replay(docs []Snapshot) {
	for _, doc := range docs {
		s.enqueue(item{event: Event{Kind: EventOpen, Snapshot: doc}})
	}
}

// Flush waits until every event queued before the call was delivered.
func (s *Subscription) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !s.enqueue(item{barrier: barrier}) {
		return ErrUnsubscribed
	}
	select {
	case <-barrier:
		return nil
	case <-s.done:
		return ErrUnsubscribed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe stops delivery. Queued events are dropped.
func (s *Subscription) Unsubscribe() {
	s.feed.remove(s)
	s.stop()
}

// Done is closed when the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) stop() {
	s.stopOnce.Do(s.cancel)
}

func (s *Subscription) enqueue(it item) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	s.queue = append(s.queue, it)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, it := range batch {
			if s.ctx.Err() != nil {
				return
			}
			if it.barrier != nil {
				close(it.barrier)
				continue
			}
			s.deliver(it.event)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
	}
}

func (s *Subscription) deliver(ev Event) {
	uri := ev.Snapshot.URI
	switch ev.Kind {
	case EventOpen:
		if s.cfg.Filter != nil && !s.cfg.Filter(ev.Snapshot) {
			return
		}
		s.accepted[uri] = true
	default:
		if !s.accepted[uri] {
			return
		}
		if ev.Kind == EventClose {
			delete(s.accepted, uri)
		}
	}

	method, params, ok := s.translate(ev)
	if !ok {
		return
	}
	if err := s.sink(s.ctx, method, params); err != nil {
		s.logger.Warn("document notification failed",
			zap.String("method", method),
			zap.String("uri", string(uri)),
			zap.Error(err),
		)
	}
}

// translate converts an event into the notification this subscriber
// expects.
func (s *Subscription) translate(ev Event) (string, any, bool) {
	wantsOpenClose := s.cfg.OpenClose || s.cfg.SyncKind != protocol.SyncNone
	doc := ev.Snapshot

	switch ev.Kind {
	case EventOpen:
		if !wantsOpenClose {
			return "", nil, false
		}
		return protocol.MethodDidOpen, protocol.DidOpenTextDocumentParams{TextDocument: doc.Item()}, true

	case EventClose:
		if !wantsOpenClose {
			return "", nil, false
		}
		return protocol.MethodDidClose, protocol.DidCloseTextDocumentParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI},
		}, true

	case EventSave:
		if !s.cfg.Save {
			return "", nil, false
		}
		params := protocol.DidSaveTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI}}
		if s.cfg.IncludeText {
			text := doc.Text
			if ev.Saved != nil {
				text = *ev.Saved
			}
			params.Text = &text
		}
		return protocol.MethodDidSave, params, true

	case EventChange:
		var changes []protocol.TextDocumentContentChangeEvent
		switch s.cfg.SyncKind {
		case protocol.SyncFull:
			changes = []protocol.TextDocumentContentChangeEvent{{Text: doc.Text}}
		case protocol.SyncIncremental:
			if allIncremental(ev.Changes) {
				changes = ev.Changes
			} else {
				changes = incrementalChanges(ev.Previous, doc.Text)
			}
		default:
			return "", nil, false
		}
		if changes == nil {
			changes = []protocol.TextDocumentContentChangeEvent{}
		}
		return protocol.MethodDidChange, protocol.DidChangeTextDocumentParams{
			TextDocument:   doc.Identifier(),
			ContentChanges: changes,
		}, true
	}
	return "", nil, false
}

func allIncremental(changes []protocol.TextDocumentContentChangeEvent) bool {
	for _, c := range changes {
		if c.IsFull() {
			return false
		}
	}
	return true
}
