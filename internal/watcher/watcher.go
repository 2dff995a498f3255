// Package watcher reports changes to workspace files as
// workspace/didChangeWatchedFiles events.
//
// Directories are watched recursively with fsnotify. Paths are filtered by
// doublestar globs relative to the watched root, and rapid changes are
// coalesced: all changes within the debounce window are delivered as one
// batch, with at most one event per file.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Errors returned by watcher operations.
var (
	ErrClosed       = errors.New("watcher: closed")
	ErrPathNotExist = errors.New("watcher: path does not exist")
)

// DefaultDelay is the default debounce window.
const DefaultDelay = 100 * time.Millisecond

// Handler receives a batch of file events.
type Handler func(events []protocol.FileEvent)

// Watcher watches workspace directories.
type Watcher struct {
	fs      *fsnotify.Watcher
	handler Handler
	globs   []string
	delay   time.Duration
	hidden  bool
	logger  *zap.Logger

	mu      sync.Mutex
	roots   []string
	pending map[string]protocol.FileChangeType
	order   []string
	timer   *time.Timer
	closed  bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithGlobs limits events to paths matching any of the globs. Without globs
// every file is reported.
func WithGlobs(globs ...string) Option {
	return func(w *Watcher) {
		w.globs = append(w.globs, globs...)
	}
}

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithHidden includes dot files and directories.
func WithHidden() Option {
	return func(w *Watcher) {
		w.hidden = true
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher that delivers batches to handler.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:      fsw,
		handler: handler,
		delay:   DefaultDelay,
		logger:  zap.NewNop(),
		pending: make(map[string]protocol.FileChangeType),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, g := range w.globs {
		if !doublestar.ValidatePattern(g) {
			fsw.Close()
			return nil, fmt.Errorf("%w: %s", doublestar.ErrBadPattern, g)
		}
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// WatchRecursive watches root and every directory below it.
func (w *Watcher) WatchRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()

	if !info.IsDir() {
		return w.fs.Add(abs)
	}
	return w.addTree(abs)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.skipHidden(p) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			w.logger.Debug("watch directory", zap.String("path", p), zap.Error(err))
		}
		return nil
	})
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Close stops watching. Pending events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]protocol.FileChangeType)
	w.order = nil
	w.mu.Unlock()

	w.wg.Wait()
	return w.fs.Close()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.skipHidden(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addTree(ev.Name)
			return
		}
	}
	typ, ok := changeType(ev.Op)
	if !ok || !w.matches(ev.Name) {
		return
	}
	w.queue(ev.Name, typ)
}

func changeType(op fsnotify.Op) (protocol.FileChangeType, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return protocol.FileDeleted, true
	case op.Has(fsnotify.Create):
		return protocol.FileCreated, true
	case op.Has(fsnotify.Write):
		return protocol.FileChanged, true
	}
	return 0, false
}

// queue coalesces an event into the pending batch. A create followed by a
// change stays a create; a create followed by a delete cancels out.
func (w *Watcher) queue(path string, typ protocol.FileChangeType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	prev, seen := w.pending[path]
	switch {
	case !seen:
		w.pending[path] = typ
		w.order = append(w.order, path)
	case prev == protocol.FileCreated && typ == protocol.FileChanged:
	case prev == protocol.FileCreated && typ == protocol.FileDeleted:
		delete(w.pending, path)
	case prev == protocol.FileDeleted && typ == protocol.FileCreated:
		w.pending[path] = protocol.FileChanged
	default:
		w.pending[path] = typ
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, w.fire)
	} else {
		w.timer.Reset(w.delay)
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	events := make([]protocol.FileEvent, 0, len(w.pending))
	for _, p := range w.order {
		if typ, ok := w.pending[p]; ok {
			events = append(events, protocol.FileEvent{URI: protocol.FilePathToURI(p), Type: typ})
		}
	}
	w.pending = make(map[string]protocol.FileChangeType)
	w.order = nil
	w.timer = nil
	w.mu.Unlock()

	if len(events) > 0 && w.handler != nil {
		w.handler(events)
	}
}

// Flush delivers pending events now.
func (w *Watcher) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.fire()
}

func (w *Watcher) skipHidden(path string) bool {
	if w.hidden {
		return false
	}
	base := filepath.Base(path)
	return len(base) > 1 && base[0] == '.'
}

// matches reports whether path passes the glob filter. Globs are matched
// against the path relative to each root.
func (w *Watcher) matches(path string) bool {
	if len(w.globs) == 0 {
		return true
	}
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()

	candidates := []string{filepath.ToSlash(path)}
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			candidates = append(candidates, filepath.ToSlash(rel))
		}
	}
	for _, g := range w.globs {
		for _, c := range candidates {
			if ok, _ := doublestar.Match(g, c); ok {
				return true
			}
		}
	}
	return false
}

// Paths converts a batch to file paths, sorted. It is a convenience for
// logging and tests.
func Paths(events []protocol.FileEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, protocol.URIToFilePath(e.URI))
	}
	sort.Strings(out)
	return out
}
