// Package filewatcher implements spec §4.10: a recursive fsnotify watch
// whose events are coalesced over a 50ms quiescent window and routed into
// cache invalidation plus build-watch notifications. Grounded on the
// teacher's internal/filewatcher.FileWatcher (recursive watch setup,
// doublestar exclude-pattern filtering) and internal/globwatcher (its
// cookie/debounce idea, here simplified to a timer-reset coalescing
// window instead of a cookie file), adapted to drop the client-interface
// callback model in favor of direct invalidation of the three daemon
// caches this spec defines.
package filewatcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/karrick/godirwalk"
)

// debounceWindow is the quiescent interval after which an accumulated
// batch of paths is processed (spec §4.10 "Coalescing").
const debounceWindow = 50 * time.Millisecond

// EventKind classifies a translated filesystem event.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventModify EventKind = "modify"
	EventRename EventKind = "rename"
	EventRemove EventKind = "remove"
)

// WatchEvent is the coalescer's unit of work.
type WatchEvent struct {
	Paths []string
	Kind  EventKind
}

// Invalidator receives per-path invalidation callbacks once a batch's
// debounce window elapses. The daemon wires this to its three caches.
type Invalidator interface {
	InvalidateResolverPath(path string)
	InvalidatePackageJSON(path string)
	InvalidateBuildPath(path string)
}

// Subscriber is a registered build-watch session: a wave in which any
// changed path has Root as a prefix sends one notification on Notify,
// regardless of how many paths changed underneath it (spec §4.10
// "Subscription").
type Subscriber struct {
	Root   string
	Notify chan<- time.Time
}

var defaultExcludes = []string{".git", "node_modules", ".howth"}

// Watcher owns a recursive fsnotify.Watcher plus the coalescing state
// machine. Zero value is not usable; construct with New.
type Watcher struct {
	logger hclog.Logger
	root   string

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	running   bool
	done      chan struct{}
	pending   map[string]bool
	timer     *time.Timer
	lastEvent time.Time

	subMu       sync.Mutex
	subscribers []*Subscriber

	inv Invalidator
}

// New constructs a Watcher rooted at root, invalidating via inv when
// events settle.
func New(logger hclog.Logger, root string, inv Invalidator) *Watcher {
	return &Watcher{logger: logger, root: root, inv: inv}
}

// ErrAlreadyRunning corresponds to spec §6's WATCH_ALREADY_RUNNING.
type ErrAlreadyRunning struct{}

func (ErrAlreadyRunning) Error() string { return "WATCH_ALREADY_RUNNING" }

// ErrNotRunning corresponds to WATCH_NOT_RUNNING.
type ErrNotRunning struct{}

func (ErrNotRunning) Error() string { return "WATCH_NOT_RUNNING" }

// Start begins the recursive watch. A no-op (spec §4.10 "Lifecycle") if
// already running returns ErrAlreadyRunning instead, per spec §6/§8
// "Watcher started twice" boundary behavior.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.running = true
	w.done = make(chan struct{})
	w.pending = map[string]bool{}

	go w.loop(fsw, w.done)
	return nil
}

// Stop drops the watcher and subscribers and resets state (spec §4.10
// "Lifecycle"). If not running, it changes nothing and returns
// ErrNotRunning.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrNotRunning{}
	}
	w.running = false
	fsw := w.fsw
	done := w.done
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(done)
	err := fsw.Close()

	w.subMu.Lock()
	w.subscribers = nil
	w.subMu.Unlock()

	return err
}

// Subscribe registers a build-watch session.
func (w *Watcher) Subscribe(sub *Subscriber) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.subscribers = append(w.subscribers, sub)
}

// Unsubscribe removes a previously registered session.
func (w *Watcher) Unsubscribe(sub *Subscriber) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for i, s := range w.subscribers {
		if s == sub {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			break
		}
	}
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if isExcluded(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(fsw, ev.Name)
				}
			}
			w.queue(ev.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("filewatcher error", "error", err)
			}
		}
	}
}

// queue adds a path to the pending batch and (re)starts the debounce
// timer — each new event within the window pushes the deadline out
// (spec §4.10: "After a 50ms quiescent window (no new event)").
func (w *Watcher) queue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		w.pending = map[string]bool{}
	}
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = map[string]bool{}
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	touchedRoots := map[string]bool{}
	for path := range batch {
		w.invalidateOne(path)
		touchedRoots[path] = true
	}

	w.notifySubscribers(touchedRoots)

	w.mu.Lock()
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// invalidateOne implements spec §4.10 steps a-c for a single changed path.
func (w *Watcher) invalidateOne(path string) {
	if w.inv == nil {
		return
	}
	w.inv.InvalidateResolverPath(path)
	if filepath.Base(path) == "package.json" {
		w.inv.InvalidatePackageJSON(path)
	}
	w.inv.InvalidateBuildPath(path)
}

// notifySubscribers fires one notification per wave per subscriber whose
// watched root is a prefix of at least one changed path (spec §4.10
// "Subscription").
func (w *Watcher) notifySubscribers(touched map[string]bool) {
	w.subMu.Lock()
	subs := append([]*Subscriber(nil), w.subscribers...)
	w.subMu.Unlock()

	now := time.Now()
	for _, sub := range subs {
		for path := range touched {
			if strings.HasPrefix(path, sub.Root) {
				select {
				case sub.Notify <- now:
				default:
				}
				break
			}
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if isExcluded(path) {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
}

func isExcluded(path string) bool {
	for _, ex := range defaultExcludes {
		if strings.Contains(path, string(filepath.Separator)+ex+string(filepath.Separator)) ||
			strings.HasSuffix(path, string(filepath.Separator)+ex) {
			return true
		}
	}
	return false
}
