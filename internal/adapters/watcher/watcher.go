// Package watcher reloads served GeoPackage files when they change on disk.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a settled change to one GeoPackage file.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per settled event. Calls are serialized.
type Handler func(ctx context.Context, event Event) error

// sidecars are the files SQLite keeps next to a database. A change to one
// of them is a change to the GeoPackage itself.
var sidecars = []string{"-journal", "-wal", "-shm"}

type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Watcher watches directories for GeoPackage file changes and debounces
// the bursts of writes SQLite produces for a single commit.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	paths     []string
	debounce  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingEvent

	dispatch sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		paths:     cfg.Paths,
		debounce:  cfg.Debounce,
		now:       time.Now,
		pending:   make(map[string]*pendingEvent),
		done:      make(chan struct{}),
	}, nil
}

// Start starts watching the configured paths. Paths that cannot be watched
// are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher and waits for its loops to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent records a raw fsnotify event against its GeoPackage.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	path, sidecar, ok := packagePath(event.Name)
	if !ok {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	op := fsnotifyOpToOperation(event.Op)
	if sidecar {
		// the database file itself is still there
		op = OpModify
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	existing, exists := w.pending[path]
	if !exists {
		w.pending[path] = &pendingEvent{timestamp: w.now(), op: op}
		return
	}
	mergePending(existing, op, w.now())
}

// mergePending folds a new operation into a pending one.
func mergePending(existing *pendingEvent, newOp Operation, at time.Time) {
	existing.timestamp = at

	switch {
	case existing.op == OpDelete && newOp != OpDelete:
		// deleted then written again: the file is back
		existing.op = OpCreate
	case newOp == OpDelete:
		existing.op = OpDelete
	case existing.op == OpCreate:
		// a create followed by writes is still a create
	default:
		existing.op = newOp
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(max(w.debounce/5, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending hands every settled event to the handler, oldest first.
func (w *Watcher) processPending(ctx context.Context) {
	ready := w.settled()
	if len(ready) == 0 {
		return
	}

	w.dispatch.Lock()
	defer w.dispatch.Unlock()

	for _, event := range ready {
		w.logger.Info("processing file event",
			"path", event.Path,
			"operation", event.Operation.String(),
		)
		if err := w.handler(ctx, event); err != nil {
			w.logger.Error("handler error",
				"path", event.Path,
				"operation", event.Operation.String(),
				"error", err,
			)
		}
	}
}

// settled removes and returns the events that have been quiet for at least
// the debounce interval.
func (w *Watcher) settled() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	type due struct {
		event Event
		at    time.Time
	}
	var ready []due
	for path, pending := range w.pending {
		if now.Sub(pending.timestamp) < w.debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, due{event: Event{Path: path, Operation: pending.op}, at: pending.timestamp})
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].at.Before(ready[j].at) })

	events := make([]Event, len(ready))
	for i, d := range ready {
		events[i] = d.event
	}
	return events
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// the file is gone from its original location
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

// packagePath maps an event path to the GeoPackage it belongs to. Hidden
// files, such as in-flight uploads, are ignored.
func packagePath(name string) (path string, sidecar bool, ok bool) {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return "", false, false
	}
	for _, suffix := range sidecars {
		if base, found := strings.CutSuffix(name, suffix); found {
			if isGeoPackageFile(base) {
				return base, true, true
			}
			return "", false, false
		}
	}
	if isGeoPackageFile(name) {
		return name, false, true
	}
	return "", false, false
}

// isGeoPackageFile checks if the path is a GeoPackage file.
func isGeoPackageFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gpkg")
}

// AddPath adds a directory to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}

	w.logger.Info("watching directory", "path", absPath)
	return nil
}

// RemovePath removes a directory from watching.
func (w *Watcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := w.fsWatcher.Remove(absPath); err != nil {
		return err
	}

	w.logger.Info("removed watch path", "path", absPath)
	return nil
}
