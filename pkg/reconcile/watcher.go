package reconcile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ansel/lore/pkg/docstore"
)

// DefaultDebounce is the quiet period a path must hold before its pending
// event fires. Editors commonly produce bursts of writes per save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher translates file system events under the store root into engine
// calls. Events are debounced per path; when the timer fires the path is
// stat-ed to decide between reconcile and remove, which also settles rename
// sequences (old path gone, new path present) without special-casing them.
type Watcher struct {
	engine   *Engine
	store    *docstore.Store
	debounce time.Duration
	logger   zerolog.Logger

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	pending  map[string]*time.Timer
	settleWg sync.WaitGroup

	done chan struct{}
}

// NewWatcher creates a watcher over the store's root. A non-positive
// debounce falls back to DefaultDebounce.
func NewWatcher(engine *Engine, store *docstore.Store, debounce time.Duration, logger zerolog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		engine:   engine,
		store:    store,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// Start begins watching the store root and every subdirectory. Directories
// created later are added as their create events arrive.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw

	err = filepath.WalkDir(w.store.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch store tree: %w", err)
	}

	go w.loop()
	w.logger.Info().Str("root", w.store.Root()).Dur("debounce", w.debounce).Msg("File watcher started")
	return nil
}

// Stop shuts the watcher down, cancels pending timers and waits for settle
// handlers already in flight.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fsw != nil {
		w.fsw.Close()
	}

	w.mu.Lock()
	for path, timer := range w.pending {
		// A stopped timer never runs its callback, so its wait-group slot
		// is released here; a timer that already fired releases its own.
		if timer.Stop() {
			w.settleWg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.settleWg.Wait()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories need their own watch; fsnotify does not recurse.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.schedule(event.Name)
}

// schedule arms (or re-arms) the debounce timer for a path. Only the final
// state of the file matters, so later events simply push the timer back.
func (w *Watcher) schedule(fullPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[fullPath]; ok {
		timer.Reset(w.debounce)
		return
	}

	// The wait-group slot is taken while the timer is armed, so Stop's Wait
	// always covers a settle that is just starting.
	w.settleWg.Add(1)
	w.pending[fullPath] = time.AfterFunc(w.debounce, func() {
		defer w.settleWg.Done()

		w.mu.Lock()
		delete(w.pending, fullPath)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		w.settle(fullPath)
	})
}

// settle decides what a quiesced path means now: present means reconcile,
// absent means remove.
func (w *Watcher) settle(fullPath string) {
	relPath, err := w.store.Rel(fullPath)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", fullPath).Msg("Ignoring event outside store root")
		return
	}

	ctx := context.Background()
	if _, err := os.Stat(fullPath); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to stat changed path")
			return
		}
		if err := w.engine.RemovePath(ctx, relPath); err != nil {
			w.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to remove deleted document")
		}
		return
	}

	if err := w.engine.ReconcilePath(ctx, relPath); err != nil {
		w.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to reconcile changed document")
	}
}
