package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/keel/pkg/core"
)

// DefaultDebounce is the quiet period before a changed category is verified.
const DefaultDebounce = 50 * time.Millisecond

// watchWorker re-verifies categories whose log file changes and reports the
// ones that no longer verify.
type watchWorker struct {
	*worker.BaseWorker
	log       *AuditLog
	pattern   string
	events    chan<- core.IntegrityEvent
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	delay     time.Duration
	cancel    context.CancelFunc
	onExit    func()
}

func newWatchWorker(log *AuditLog, pattern string, events chan<- core.IntegrityEvent) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("tamper-watcher"),
		log:        log,
		pattern:    pattern,
		events:     events,
		delay:      DefaultDebounce,
	}
}

// Watch starts a tamper watcher on the log directory. Only categories
// matching pattern (doublestar syntax, "*" for all) are checked. The
// returned channel receives an event for every failed verification and is
// closed when ctx is cancelled.
func (l *AuditLog) Watch(ctx context.Context, pattern string) (<-chan core.IntegrityEvent, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	events := make(chan core.IntegrityEvent)
	w := newWatchWorker(l, pattern, events)
	w.onExit = func() { close(events) }

	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	if err := initDir(w.log.Path, w.log.config); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.log.Path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.log.Path, err)
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(w.delay)
	w.log.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"pattern":           w.pattern,
		}
	})
}

// category maps a filesystem event to the category it touches.
// Returns "" for anything that is not a watched category log.
func (w *watchWorker) category(event fsnotify.Event) string {
	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, LogExt) || strings.HasPrefix(base, TempFilePrefix) {
		return ""
	}
	name := strings.TrimSuffix(base, LogExt)
	if ValidateCategory(name) != nil {
		return ""
	}
	if ok, _ := doublestar.Match(w.pattern, name); !ok {
		return ""
	}
	return name
}

// processFilesystemEvent schedules a verification for the touched category.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) bool {
	w.log.config.Logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}

	category := w.category(event)
	if category == "" {
		return false
	}

	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	w.debouncer.add(category, func() {
		w.check(ctx, category, removed)
	})
	return true
}

// check verifies category and forwards the result when it is not valid.
// It runs on the debouncer's goroutine.
func (w *watchWorker) check(ctx context.Context, category string, removed bool) {
	var res core.VerifyResult
	if removed && !w.log.exists(category) {
		res = core.VerifyResult{
			Category: category,
			Errors: []core.ChainError{{
				Kind:    core.TamperDetected,
				Message: "log file was removed or renamed",
			}},
		}
	} else {
		var err error
		res, err = w.log.Verify(ctx, category)
		if err != nil {
			if ctx.Err() == nil {
				w.handleWatcherError(fmt.Errorf("verify %s: %w", category, err))
			}
			return
		}
	}
	w.log.recordCheck()

	if res.Valid {
		return
	}
	w.log.config.Logger.Warn("integrity check failed", "category", category, "errors", len(res.Errors))
	w.sendEvent(ctx, core.IntegrityEvent{
		Category:  category,
		Result:    res,
		Timestamp: w.log.config.Clock().Unix(),
	})
}

// sendEvent delivers an event, protecting against channel closure during shutdown.
func (w *watchWorker) sendEvent(ctx context.Context, event core.IntegrityEvent) {
	defer func() {
		_ = recover()
	}()
	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}

func (w *watchWorker) handleWatcherError(err error) {
	w.log.config.Logger.Error("tamper watcher error", "error", err)
	if w.log.config.ErrorHandler != nil {
		w.log.config.ErrorHandler(err)
	}
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)

			// Full stack only when debugging.
			if w.log.config.Logger.Enabled(ctx, slog.LevelDebug) {
				w.log.config.Logger.Error("watcher panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				w.log.config.Logger.Error("watcher panic", "error", panicErr)
			}
			err = panicErr
		}
	}()
	defer func() {
		if w.onExit != nil {
			w.onExit()
		}
	}()
	defer w.log.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.mainEventLoop(ctx)

	// In-flight checks must finish before the events channel can be closed.
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) mainEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}
