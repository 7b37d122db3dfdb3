package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"neurond/internal/logging"
)

// Watcher watches .neurond/config.yaml for changes and re-applies the
// auto-approval policy at runtime. It watches the containing directory
// because editors replace files on save, which breaks per-file watches.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	workspace   string
	onReload    func(*Config)
	debounceDur time.Duration
	lastEvent   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	// Stats for debugging
	reloads int
	errors  int
}

// NewWatcher creates a config watcher for the given workspace.
// onReload is invoked with the freshly loaded config after each change.
func NewWatcher(workspace string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		workspace:   workspace,
		onReload:    onReload,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(Path(w.workspace))
	if err := w.watcher.Add(dir); err != nil {
		// Directory may not exist yet; lazily re-added on next Start
		logging.Get(logging.CategoryBoot).Warn("config watcher: initial watch failed: %v", err)
	} else {
		logging.Boot("config watcher: watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	w.watcher.Close()
}

// Reloads returns how many reloads have fired.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	target := Path(w.workspace)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(target) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			if time.Since(w.lastEvent) < w.debounceDur {
				w.mu.Unlock()
				continue
			}
			w.lastEvent = time.Now()
			w.mu.Unlock()

			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.errors++
			w.mu.Unlock()
			logging.Get(logging.CategoryBoot).Warn("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.workspace)
	if err != nil {
		w.mu.Lock()
		w.errors++
		w.mu.Unlock()
		logging.Get(logging.CategoryBoot).Warn("config watcher: reload failed, keeping previous config: %v", err)
		return
	}

	_ = logging.ReloadConfig()

	w.mu.Lock()
	w.reloads++
	cb := w.onReload
	w.mu.Unlock()

	logging.Boot("config watcher: reloaded config (yolo=%v, low_risk=%v)",
		cfg.Coordinator.YoloMode, cfg.Coordinator.AutoApproveLowRisk)
	logging.Audit().PolicyEvent(logging.AuditPolicyReload, "config-watcher", "config reloaded from disk")

	if cb != nil {
		cb(cfg)
	}
}
