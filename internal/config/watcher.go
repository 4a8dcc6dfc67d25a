package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agilecore/boardsyncd/internal/errs"
	"github.com/agilecore/boardsyncd/internal/logging"
)

// MutableKnobs is the subset of Config that may change without a restart:
// rate-limit tuning and request/heartbeat timeouts. Connection caps and
// storage_root are fixed at startup — changing them live would invalidate
// invariants already relied on by open connections and existing pools.
type MutableKnobs struct {
	RateLimitWindow        time.Duration
	RateLimitMax           int
	RateLimitMaxViolations int
	RequestTimeout         time.Duration
	HeartbeatInterval      time.Duration
}

// ReloadCallback is invoked with the freshly reloaded mutable knobs.
type ReloadCallback func(MutableKnobs)

// Watcher watches the active config file and re-applies mutable knobs on
// change, debouncing rapid successive writes from editors/deploy tooling.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	callback ReloadCallback
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher on path. It does nothing until Start is
// called. A config not backed by a file (env-only) has no watcher to create;
// callers should skip NewWatcher in that case.
func NewWatcher(path string, cb ReloadCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(err, "create fsnotify watcher")
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, errs.Wrapf(err, "watch config file %s", path)
	}
	return &Watcher{
		path:     path,
		watcher:  fw,
		callback: cb,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the watch loop in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop tears down the fsnotify watcher and the watch loop.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	log := logging.Named("config")
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(log)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload(log interface {
	Infow(string, ...interface{})
	Warnw(string, ...interface{})
}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		Reset()
		cfg, err := LoadFromFile(w.path)
		if err != nil {
			log.Warnw("config reload failed, keeping previous knobs", "error", err)
			return
		}
		log.Infow("config reloaded", "path", w.path)
		w.callback(MutableKnobs{
			RateLimitWindow:        cfg.RateLimitWindow,
			RateLimitMax:           cfg.RateLimitMax,
			RateLimitMaxViolations: cfg.RateLimitMaxViolations,
			RequestTimeout:         cfg.RequestTimeout,
			HeartbeatInterval:      cfg.HeartbeatInterval,
		})
	})
}
