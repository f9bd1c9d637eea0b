// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/holoscript/pkg/errutil"
)

// Watcher defaults.
const (
	DefaultDebounce  = 500 * time.Millisecond
	defaultRetries   = 5
	defaultRetryWait = 200 * time.Millisecond
	tickInterval     = 50 * time.Millisecond
)

// Watcher reloads scripts when their files change. A write or create loads
// or reloads the file; a remove or rename unloads it. Changes to one file
// are debounced so an editor's burst of writes triggers a single reload.
type Watcher struct {
	mgr       *Manager
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	retryWait time.Duration
	retries   uint64

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRetry sets how often and how far apart a load that fails to compile
// is retried. Files are often observed half written.
func WithRetry(retries uint64, wait time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.retries = retries
		w.retryWait = wait
	}
}

// NewWatcher creates a watcher for the manager's scripts directory.
func NewWatcher(mgr *Manager, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.In("script").Wrapf(err, "create file watcher")
	}
	w := &Watcher{
		mgr:       mgr,
		fsw:       fsw,
		debounce:  DefaultDebounce,
		retryWait: defaultRetryWait,
		retries:   defaultRetries,
		pending:   make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It returns once the directory is watched; events
// are handled on a background goroutine until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	dir := w.mgr.ScriptsDir()
	if err := w.fsw.Add(dir); err != nil {
		return oops.In("script").With("dir", dir).Wrapf(err, "watch scripts directory")
	}
	w.running = true

	w.wg.Add(1)
	go w.run(ctx)

	slog.Info("watching scripts directory", "dir", dir, "debounce", w.debounce)
	return nil
}

// Stop stops watching and waits for an in-flight reload to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.fsw.Close()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	if err := w.fsw.Close(); err != nil {
		slog.Warn("failed to close file watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(ev.Name)
	if w.mgr.extension != "" && filepath.Ext(name) != w.mgr.extension {
		return
	}

	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

// flush applies changes that have been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var due []string
	for name, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			due = append(due, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range due {
		w.apply(ctx, name)
	}
}

// apply brings the manager in line with the file's current state.
func (w *Watcher) apply(ctx context.Context, name string) {
	path := filepath.Join(w.mgr.ScriptsDir(), name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		if d, ok := w.mgr.Get(name); ok {
			if err := w.mgr.Unload(ctx, d); err != nil {
				errutil.LogError(slog.Default(), "failed to unload removed script", err)
			}
		}
		return
	}

	backoff := retry.WithMaxRetries(w.retries, retry.NewConstant(w.retryWait))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		if _, loaded := w.mgr.Get(name); loaded {
			_, err = w.mgr.Reload(ctx, name)
		} else {
			_, err = w.mgr.Load(ctx, name)
		}
		if CodeOf(err) == CodeCompileError {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		errutil.LogError(slog.Default(), "failed to apply script change", err)
		return
	}
	slog.Info("script change applied", "script", name)
}
