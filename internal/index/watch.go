package index

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scooter-lacroix/leindex/internal/debug"
)

// Watcher re-runs the incremental pipeline when source files change.
// Events are debounced so an editor save burst triggers one run.
type Watcher struct {
	orch     *Orchestrator
	root     string
	debounce time.Duration

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher prepares (but does not start) a watcher over the project root.
func NewWatcher(orch *Orchestrator, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		orch:     orch,
		root:     orch.cfg.Project.Root,
		debounce: debounce,
		fw:       fw,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory tree and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(w.root, path)
		if rerr == nil && rel != "." {
			if excluded(w.orch.cfg, filepath.ToSlash(rel)+"/") || excluded(w.orch.cfg, filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		return w.fw.Add(path)
	})
	if err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories join the watch set.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.fw.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := w.orch.IndexProject(ctx, false); err != nil {
				debug.Logf("watch: incremental reindex failed: %v", err)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			debug.Logf("watch: %v", err)
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
