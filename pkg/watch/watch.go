// Package watch re-runs a callback when a single file is rewritten.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = time.Second

// Start watches the directory containing path and calls fn once events for
// path have been quiet for debounce. The directory is watched rather than the
// file so replacements by rename are seen. Start returns once the watch is in
// place; the loop stops when ctx is done.
func Start(ctx context.Context, path string, debounce time.Duration, fn func(context.Context)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	log.Printf("watching file=%s debounce=%s", target, debounce)
	go loop(ctx, w, target, debounce, fn)
	return nil
}

func loop(ctx context.Context, w *fsnotify.Watcher, target string, debounce time.Duration, fn func(context.Context)) {
	defer w.Close()
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !relevant(ev, target) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("watch error file=%s: %v", target, err)
		case <-timer.C:
			fn(ctx)
		}
	}
}

func relevant(ev fsnotify.Event, target string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return sameFile(name, target)
}
