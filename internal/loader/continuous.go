package loader

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LoadedInstance is emitted by RunContinuous once per structurally-distinct
// manifest it loads, and once for each failed attempt (Err set).
type LoadedInstance struct {
	Manifest *Manifest
	Err      error
}

// RunContinuous re-fetches the manifest at manifestURL on each tick of
// interval. A manifest that differs structurally from the previous one has
// its modules delivered to receiver through the module jobs Load also runs,
// and a new LoadedInstance is emitted on out. A failed manifest fetch emits
// a LoadedInstance carrying only Err, on every tick that fails; a failed
// module job emits one carrying the manifest and Err, and that manifest is
// not tried again until it changes. Stops when ctx is done.
func (l *Loader) RunContinuous(ctx context.Context, applicationName, manifestURL string, interval time.Duration, receiver Receiver, out chan<- LoadedInstance) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var previous *Manifest
	tick := func() {
		m, err := l.loadManifest(ctx, applicationName, manifestURL)
		if err != nil {
			select {
			case out <- LoadedInstance{Err: err}:
			case <-ctx.Done():
			}
			return
		}
		if structurallyEqual(previous, m) {
			return
		}
		previous = m
		if err := l.runModuleJobs(ctx, applicationName, m, receiver); err != nil {
			select {
			case out <- LoadedInstance{Manifest: m, Err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- LoadedInstance{Manifest: m}:
		case <-ctx.Done():
		}
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// WatchPinnedManifest watches a local pinned-manifest file with fsnotify
// and sends its path on changed whenever it is written, created, or
// renamed into place — a dev-mode convenience additive to RunContinuous's
// polling, not a replacement for it. Grounded on internal/lua/engine.go's
// watchLoop. Stops when ctx is done; closes changed before returning.
func WatchPinnedManifest(ctx context.Context, path string, changed chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		defer close(changed)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					if _, err := os.Stat(path); err == nil {
						select {
						case changed <- path:
						case <-ctx.Done():
							return
						}
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
