package registry

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
)

// Watcher evicts cached handles when their artifact files change.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	byPath   map[string][]string
}

// NewWatcher starts watching the directories of all configured artifacts.
// Directories that cannot be watched are logged and skipped.
func (r *Registry) NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create artifact watcher")
	}

	w := &Watcher{registry: r, watcher: fw, byPath: make(map[string][]string)}
	dirs := make(map[string]struct{})
	for _, id := range r.order {
		p := r.paths[id]
		w.byPath[p] = append(w.byPath[p], id)
		dirs[filepath.Dir(p)] = struct{}{}
	}

	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	for _, d := range sorted {
		if err := fw.Add(d); err != nil {
			r.logger.Warn("cannot watch artifact directory", log.ArtifactPathKey, d, "error", err.Error())
			continue
		}
		r.logger.Debug("watching artifact directory", log.ArtifactPathKey, d)
	}
	return w, nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.registry.logger.Warn("artifact watcher error", "error", err.Error())
		}
	}
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	ids := w.byPath[filepath.Clean(event.Name)]
	for _, id := range ids {
		if w.registry.Evict(id) {
			w.registry.logger.Info("artifact changed, handle evicted",
				log.ModelNameKey, id,
				log.ArtifactPathKey, event.Name,
				"event", event.Op.String(),
			)
		}
	}
}

// Watch runs a Watcher until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := r.NewWatcher()
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
