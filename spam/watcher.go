package spam

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/auroilion/roilion/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a classifier's rules whenever the rules file changes
type Watcher struct {
	watcher    *fsnotify.Watcher
	classifier *Classifier
	path       string

	// target is where path resolved to at the last load. Mounts that swap a symlinked
	// directory change it without an event on path itself.
	target string

	// OnReload, if set, is called after every reload attempt
	OnReload func(err error)
}

// NewWatcher watches the directory holding path so that editors which replace the file
// (write to temp, rename) are picked up as well as in place writes.
func NewWatcher(c *Classifier, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "spam: failed to resolve rules path")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "spam: failed to create file watcher")
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "spam: failed to watch %q", abs)
	}

	return &Watcher{watcher: w, classifier: c, path: abs, target: resolve(abs)}, nil
}

// Run blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !w.changed(event) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Spam.Watcher: watch error: %v", err)
		}
	}
}

// changed reports whether event touched the rules file, directly or through a symlink
func (w *Watcher) changed(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) == w.path {
		return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
	}

	target := resolve(w.path)
	if target == "" || target == w.target {
		return false
	}

	w.target = target
	return true
}

func resolve(path string) string {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return target
}

func (w *Watcher) reload() {
	err := w.load()
	metrics.SpamRulesReloads.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		log.Printf("Spam.Watcher: failed to reload %v, keeping previous rules: %v", w.path, err)
	} else {
		log.Printf("Spam.Watcher: reloaded rules from %v", w.path)
	}

	if w.OnReload != nil {
		w.OnReload(err)
	}
}

func (w *Watcher) load() error {
	r, err := LoadRulesFile(w.path)
	if err != nil {
		return err
	}
	return w.classifier.Reload(r)
}
