package estimator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zegonz1/housing-tbs/log"
)

// Watch refits whenever the dataset file changes, until ctx is done. Bursts of events within
// the debounce window trigger one refit. A failed refit keeps the current pipeline.
func (e *Estimator) Watch(ctx context.Context) error {
	path, err := filepath.Abs(e.cfg.Dataset.Path)
	if err != nil {
		return errors.WithStack(err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStack(err)
	}
	defer watcher.Close()
	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(path))
	}

	debounce := e.cfg.Dataset.WatchDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	log.Logger().Info("watching dataset", zap.String("path", path), zap.Duration("debounce", debounce))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Logger().Warn("dataset watcher error", zap.Error(err))
		case <-timer.C:
			if err := e.Fit(ctx); err != nil {
				log.Logger().Error("refit failed, keeping current pipeline", zap.String("path", path), zap.Error(err))
			}
		}
	}
}
