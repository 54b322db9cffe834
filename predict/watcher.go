package predict

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"recyclerate/metrics"
	"recyclerate/ml"
)

// Watcher reloads the model artifact when the file is replaced. The directory
// is watched rather than the file so atomic renames are seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onLoad   func(*ml.TrainedModel)
	logger   *zap.Logger
	debounce time.Duration
}

func NewWatcher(path string, onLoad func(*ml.TrainedModel), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		onLoad:   onLoad,
		logger:   logger,
		debounce: 250 * time.Millisecond,
	}, nil
}

// Run processes file events until ctx is cancelled. A failed reload keeps the
// current model in service.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("model watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	model, err := ml.LoadModel(w.path)
	if err != nil {
		metrics.ModelReloads.WithLabelValues("failed").Inc()
		w.logger.Error("model reload failed, keeping current model",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	metrics.ModelReloads.WithLabelValues("success").Inc()
	metrics.ModelLoadedTimestamp.SetToCurrentTime()
	w.logger.Info("model reloaded",
		zap.String("path", w.path),
		zap.String("version", model.Version))
	if w.onLoad != nil {
		w.onLoad(model)
	}
}
