package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads tunable retrieval settings when the config file
// changes. Only the similarity threshold is reloaded at runtime; structural
// settings (ports, DSNs) require a restart.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu        sync.RWMutex
	threshold float64
}

// NewWatcher creates a watcher seeded with the current threshold. If path is
// empty the watcher is inert and only serves the seeded value.
func NewWatcher(path string, threshold float64, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		path:      path,
		logger:    logger,
		stopCh:    make(chan struct{}),
		threshold: threshold,
	}
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	go w.loop()
	return w, nil
}

// SimilarityThreshold returns the current threshold, reflecting any reloads.
func (w *Watcher) SimilarityThreshold() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.threshold
}

// Stop terminates the watch loop. Safe to call on an inert watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous values",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	changed := cfg.Retrieval.SimilarityThreshold != w.threshold
	prev := w.threshold
	w.threshold = cfg.Retrieval.SimilarityThreshold
	w.mu.Unlock()

	if changed {
		w.logger.Info("Similarity threshold reloaded",
			zap.Float64("previous", prev),
			zap.Float64("current", cfg.Retrieval.SimilarityThreshold),
		)
	}
}
