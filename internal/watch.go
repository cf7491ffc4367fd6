package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-analyzes source files as they change on disk. It never applies
// rewrites; watch mode is report-only.
type Watcher struct {
	engine     *Engine
	watcher    *fsnotify.Watcher
	watchDirs  []string
	logger     *zap.Logger
	onResult   func(*UnitResult)
	isWatching bool
}

func NewWatcher(engine *Engine, dirs []string, logger *zap.Logger, onResult func(*UnitResult)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating file watcher: %w", err)
	}
	return &Watcher{
		engine:    engine,
		watcher:   fw,
		watchDirs: dirs,
		logger:    logger,
		onResult:  onResult,
	}, nil
}

func (w *Watcher) StartWatching() error {
	if w.isWatching {
		return fmt.Errorf("already watching")
	}

	for _, dir := range w.watchDirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return w.watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	w.isWatching = true
	go w.watchLoop()
	return nil
}

func (w *Watcher) StopWatching() error {
	if !w.isWatching {
		w.logger.Warn("not watching")
	}

	w.isWatching = false
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for w.isWatching {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFileEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleFileEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Write != fsnotify.Write {
		return
	}
	if !strings.HasSuffix(event.Name, ".go") || strings.HasSuffix(event.Name, "_test.go") {
		return
	}

	// wait for a while after file change to consider multiple changes as one
	time.Sleep(100 * time.Millisecond)
	res, err := w.engine.Analyze(event.Name)
	if err != nil {
		w.logger.Error("analysis failed", zap.String("file", event.Name), zap.Error(err))
		return
	}
	w.logger.Info("re-analyzed file",
		zap.String("file", event.Name),
		zap.Int("findings", len(res.Findings)))
	if w.onResult != nil {
		w.onResult(res)
	}
}
