package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, emit files already present
	Debounce    time.Duration // coalesce rapid create/write bursts per file
}

// StartWatcher emits the path of every statement file created or rewritten
// under the roots, once it has been quiet for cfg.Debounce. Both channels are
// closed when ctx ends.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var existing []string
	for _, r := range cfg.Roots {
		err := filepath.WalkDir(r, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != r && hidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && watched(path) {
				existing = append(existing, path)
			}
			return nil
		})
		if err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	logger.Info("ingest.watcher.started", "roots", cfg.Roots, "existing", len(existing))

	evCh := make(chan string, 64)
	errCh := make(chan error, 1)
	go run(ctx, w, cfg.Debounce, existing, evCh, errCh, logger)
	return evCh, errCh, nil
}

func run(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration, existing []string, evCh chan<- string, errCh chan<- error, logger *slog.Logger) {
	defer close(errCh)
	defer close(evCh)
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("failed to close watcher", "error", err)
		}
	}()

	emit := func(path string) bool {
		select {
		case evCh <- path:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for _, p := range existing {
		if !emit(p) {
			return
		}
	}

	pending := map[string]struct{}{}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	flush := func() bool {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(pending)
		for _, p := range paths {
			logger.Debug("ingest.watcher.ready", "path", p)
			if !emit(p) {
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if e.Has(fsnotify.Create) {
				// new subdirectories are watched too; Add fails harmlessly on files
				_ = w.Add(e.Name)
			}
			if !watched(e.Name) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
				continue
			}
			pending[e.Name] = struct{}{}
			if debounce <= 0 {
				if !flush() {
					return
				}
				continue
			}
			timer.Reset(debounce)
		case <-timer.C:
			if !flush() {
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
			select {
			case errCh <- err:
			default:
			}
		}
	}
}

func watched(path string) bool {
	return !hidden(path) && statementExt(filepath.Ext(path))
}
