// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// Filter decides which paths produce events.
type Filter func(path string) bool

// ExtensionFilter matches files by extension, case-insensitively.
func ExtensionFilter(extensions ...string) Filter {
	return func(path string) bool {
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range extensions {
			if ext == strings.ToLower(e) {
				return true
			}
		}
		return false
	}
}

// NameFilter matches files by base name.
func NameFilter(names ...string) Filter {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, n := range names {
			if base == n {
				return true
			}
		}
		return false
	}
}

var _ ports.FileWatcher = (*FSNotifyWatcher)(nil)

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
type FSNotifyWatcher struct {
	watcher *fsnotify.Watcher
	filter  Filter
	logger  *zap.Logger
}

// NewFSNotifyWatcher creates a new file watcher.
// A nil filter watches index artifacts (.gob exports and their .yaml manifests).
func NewFSNotifyWatcher(filter Filter, logger *zap.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if filter == nil {
		filter = ExtensionFilter(".gob", ".yaml")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FSNotifyWatcher{
		watcher: w,
		filter:  filter,
		logger:  logger,
	}, nil
}

// Watch starts monitoring the directory and emits events.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.filter(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					op = ports.FileCreated
				case event.Op&fsnotify.Write == fsnotify.Write:
					op = ports.FileModified
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					op = ports.FileDeleted
				default:
					continue
				}

				select {
				case events <- ports.FileEvent{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.String("dir", dir), zap.Error(err))
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}
