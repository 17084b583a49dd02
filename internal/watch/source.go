// Package watch turns filesystem changes into task invocations.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Event is a change to a path below the watched root.
type Event struct {
	// Path is slash separated and relative to the root.
	Path string
	Op   string
}

// FSSource watches a directory tree with fsnotify. New directories are added
// as they appear.
type FSSource struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
}

// NewFSSource starts watching every directory below root.
func NewFSSource(root string) (*FSSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySetup, "failed to create file watcher").Fatal().Build()
	}
	if err := addDirsRecursive(w, root); err != nil {
		_ = w.Close()
		return nil, ferrors.WrapError(err, ferrors.CategorySetup, "failed to watch source root").
			Fatal().
			WithContext("file", root).
			Build()
	}
	return &FSSource{root: root, watcher: w, events: make(chan Event, 64)}, nil
}

// Events delivers changes until Run returns.
func (s *FSSource) Events() <-chan Event { return s.events }

// Run forwards filesystem events until ctx ends. It closes Events on return
// and releases the underlying watcher.
func (s *FSSource) Run(ctx context.Context) error {
	defer close(s.events)
	defer func() { _ = s.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			out, ok := s.translate(ev)
			if !ok {
				continue
			}
			select {
			case s.events <- out:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (s *FSSource) translate(ev fsnotify.Event) (Event, bool) {
	if shouldIgnoreEvent(ev.Name) || ev.Op == fsnotify.Chmod {
		return Event{}, false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(s.watcher, ev.Name)
			return Event{}, false
		}
	}
	rel, err := filepath.Rel(s.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Event{}, false
	}
	slog.Debug("File change detected", logfields.Path(ev.Name), logfields.Event(ev.Op.String()))
	return Event{Path: filepath.ToSlash(rel), Op: ev.Op.String()}, true
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldIgnoreEvent(path) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnoreEvent reports paths that never trigger tasks: hidden files
// (including the pipeline's temporary outputs), editor swap files and OS
// metadata files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}

	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	// vim checks directory writability with a file named 4913.
	return base == "Thumbs.db" || base == "4913"
}
