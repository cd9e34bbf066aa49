// Package watcher turns file system notifications into indexer events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/enumerator"
	"github.com/dshills/codecontext/pkg/types"
)

// Handler receives translated events. *indexer.Coordinator satisfies it.
type Handler interface {
	HandleEvent(ctx context.Context, ev types.FileEvent) error
}

// Watcher watches every non-excluded directory of a workspace
type Watcher struct {
	fs      *fsnotify.Watcher
	enum    *enumerator.Enumerator
	handler Handler
	logger  *zap.Logger
}

// New creates a watcher and registers the workspace tree
func New(enum *enumerator.Enumerator, handler Handler, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, enum: enum, handler: handler, logger: logger}
	if err := w.addTree(enum.Root()); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and its non-excluded subdirectories
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.enum.Root() {
			rel, relErr := w.enum.RelPath(path)
			if relErr != nil || w.enum.Excluded(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}

// Translate maps an fsnotify event to a change kind. Chmod-only events are
// dropped.
func Translate(ev fsnotify.Event) (types.ChangeKind, bool) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return types.ChangeDelete, true
	case ev.Has(fsnotify.Create):
		return types.ChangeCreate, true
	case ev.Has(fsnotify.Write):
		return types.ChangeModify, true
	}
	return 0, false
}

// Run forwards events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching workspace", zap.String("root", w.enum.Root()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.dispatch(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, ev fsnotify.Event) {
	kind, ok := Translate(ev)
	if !ok {
		return
	}

	if kind == types.ChangeCreate {
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			w.createdDir(ctx, ev.Name)
			return
		}
	}
	w.send(ctx, types.FileEvent{Path: ev.Name, Kind: kind})
}

// createdDir watches a new directory and reports the files it already
// holds, which were written before the watch existed
func (w *Watcher) createdDir(ctx context.Context, dir string) {
	rel, err := w.enum.RelPath(dir)
	if err != nil || w.enum.Excluded(rel) {
		return
	}
	if err := w.addTree(dir); err != nil {
		w.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		w.send(ctx, types.FileEvent{Path: path, Kind: types.ChangeCreate})
		return nil
	})
}

func (w *Watcher) send(ctx context.Context, ev types.FileEvent) {
	if err := w.handler.HandleEvent(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("change not applied",
			zap.String("path", ev.Path),
			zap.String("kind", ev.Kind.String()),
			zap.Error(err))
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}
