// Package watcher rebuilds the index when documents under the corpus
// directory change. Bursts of filesystem events are debounced into a single
// rebuild; the rebuilt generation replaces the serving one only on success.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/resilience"
)

// Rebuilder builds and publishes a new generation. *indexer.Engine
// implements it.
type Rebuilder interface {
	Build(ctx context.Context) (*indexer.Snapshot, error)
}

type Watcher struct {
	root         string
	extensions   map[string]struct{}
	debounce     time.Duration
	buildTimeout time.Duration
	rebuilder    Rebuilder
	fs           *fsnotify.Watcher
	logger       *slog.Logger
}

func New(cfg config.CorpusConfig, r Rebuilder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		root:         cfg.Dir,
		extensions:   exts,
		debounce:     debounce,
		buildTimeout: cfg.BuildTimeout,
		rebuilder:    r,
		fs:           fw,
		logger:       slog.Default().With("component", "corpus-watcher"),
	}, nil
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether ev can change the corpus. New directories are
// added to the watch set as a side effect.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return true
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(ev.Name))]
	return ok
}

// Run watches the corpus until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("watching corpus", "dir", w.root, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("corpus changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			if pending {
				pending = false
				w.rebuild(ctx)
			}
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	start := time.Now()
	var snap *indexer.Snapshot
	err := resilience.WithTimeout(ctx, w.buildTimeout, "corpus rebuild", func(ctx context.Context) error {
		var err error
		snap, err = w.rebuilder.Build(ctx)
		return err
	})
	switch {
	case err == nil:
		w.logger.Info("corpus rebuilt",
			"generation", snap.Index.Generation(),
			"documents", snap.Index.DocCount(),
			"took", time.Since(start).Round(time.Millisecond),
		)
	case errors.Is(err, apperrors.ErrNoCorpus):
		w.logger.Warn("corpus is empty, keeping previous index", "dir", w.root)
	case ctx.Err() != nil:
	default:
		w.logger.Error("corpus rebuild failed, keeping previous index", "error", err)
	}
}
