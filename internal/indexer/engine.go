// Package indexer owns the serving index. It builds a complete index from
// the corpus directory and publishes it atomically, so readers always see
// either the previous generation or the new one, never a partial build.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
)

// Snapshot is one published generation: the index plus the catalog of the
// documents it was built from.
type Snapshot struct {
	Index   *index.Index
	Catalog *corpus.Catalog
	Skipped []corpus.Skipped
}

// documentLoader is satisfied by *corpus.Loader.
type documentLoader interface {
	Load(ctx context.Context, paths []string, generation uint64) (*corpus.Result, error)
}

type Engine struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	buildMu    sync.Mutex
	cfg        config.CorpusConfig
	loader     documentLoader
	metrics    *metrics.Metrics
	listenMu   sync.RWMutex
	listeners  []func(*Snapshot)
	logger     *slog.Logger
}

// NewEngine returns an engine with nothing published. m may be nil.
func NewEngine(cfg config.CorpusConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		loader:  corpus.NewLoader(cfg.ReadRetries, m),
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// Build discovers the corpus, loads a new generation and publishes it.
// Builds are serialized; on failure the published snapshot is unchanged.
func (e *Engine) Build(ctx context.Context) (*Snapshot, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	snap, err := e.build(ctx)
	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
		}
		e.logger.Error("index build failed", "dir", e.cfg.Dir, "error", err)
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.IndexBuildsTotal.WithLabelValues("ok").Inc()
	}
	e.Publish(snap)
	return snap, nil
}

func (e *Engine) build(ctx context.Context) (*Snapshot, error) {
	paths, err := corpus.Discover(e.cfg.Dir, e.cfg.Extensions)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %v files under %s: %w", e.cfg.Extensions, e.cfg.Dir, apperrors.ErrNoCorpus)
	}
	res, err := e.loader.Load(ctx, paths, e.generation.Load()+1)
	if err != nil {
		return nil, fmt.Errorf("building index from %s: %w", e.cfg.Dir, err)
	}
	// A caller that gave up waiting has already reported the build as failed.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("building index from %s: %w", e.cfg.Dir, err)
	}
	return &Snapshot{Index: res.Index, Catalog: res.Catalog, Skipped: res.Skipped}, nil
}

// Publish makes snap the serving snapshot and notifies listeners.
func (e *Engine) Publish(snap *Snapshot) {
	prev := e.current.Swap(snap)
	e.generation.Store(snap.Index.Generation())
	if e.metrics != nil {
		e.metrics.IndexDocuments.Set(float64(snap.Index.DocCount()))
		e.metrics.IndexTerms.Set(float64(snap.Index.TermCount()))
		e.metrics.IndexGeneration.Set(float64(snap.Index.Generation()))
	}
	var prevGen uint64
	if prev != nil {
		prevGen = prev.Index.Generation()
	}
	e.logger.Info("index published",
		"generation", snap.Index.Generation(),
		"previous_generation", prevGen,
		"documents", snap.Index.DocCount(),
		"terms", snap.Index.TermCount(),
	)

	e.listenMu.RLock()
	listeners := make([]func(*Snapshot), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// OnPublish registers fn to run after every publish.
func (e *Engine) OnPublish(fn func(*Snapshot)) {
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Current returns the serving snapshot, or nil before the first publish.
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// Index returns the serving index, or nil before the first publish.
func (e *Engine) Index() *index.Index {
	snap := e.current.Load()
	if snap == nil {
		return nil
	}
	return snap.Index
}

// Ready reports whether an index has been published.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}
