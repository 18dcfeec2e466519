package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/resilience"
)

// Skipped records a document that was left out of the index.
type Skipped struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result is a freshly built index with its catalog.
type Result struct {
	Index    *index.Index
	Catalog  *Catalog
	Skipped  []Skipped
	Duration time.Duration
}

// Loader reads documents one at a time and records their words.
type Loader struct {
	readFile func(string) ([]byte, error)
	retry    resilience.RetryConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewLoader returns a Loader that tries each document up to attempts times.
// m may be nil.
func NewLoader(attempts int, m *metrics.Metrics) *Loader {
	return &Loader{
		readFile: os.ReadFile,
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		metrics: m,
		logger:  slog.Default().With("component", "corpus-loader"),
	}
}

// Load builds an index of generation from paths, in order. A document that
// cannot be read is logged, listed in Result.Skipped and gets no id; the
// remaining documents are still indexed. Load fails when no document could
// be read or ctx is cancelled.
func (l *Loader) Load(ctx context.Context, paths []string, generation uint64) (*Result, error) {
	if len(paths) == 0 {
		return nil, apperrors.ErrNoCorpus
	}
	start := time.Now()
	b := index.NewBuilder(generation)
	catalog := &Catalog{}
	var skipped []Skipped

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loading corpus: %w", err)
		}
		data, err := l.read(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("loading corpus: %w", ctx.Err())
			}
			l.logger.Warn("skipping unreadable document", "path", path, "error", err)
			skipped = append(skipped, Skipped{Path: path, Error: err.Error()})
			if l.metrics != nil {
				l.metrics.IngestFailuresTotal.Inc()
			}
			continue
		}
		doc, words, err := record(b, data)
		if err != nil {
			return nil, fmt.Errorf("indexing %s: %w", path, err)
		}
		catalog.add(Document{ID: doc, Path: path, Words: words, Bytes: int64(len(data))})
		if l.metrics != nil {
			l.metrics.DocsIngestedTotal.Inc()
		}
		l.logger.Debug("document indexed", "doc_id", doc, "path", path, "words", words)
	}

	if catalog.Len() == 0 {
		return nil, fmt.Errorf("none of %d documents could be read: %w", len(paths), apperrors.ErrNoCorpus)
	}
	ix := b.Finalize()
	res := &Result{
		Index:    ix,
		Catalog:  catalog,
		Skipped:  skipped,
		Duration: time.Since(start),
	}
	l.logger.Info("corpus loaded",
		"generation", generation,
		"documents", catalog.Len(),
		"skipped", len(skipped),
		"terms", ix.TermCount(),
		"duration", res.Duration,
	)
	return res, nil
}

// read returns the whole document so that a failure part way through never
// leaves a half-recorded document behind.
func (l *Loader) read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := resilience.Retry(ctx, "read "+path, l.retry, func() error {
		var err error
		data, err = l.readFile(path)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIngestionIO, err)
	}
	return data, nil
}

func record(b *index.Builder, data []byte) (index.DocID, int, error) {
	doc := b.BeginDocument()
	sc := tokenizer.NewScanner(bytes.NewReader(data))
	words := 0
	for sc.Scan() {
		tok := sc.Token()
		if err := b.Record(tok.Term, doc, tok.Position); err != nil {
			return doc, words, err
		}
		words++
	}
	return doc, words, sc.Err()
}
