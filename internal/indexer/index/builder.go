package index

import (
	"fmt"
	"log/slog"
	"time"

	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
)

// Builder is the write side of the positional index. It is not safe for
// concurrent use: documents are recorded one at a time, in order, and the
// builder is handed off to an immutable Index by Finalize.
type Builder struct {
	terms       map[string]*termEntry
	generation  uint64
	lastDoc     DocID
	openDoc     DocID
	postings    int
	occurrences int
	final       *Index
	logger      *slog.Logger
}

func NewBuilder(generation uint64) *Builder {
	return &Builder{
		terms:      make(map[string]*termEntry),
		generation: generation,
		logger:     slog.Default().With("component", "index-builder"),
	}
}

// BeginDocument issues the next document id and closes the previous
// document. It returns 0 once the builder has been finalized.
func (b *Builder) BeginDocument() DocID {
	if b.final != nil {
		return 0
	}
	b.lastDoc++
	b.openDoc = b.lastDoc
	return b.openDoc
}

// Record appends pos to the position list of (term, doc). Positions for a
// given (term, doc) must arrive strictly increasing.
func (b *Builder) Record(term string, doc DocID, pos int) error {
	if b.final != nil {
		return fmt.Errorf("recording %q: %w", term, apperrors.ErrIndexSealed)
	}
	if term == "" {
		return fmt.Errorf("recording empty term: %w", apperrors.ErrInvalidInput)
	}
	if doc == 0 || doc > b.lastDoc {
		return fmt.Errorf("recording %q in document %d: %w", term, doc, apperrors.ErrUnknownDocument)
	}
	if doc != b.openDoc {
		return fmt.Errorf("recording %q in document %d: %w", term, doc, apperrors.ErrDocumentClosed)
	}
	if pos < 1 {
		return fmt.Errorf("recording %q at position %d: %w", term, pos, apperrors.ErrPositionOrder)
	}

	entry, ok := b.terms[term]
	if !ok {
		entry = newTermEntry()
		b.terms[term] = entry
	}
	positions, ok := entry.positions[doc]
	if ok && positions[len(positions)-1] >= pos {
		return fmt.Errorf("recording %q at position %d after %d: %w",
			term, pos, positions[len(positions)-1], apperrors.ErrPositionOrder)
	}
	if !ok {
		entry.docs.Add(uint32(doc))
		b.postings++
	}
	entry.positions[doc] = append(positions, pos)
	entry.occurrences++
	b.occurrences++
	return nil
}

// Finalize seals the builder and returns the read-only index. Later calls
// return the same index; later writes fail with ErrIndexSealed.
func (b *Builder) Finalize() *Index {
	if b.final != nil {
		return b.final
	}
	start := time.Now()
	vocab := rbt.NewWithStringComparator()
	for term, entry := range b.terms {
		entry.docs.RunOptimize()
		vocab.Put(term, entry)
	}
	b.final = &Index{
		terms:       b.terms,
		vocab:       vocab,
		docCount:    int(b.lastDoc),
		generation:  b.generation,
		buildID:     uuid.NewString(),
		postings:    b.postings,
		occurrences: b.occurrences,
		builtAt:     time.Now(),
	}
	b.terms = nil
	b.openDoc = 0
	b.logger.Info("index finalized",
		"generation", b.generation,
		"build_id", b.final.buildID,
		"documents", b.final.docCount,
		"terms", len(b.final.terms),
		"postings", b.postings,
		"duration", time.Since(start),
	)
	return b.final
}
