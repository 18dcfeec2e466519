// Package index holds the positional inverted index: for each term, the
// documents it occurs in and the ordered word positions within each one.
// A Builder collects occurrences in a single pass; Finalize transfers
// ownership to an Index, which is immutable and safe for concurrent reads.
package index

import (
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	rbt "github.com/emirpasic/gods/trees/redblacktree"
)

type Index struct {
	terms       map[string]*termEntry
	vocab       *rbt.Tree
	docCount    int
	generation  uint64
	buildID     string
	postings    int
	occurrences int
	builtAt     time.Time
}

// Positions returns the positions of term in doc. ok is false when the term
// never occurs in the document. The slice is owned by the index.
func (ix *Index) Positions(term string, doc DocID) (positions []int, ok bool) {
	entry, found := ix.terms[term]
	if !found {
		return nil, false
	}
	p, found := entry.positions[doc]
	if !found {
		return nil, false
	}
	return p[:len(p):len(p)], true
}

// Postings returns every (document, positions) pair of term in ascending
// document order.
func (ix *Index) Postings(term string) []Posting {
	entry, ok := ix.terms[term]
	if !ok {
		return nil
	}
	out := make([]Posting, 0, len(entry.positions))
	it := entry.docs.Iterator()
	for it.HasNext() {
		doc := DocID(it.Next())
		p := entry.positions[doc]
		out = append(out, Posting{DocID: doc, Positions: p[:len(p):len(p)]})
	}
	return out
}

// Docs returns a copy of the set of documents containing term. The set is
// empty for an unknown term.
func (ix *Index) Docs(term string) *roaring.Bitmap {
	entry, ok := ix.terms[term]
	if !ok {
		return roaring.New()
	}
	return entry.docs.Clone()
}

// CommonDocs returns the documents that contain every one of terms.
func (ix *Index) CommonDocs(terms ...string) *roaring.Bitmap {
	if len(terms) == 0 {
		return roaring.New()
	}
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		entry, ok := ix.terms[term]
		if !ok {
			return roaring.New()
		}
		sets = append(sets, entry.docs)
	}
	if len(sets) == 1 {
		return sets[0].Clone()
	}
	return roaring.FastAnd(sets...)
}

func (ix *Index) Contains(term string) bool {
	_, ok := ix.terms[term]
	return ok
}

// DocFreq is the number of documents containing term.
func (ix *Index) DocFreq(term string) int {
	entry, ok := ix.terms[term]
	if !ok {
		return 0
	}
	return int(entry.docs.GetCardinality())
}

// DocCount is the number of documents issued by the builder, which is also
// the highest document id.
func (ix *Index) DocCount() int { return ix.docCount }

func (ix *Index) TermCount() int { return len(ix.terms) }

func (ix *Index) Generation() uint64 { return ix.generation }

// BuildID is unique to this index across processes and restarts, unlike the
// generation, which every process counts from 1.
func (ix *Index) BuildID() string { return ix.buildID }

// Vocabulary lists terms starting with prefix in lexical order, at most
// limit of them (all when limit <= 0).
func (ix *Index) Vocabulary(prefix string, limit int) []TermStats {
	out := make([]TermStats, 0)
	node, found := ix.vocab.Ceiling(prefix)
	if !found {
		return out
	}
	for it, ok := ix.vocab.IteratorAt(node), true; ok; ok = it.Next() {
		term := it.Key().(string)
		if !strings.HasPrefix(term, prefix) {
			break
		}
		entry := it.Value().(*termEntry)
		out = append(out, TermStats{
			Term:        term,
			DocFreq:     int(entry.docs.GetCardinality()),
			Occurrences: entry.occurrences,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (ix *Index) Stats() Stats {
	return Stats{
		Generation:  ix.generation,
		BuildID:     ix.buildID,
		Documents:   ix.docCount,
		Terms:       len(ix.terms),
		Postings:    ix.postings,
		Occurrences: ix.occurrences,
		BuiltAt:     ix.builtAt,
	}
}
