package index

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// DocID identifies a document. Ids are issued by a Builder starting at 1.
type DocID uint32

// termEntry is everything the index knows about one term: the documents it
// occurs in and, per document, its strictly increasing positions.
type termEntry struct {
	docs        *roaring.Bitmap
	positions   map[DocID][]int
	occurrences int
}

func newTermEntry() *termEntry {
	return &termEntry{
		docs:      roaring.New(),
		positions: make(map[DocID][]int),
	}
}

// Posting is one document's position list for a term.
type Posting struct {
	DocID     DocID `json:"doc_id"`
	Positions []int `json:"positions"`
}

// TermStats summarizes a vocabulary entry.
type TermStats struct {
	Term        string `json:"term"`
	DocFreq     int    `json:"doc_freq"`
	Occurrences int    `json:"occurrences"`
}

// Stats describes a finalized index.
type Stats struct {
	Generation  uint64    `json:"generation"`
	BuildID     string    `json:"build_id"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	Postings    int       `json:"postings"`
	Occurrences int       `json:"occurrences"`
	BuiltAt     time.Time `json:"built_at"`
}
