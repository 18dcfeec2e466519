package corpus

import (
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
)

// Document describes one indexed document. Its text is not retained.
type Document struct {
	ID    index.DocID `json:"id"`
	Path  string      `json:"path"`
	Words int         `json:"words"`
	Bytes int64       `json:"bytes"`
}

// Catalog maps document ids back to the files they were read from. It is
// built alongside an index and is read-only afterwards.
type Catalog struct {
	docs []Document
}

func (c *Catalog) add(d Document) {
	c.docs = append(c.docs, d)
}

// Lookup returns the document with the given id.
func (c *Catalog) Lookup(id index.DocID) (Document, bool) {
	if c == nil || id == 0 || int(id) > len(c.docs) {
		return Document{}, false
	}
	return c.docs[id-1], true
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.docs)
}

// Documents returns a copy of the catalog in id order.
func (c *Catalog) Documents() []Document {
	if c == nil {
		return nil
	}
	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out
}
