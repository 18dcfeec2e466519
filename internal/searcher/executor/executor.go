// Package executor evaluates proximity queries against the serving index.
// For each term pair it visits, in ascending id order, only the documents
// containing both terms and merges their position lists.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/intersect"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
)

// Source supplies the index to query. It returns nil until an index exists.
type Source interface {
	Index() *index.Index
}

type staticSource struct{ ix *index.Index }

func (s staticSource) Index() *index.Index { return s.ix }

// StaticSource serves a fixed index.
func StaticSource(ix *index.Index) Source {
	return staticSource{ix: ix}
}

// DocMatches is one document's matched positions.
type DocMatches struct {
	DocID     index.DocID `json:"doc_id"`
	Positions []int       `json:"positions"`
}

// Result holds the documents matching a chain of terms. For a single pair,
// Terms has two entries and Gaps one.
type Result struct {
	Terms     []string        `json:"terms"`
	Gaps      []int           `json:"gaps"`
	Documents []DocMatches    `json:"documents"`
	Stats     intersect.Stats `json:"stats"`
}

// Positions returns the matches of doc, if any.
func (r *Result) Positions(doc index.DocID) ([]int, bool) {
	for _, d := range r.Documents {
		if d.DocID == doc {
			return d.Positions, true
		}
	}
	return nil, false
}

// Map returns the result as a document id to positions mapping.
func (r *Result) Map() map[index.DocID][]int {
	out := make(map[index.DocID][]int, len(r.Documents))
	for _, d := range r.Documents {
		out[d.DocID] = d.Positions
	}
	return out
}

// SearchResult is the answer to a parsed query.
type SearchResult struct {
	Query      string   `json:"query"`
	Mode       string   `json:"mode"`
	Rule       string   `json:"rule"`
	Generation uint64   `json:"generation"`
	Results    []Result `json:"results"`
	TookMicros int64    `json:"took_us"`
}

// MatchedDocuments counts documents matched by any result.
func (s *SearchResult) MatchedDocuments() int {
	seen := make(map[index.DocID]struct{})
	for _, r := range s.Results {
		for _, d := range r.Documents {
			seen[d.DocID] = struct{}{}
		}
	}
	return len(seen)
}

type Executor struct {
	source  Source
	rule    intersect.Rule
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an Executor that merges with rule. m may be nil.
func New(source Source, rule intersect.Rule, m *metrics.Metrics) *Executor {
	return &Executor{
		source:  source,
		rule:    rule,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Rule() intersect.Rule { return e.rule }

// ProximitySearch returns every document where term1 occurs within maxGap
// words of term2, with the matching positions of term1. Unknown terms give
// an empty result.
func (e *Executor) ProximitySearch(term1, term2 string, maxGap int) Result {
	ix := e.source.Index()
	if ix == nil {
		return Result{Terms: []string{term1, term2}, Gaps: []int{maxGap}, Documents: []DocMatches{}}
	}
	return e.pair(ix, term1, term2, maxGap)
}

// Execute evaluates plan against the index currently served by the source.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan) (*SearchResult, error) {
	return e.ExecuteIndex(ctx, e.source.Index(), plan)
}

// ExecuteIndex evaluates plan against ix. Callers that already pinned a
// snapshot use it so every pair sees the same generation.
func (e *Executor) ExecuteIndex(ctx context.Context, ix *index.Index, plan *parser.QueryPlan) (*SearchResult, error) {
	if ix == nil {
		return nil, apperrors.ErrIndexNotReady
	}
	start := time.Now()
	out := &SearchResult{
		Query:      plan.String(),
		Mode:       plan.Mode.String(),
		Rule:       e.rule.String(),
		Generation: ix.Generation(),
	}

	switch plan.Mode {
	case parser.ModeChained:
		out.Results = []Result{e.chain(ix, plan.Terms, plan.Gaps)}
	default:
		out.Results = make([]Result, 0, len(plan.Pairs))
		for _, p := range plan.Pairs {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("executing %q: %w", plan.RawQuery, err)
			}
			out.Results = append(out.Results, e.pair(ix, p.Term1, p.Term2, p.Gap))
		}
	}
	out.TookMicros = time.Since(start).Microseconds()

	for _, r := range out.Results {
		e.observe(r)
	}
	e.logger.Debug("query executed",
		"query", out.Query,
		"mode", out.Mode,
		"generation", out.Generation,
		"matched_documents", out.MatchedDocuments(),
		"took_us", out.TookMicros,
	)
	return out, nil
}

func (e *Executor) pair(ix *index.Index, term1, term2 string, maxGap int) Result {
	res := Result{
		Terms:     []string{term1, term2},
		Gaps:      []int{maxGap},
		Documents: []DocMatches{},
	}
	it := ix.CommonDocs(term1, term2).Iterator()
	for it.HasNext() {
		doc := index.DocID(it.Next())
		a, okA := ix.Positions(term1, doc)
		b, okB := ix.Positions(term2, doc)
		if !okA || !okB {
			continue
		}
		matched, st := intersect.IntersectWithStats(a, b, maxGap, e.rule)
		res.Stats.Add(st)
		if len(matched) > 0 {
			res.Documents = append(res.Documents, DocMatches{DocID: doc, Positions: matched})
		}
	}
	return res
}

// chain keeps the positions of terms[0] that start a sequence p0, p1, ...
// where each p(k+1) is within gaps[k] words of pk. It works backwards from
// the last term so every surviving position already has a valid tail.
func (e *Executor) chain(ix *index.Index, terms []string, gaps []int) Result {
	res := Result{
		Terms:     append([]string(nil), terms...),
		Gaps:      append([]int(nil), gaps...),
		Documents: []DocMatches{},
	}
	it := ix.CommonDocs(terms...).Iterator()
	for it.HasNext() {
		doc := index.DocID(it.Next())
		valid, ok := ix.Positions(terms[len(terms)-1], doc)
		if !ok {
			continue
		}
		for k := len(terms) - 2; k >= 0 && len(valid) > 0; k-- {
			positions, ok := ix.Positions(terms[k], doc)
			if !ok {
				valid = nil
				break
			}
			var st intersect.Stats
			valid, st = intersect.IntersectWithStats(positions, valid, gaps[k], intersect.RuleWordDistance)
			res.Stats.Add(st)
		}
		if len(valid) > 0 {
			res.Documents = append(res.Documents, DocMatches{DocID: doc, Positions: valid})
		}
	}
	return res
}

func (e *Executor) observe(r Result) {
	if e.metrics == nil {
		return
	}
	e.metrics.IntersectSkipsTotal.Add(float64(r.Stats.Skips))
	e.metrics.IntersectStepsTotal.Add(float64(r.Stats.Steps))
	e.metrics.QueryMatchedDocs.Observe(float64(len(r.Documents)))
}
