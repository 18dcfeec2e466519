package executor

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/intersect"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
)

type placed struct {
	term string
	pos  []int
}

// buildPlaced records explicit positions per document. Occurrences are
// merged and recorded in position order.
func buildPlaced(t *testing.T, docs ...[]placed) *index.Index {
	t.Helper()
	b := index.NewBuilder(1)
	for _, terms := range docs {
		doc := b.BeginDocument()
		byPos := map[int]string{}
		maxPos := 0
		for _, p := range terms {
			for _, pos := range p.pos {
				byPos[pos] = p.term
				maxPos = max(maxPos, pos)
			}
		}
		for pos := 1; pos <= maxPos; pos++ {
			if term, ok := byPos[pos]; ok {
				require.NoError(t, b.Record(term, doc, pos))
			}
		}
	}
	return b.Finalize()
}

func buildText(t *testing.T, docs ...string) *index.Index {
	t.Helper()
	b := index.NewBuilder(1)
	for _, text := range docs {
		doc := b.BeginDocument()
		for _, tok := range tokenizer.Tokenize(text) {
			require.NoError(t, b.Record(tok.Term, doc, tok.Position))
		}
	}
	return b.Finalize()
}

func TestProximitySearchAdjacentTerms(t *testing.T) {
	ix := buildPlaced(t, []placed{{"united", []int{10}}, {"states", []int{11}}})
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	res := e.ProximitySearch("united", "states", 1)
	assert.Equal(t, map[index.DocID][]int{1: {10}}, res.Map())
}

func TestProximitySearchLargeOffsets(t *testing.T) {
	ix := buildPlaced(t,
		[]placed{{"other", []int{1}}},
		[]placed{{"alpha", []int{5, 50, 500}}, {"beta", []int{6, 51, 600}}},
	)
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	res := e.ProximitySearch("alpha", "beta", 0)
	assert.Equal(t, map[index.DocID][]int{2: {5, 50}}, res.Map())
}

func TestProximitySearchSkipsDocumentsMissingATerm(t *testing.T) {
	ix := buildPlaced(t,
		[]placed{{"x", []int{1}}},
		[]placed{{"x", []int{1}}},
		[]placed{{"cat", []int{2}}, {"dog", []int{3}}},
		[]placed{{"cat", []int{2}}},
	)
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	res := e.ProximitySearch("cat", "dog", 2)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, index.DocID(3), res.Documents[0].DocID)
	_, ok := res.Positions(4)
	assert.False(t, ok)
}

func TestProximitySearchHugeGapMatchesAllPairs(t *testing.T) {
	ix := buildText(t, "red fish blue fish one fish two fish red")
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	res := e.ProximitySearch("red", "two", 1_000_000)
	assert.Equal(t, map[index.DocID][]int{1: {1, 9}}, res.Map())
}

func TestExecuteUnboundedGapFromQuery(t *testing.T) {
	ix := buildText(t, "red fish blue fish one fish two fish red")
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	plan, err := parser.New(0, 0).Parse("red 9223372036854775807 two")
	require.NoError(t, err)
	res, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, map[index.DocID][]int{1: {1, 9}}, res.Results[0].Map())
}

func TestProximitySearchUnknownTerm(t *testing.T) {
	ix := buildText(t, "alpha beta")
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	res := e.ProximitySearch("alpha", "gamma", 5)
	assert.Empty(t, res.Documents)
	assert.NotNil(t, res.Documents)
}

func TestProximitySearchDocumentOrder(t *testing.T) {
	ix := buildText(t, "a b", "zzz", "b a", "a x b")
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)

	res := e.ProximitySearch("a", "b", 1)
	ids := make([]index.DocID, len(res.Documents))
	for i, d := range res.Documents {
		ids[i] = d.DocID
	}
	assert.Equal(t, []index.DocID{1, 3, 4}, ids)
}

func TestExecutePairwise(t *testing.T) {
	ix := buildText(t,
		"the united states then grew",
		"united we stand and the states then voted",
	)
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)
	plan, err := parser.Parse("united 1 states 0 then")
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "pairwise", res.Mode)
	assert.Equal(t, map[index.DocID][]int{1: {2}}, res.Results[0].Map())
	assert.Equal(t, map[index.DocID][]int{1: {3}, 2: {6}}, res.Results[1].Map())
	assert.Equal(t, 2, res.MatchedDocuments())
}

func TestExecuteChained(t *testing.T) {
	ix := buildText(t,
		"a b c",
		"a b x x x c",
		"a x b c",
		"b c a b",
	)
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)
	plan, err := parser.Parse("a 0 b 1 c")
	require.NoError(t, err)
	plan.Mode = parser.ModeChained

	res, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, map[index.DocID][]int{1: {1}, 4: {3}}, res.Results[0].Map())
	assert.Equal(t, []string{"a", "b", "c"}, res.Results[0].Terms)
}

func TestChainedSinglePairEqualsPairwise(t *testing.T) {
	ix := buildText(t,
		"one two three one two",
		"two x x one",
		"one one one x x x x two",
	)
	e := New(StaticSource(ix), intersect.RuleWordDistance, nil)
	for gap := 0; gap < 5; gap++ {
		plan := &parser.QueryPlan{
			Terms: []string{"one", "two"},
			Gaps:  []int{gap},
			Pairs: []parser.Pair{{Term1: "one", Term2: "two", Gap: gap}},
			Mode:  parser.ModeChained,
		}
		chained, err := e.Execute(context.Background(), plan)
		require.NoError(t, err)
		pairwise := e.ProximitySearch("one", "two", gap)
		assert.Equal(t, pairwise.Map(), chained.Results[0].Map(), "gap %d", gap)
	}
}

func TestExecuteNotReady(t *testing.T) {
	e := New(StaticSource(nil), intersect.RuleWordDistance, nil)
	plan, err := parser.Parse("a 1 b")
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), plan)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)
	assert.Empty(t, e.ProximitySearch("a", "b", 1).Documents)
}

func TestExecuteLegacyRule(t *testing.T) {
	ix := buildPlaced(t, []placed{{"a", []int{1, 5, 9}}, {"b", []int{3, 6, 20}}})
	e := New(StaticSource(ix), intersect.RuleLegacyWindow, nil)
	plan, err := parser.Parse("a 2 b")
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "legacy", res.Rule)
	assert.Equal(t, map[index.DocID][]int{1: {5}}, res.Results[0].Map())
}

func TestExecuteRecordsMetrics(t *testing.T) {
	positions := make([]int, 0, 500)
	for i := 1; i <= 500; i++ {
		positions = append(positions, i*2)
	}
	ix := buildPlaced(t, []placed{{"common", positions}, {"rare", []int{1001}}})
	m := metrics.New(prometheus.NewRegistry())
	e := New(StaticSource(ix), intersect.RuleWordDistance, m)
	plan, err := parser.Parse("common 0 rare")
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, map[index.DocID][]int{1: {1000}}, res.Results[0].Map())
	assert.Positive(t, testutil.ToFloat64(m.IntersectSkipsTotal))
}
