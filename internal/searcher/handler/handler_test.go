package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/intersect"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/rpc"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (r *recordingTracker) TrackQuery(ev analytics.QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingTracker) all() []analytics.QueryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]analytics.QueryEvent(nil), r.events...)
}

type fixture struct {
	handler *Handler
	mux     *http.ServeMux
	tracker *recordingTracker
	metrics *metrics.Metrics
	engine  *indexer.Engine
}

func newFixture(t *testing.T, build bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("United States of America"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("the states united\nagainst the crown"), 0o644))

	m := metrics.New(prometheus.NewRegistry())
	engine := indexer.NewEngine(config.CorpusConfig{Dir: dir, Extensions: []string{".txt"}, ReadRetries: 1}, m)
	if build {
		_, err := engine.Build(context.Background())
		require.NoError(t, err)
	}
	qc, err := cache.New(config.CacheConfig{Enabled: true, LocalSize: 16, TTL: time.Minute}, nil, m)
	require.NoError(t, err)

	tracker := &recordingTracker{}
	h := New(Options{
		Snapshots: engine,
		Parser:    parser.New(8, 100),
		Executor:  executor.New(engine, intersect.RuleWordDistance, m),
		Cache:     qc,
		Tracker:   tracker,
		Metrics:   m,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{handler: h, mux: mux, tracker: tracker, metrics: m, engine: engine}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSearch(t *testing.T) {
	f := newFixture(t, true)

	rec := f.get(t, "/api/v1/search?q=United+0+states")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[proto.SearchResponse](t, rec)
	assert.Equal(t, "pairwise", resp.Mode)
	assert.Equal(t, "distance", resp.Rule)
	assert.Equal(t, "miss", resp.CacheStatus)
	require.Len(t, resp.Results, 1)
	matches := resp.Results[0].Matches
	require.Len(t, matches, 2)
	assert.Equal(t, uint32(1), matches[0].DocID)
	assert.Equal(t, []int{1}, matches[0].Positions)
	assert.Equal(t, "a.txt", filepath.Base(matches[0].Path))
	assert.Equal(t, []int{3}, matches[1].Positions)

	rec = f.get(t, "/api/v1/search?q=united+0+states")
	resp = decode[proto.SearchResponse](t, rec)
	assert.Equal(t, "local", resp.CacheStatus)

	events := f.tracker.all()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"united", "states"}, events[0].Terms)
	assert.Equal(t, 2, events[0].MatchedDocs)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("pairwise", "match")))
}

func TestSearchZeroResultAndUnknownTerm(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/api/v1/search?q=united+5+zebra")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[proto.SearchResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Results[0].Matches)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("pairwise", "zero_result")))
}

func TestSearchChainedMode(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/api/v1/search?q=united+0+states+1+america&mode=chained")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[proto.SearchResponse](t, rec)
	assert.Equal(t, "chained", resp.Mode)
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Results[0].Matches, 1)
	assert.Equal(t, uint32(1), resp.Results[0].Matches[0].DocID)
}

func TestSearchRejectsMalformed(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/api/v1/search"},
		{"even tokens", "/api/v1/search?q=united+states"},
		{"bad gap", "/api/v1/search?q=united+x+states"},
		{"bad mode", "/api/v1/search?q=united+1+states&mode=fuzzy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
	events := f.tracker.all()
	require.Len(t, events, 3)
	assert.True(t, events[0].Malformed)
}

func TestNotReady(t *testing.T) {
	f := newFixture(t, false)
	for _, target := range []string{
		"/api/v1/search?q=united+1+states",
		"/api/v1/stats",
		"/api/v1/terms",
		"/api/v1/documents/1",
		"/api/v1/positions?term=united&doc=1",
	} {
		assert.Equal(t, http.StatusServiceUnavailable, f.get(t, target).Code, target)
	}
}

func TestPositions(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/api/v1/positions?term=Crown&doc=2")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[proto.PositionsResponse](t, rec)
	assert.Equal(t, "crown", resp.Term)
	assert.Equal(t, []int{6}, resp.Positions)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/positions?term=crown&doc=1").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/positions?term=crown&doc=9").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/positions?term=crown&doc=x").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/positions?term=c1&doc=1").Code)
}

func TestTermsDocumentsAndStats(t *testing.T) {
	f := newFixture(t, true)

	rec := f.get(t, "/api/v1/terms?prefix=st&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var terms struct {
		Terms []struct {
			Term    string `json:"term"`
			DocFreq int    `json:"doc_freq"`
		} `json:"terms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &terms))
	require.Len(t, terms.Terms, 1)
	assert.Equal(t, "states", terms.Terms[0].Term)
	assert.Equal(t, 2, terms.Terms[0].DocFreq)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/terms?limit=0").Code)

	rec = f.get(t, "/api/v1/documents/2")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "b.txt", filepath.Base(doc["path"].(string)))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/documents/3").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/documents/abc").Code)

	rec = f.get(t, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[proto.StatsResponse](t, rec)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 10, stats.Occurrences)
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t, true)
	f.get(t, "/api/v1/search?q=united+0+states")

	rec := f.get(t, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[cache.Stats](t, rec)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.LocalEntries)

	inv := httptest.NewRecorder()
	f.mux.ServeHTTP(inv, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, inv.Code)
	assert.Equal(t, 0, decode[cache.Stats](t, f.get(t, "/api/v1/cache/stats")).LocalEntries)
}

func TestRPC(t *testing.T) {
	f := newFixture(t, true)
	s := rpc.NewServer()
	f.handler.RegisterRPC(s)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	defer s.Stop()

	c, err := rpc.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp proto.SearchResponse
	require.NoError(t, c.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: "states 0 united"}, &resp))
	require.Len(t, resp.Results, 1)
	assert.Len(t, resp.Results[0].Matches, 2)

	var pos proto.PositionsResponse
	require.NoError(t, c.Call(ctx, proto.MethodPositions, proto.PositionsRequest{Term: "the", DocID: 2}, &pos))
	assert.Equal(t, []int{1, 5}, pos.Positions)

	var stats proto.StatsResponse
	require.NoError(t, c.Call(ctx, proto.MethodStats, proto.StatsRequest{}, &stats))
	assert.Equal(t, 2, stats.Documents)

	err = c.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: "states"}, &resp)
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.Code)
}
