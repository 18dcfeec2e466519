package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/kafka"
)

func TestDecode(t *testing.T) {
	q, err := json.Marshal(QueryEvent{Type: EventQuery, Query: "a 1 b", MatchedDocs: 2})
	require.NoError(t, err)
	ev, err := Decode(q)
	require.NoError(t, err)
	require.IsType(t, &QueryEvent{}, ev)
	assert.Equal(t, 2, ev.(*QueryEvent).MatchedDocs)

	i, err := json.Marshal(IndexEvent{Type: EventIndexBuild, Generation: 4})
	require.NoError(t, err)
	ev, err = Decode(i)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ev.(*IndexEvent).Generation)

	_, err = Decode([]byte(`{"type":"other"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestAggregatorRecord(t *testing.T) {
	agg := NewAggregator()
	agg.RecordQuery(QueryEvent{Query: "a 1 b", Terms: []string{"a", "b"}, MatchedDocs: 3, LatencyUs: 10, CacheStatus: "miss"})
	agg.RecordQuery(QueryEvent{Query: "a 1 b", Terms: []string{"a", "b"}, MatchedDocs: 3, LatencyUs: 30, CacheStatus: "local"})
	agg.RecordQuery(QueryEvent{Query: "x 0 y", Terms: []string{"x", "y"}, LatencyUs: 20, CacheStatus: "miss"})
	agg.RecordQuery(QueryEvent{Query: "a b", Malformed: true})
	agg.RecordIndex(IndexEvent{Generation: 2, Documents: 5})
	agg.RecordIndex(IndexEvent{Generation: 1, Documents: 9})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.MalformedQueries)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(2), stats.IndexBuilds)
	assert.Equal(t, uint64(2), stats.LastGeneration)
	assert.Equal(t, 5, stats.IndexedDocuments)
	assert.Equal(t, map[string]int64{"miss": 2, "local": 1}, stats.CacheStatus)
	assert.InDelta(t, 20.0, stats.AvgLatencyUs, 0.001)
	assert.Equal(t, int64(20), stats.P50LatencyUs)
	assert.Equal(t, []QueryCount{{"a 1 b", 2}, {"x 0 y", 1}}, stats.TopQueries)
	assert.Equal(t, QueryCount{"a", 2}, stats.TopTerms[0])
	assert.Equal(t, []QueryCount{{"x 0 y", 1}}, stats.ZeroResultQueries)
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		agg.RecordQuery(QueryEvent{Query: "q", MatchedDocs: 1, LatencyUs: int64(i)})
	}
	assert.Len(t, agg.latencies, latencyWindow)
	stats := agg.Stats()
	assert.Equal(t, int64(latencyWindow+9), stats.P99LatencyUs)
}

func TestHandleEventIgnoresGarbage(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	assert.NoError(t, handle(context.Background(), []byte("k"), []byte("{")))
	assert.Equal(t, int64(0), agg.Stats().TotalQueries)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, config.KafkaTopics{QueryEvents: "q", IndexEvents: "i"}, 16)
	c.Start(context.Background())
	c.TrackQuery(QueryEvent{Query: "a 1 b"})
	c.TrackIndex(IndexEvent{Generation: 1})
	c.Close()

	require.Equal(t, 2, pub.count())
	assert.Equal(t, string(EventQuery), pub.events[0].Key)
	assert.Equal(t, "q", pub.events[0].Topic)
	assert.Equal(t, "i", pub.events[1].Topic)
	qe := pub.events[0].Value.(QueryEvent)
	assert.Equal(t, EventQuery, qe.Type)
	assert.False(t, qe.Timestamp.IsZero())
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, config.KafkaTopics{QueryEvents: "q", IndexEvents: "i"}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.TrackQuery(QueryEvent{Query: "a 1 b"})
	cancel()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, 1, pub.count())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, config.KafkaTopics{}, 1)
	c.TrackQuery(QueryEvent{Query: "one"})
	c.TrackQuery(QueryEvent{Query: "two"})
	assert.Len(t, c.eventCh, 1)
}

func TestDirectFeedsAggregator(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(NewDirect(agg), config.KafkaTopics{}, 16)
	c.Start(context.Background())
	c.TrackQuery(QueryEvent{Query: "a 1 b", Terms: []string{"a", "b"}, MatchedDocs: 1, CacheStatus: "miss"})
	c.TrackIndex(IndexEvent{Generation: 3, Documents: 2})
	c.Close()

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalQueries)
	assert.Equal(t, uint64(3), stats.LastGeneration)
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.RecordQuery(QueryEvent{Query: "a 1 b", MatchedDocs: 1})
	mux := http.NewServeMux()
	NewHandler(agg).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalQueries)
}
