package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/kafka"
)

const latencyWindow = 10000

type AggregatedStats struct {
	TotalQueries      int64            `json:"total_queries"`
	MalformedQueries  int64            `json:"malformed_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	CacheStatus       map[string]int64 `json:"cache_status"`
	IndexBuilds       int64            `json:"index_builds"`
	LastGeneration    uint64           `json:"last_generation"`
	IndexedDocuments  int              `json:"indexed_documents"`
	AvgLatencyUs      float64          `json:"avg_latency_us"`
	P50LatencyUs      int64            `json:"p50_latency_us"`
	P95LatencyUs      int64            `json:"p95_latency_us"`
	P99LatencyUs      int64            `json:"p99_latency_us"`
	TopQueries        []QueryCount     `json:"top_queries"`
	TopTerms          []QueryCount     `json:"top_terms"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds query and index events into running statistics. Latency
// percentiles cover the most recent latencyWindow queries.
type Aggregator struct {
	mu                sync.RWMutex
	totalQueries      atomic.Int64
	malformed         atomic.Int64
	zeroResults       atomic.Int64
	indexBuilds       atomic.Int64
	latencies         []int64
	next              int
	cacheStatus       map[string]int64
	queryCounts       map[string]int64
	termCounts        map[string]int64
	zeroResultQueries map[string]int64
	lastGeneration    uint64
	indexedDocs       int
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, latencyWindow),
		cacheStatus:       make(map[string]int64),
		queryCounts:       make(map[string]int64),
		termCounts:        make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator starting")
	return consumer.Start(ctx)
}

// HandleEvent adapts the aggregator to a Kafka message handler. Undecodable
// messages are logged and acknowledged so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := Decode(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		switch e := ev.(type) {
		case *QueryEvent:
			agg.RecordQuery(*e)
		case *IndexEvent:
			agg.RecordIndex(*e)
		}
		return nil
	}
}

func (a *Aggregator) RecordQuery(ev QueryEvent) {
	a.totalQueries.Add(1)
	if ev.Malformed {
		a.malformed.Add(1)
		return
	}
	zero := ev.MatchedDocs == 0
	if zero {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.LatencyUs)
	} else {
		a.latencies[a.next] = ev.LatencyUs
		a.next = (a.next + 1) % latencyWindow
	}
	a.cacheStatus[ev.CacheStatus]++
	a.queryCounts[ev.Query]++
	for _, t := range ev.Terms {
		a.termCounts[t]++
	}
	if zero {
		a.zeroResultQueries[ev.Query]++
	}
}

func (a *Aggregator) RecordIndex(ev IndexEvent) {
	a.indexBuilds.Add(1)
	a.mu.Lock()
	if ev.Generation >= a.lastGeneration {
		a.lastGeneration = ev.Generation
		a.indexedDocs = ev.Documents
	}
	a.mu.Unlock()
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:     a.totalQueries.Load(),
		MalformedQueries: a.malformed.Load(),
		ZeroResultCount:  a.zeroResults.Load(),
		IndexBuilds:      a.indexBuilds.Load(),
		LastGeneration:   a.lastGeneration,
		IndexedDocuments: a.indexedDocs,
		CacheStatus:      make(map[string]int64, len(a.cacheStatus)),
	}
	for k, v := range a.cacheStatus {
		stats.CacheStatus[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopTerms = topN(a.termCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then by key for a stable listing.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Direct publishes events straight into an in-process aggregator through the
// same decode path the Kafka consumer uses. It serves deployments without a
// broker.
type Direct struct {
	handler kafka.MessageHandler
}

func NewDirect(agg *Aggregator) *Direct {
	return &Direct{handler: HandleEvent(agg)}
}

func (d *Direct) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, ev := range events {
		value, err := json.Marshal(ev.Value)
		if err != nil {
			return fmt.Errorf("marshaling event value: %w", err)
		}
		if err := d.handler(ctx, []byte(ev.Key), value); err != nil {
			return err
		}
	}
	return nil
}
