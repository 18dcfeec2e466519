// Package handler exposes the proximity query engine over HTTP and RPC. Both
// surfaces share one search path: parse, pin the serving snapshot, consult
// the result cache, execute, record metrics and emit an analytics event.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/tracing"
)

// Snapshots supplies the serving snapshot. *indexer.Engine implements it.
type Snapshots interface {
	Current() *indexer.Snapshot
}

// Tracker receives query events. *analytics.Collector implements it.
type Tracker interface {
	TrackQuery(ev analytics.QueryEvent)
}

// Options wires a Handler. Cache, Tracker and Metrics may be nil.
type Options struct {
	Snapshots   Snapshots
	Parser      *parser.Parser
	Executor    *executor.Executor
	Cache       *cache.QueryCache
	Tracker     Tracker
	Metrics     *metrics.Metrics
	DefaultMode parser.Mode
}

type Handler struct {
	snapshots   Snapshots
	parser      *parser.Parser
	executor    *executor.Executor
	cache       *cache.QueryCache
	tracker     Tracker
	metrics     *metrics.Metrics
	defaultMode parser.Mode
	logger      *slog.Logger
}

func New(opts Options) *Handler {
	p := opts.Parser
	if p == nil {
		p = parser.New(0, 0)
	}
	return &Handler{
		snapshots:   opts.Snapshots,
		parser:      p,
		executor:    opts.Executor,
		cache:       opts.Cache,
		tracker:     opts.Tracker,
		metrics:     opts.Metrics,
		defaultMode: opts.DefaultMode,
		logger:      slog.Default().With("component", "search-handler"),
	}
}

// snapshot returns the serving snapshot or ErrIndexNotReady.
func (h *Handler) snapshot() (*indexer.Snapshot, error) {
	snap := h.snapshots.Current()
	if snap == nil {
		return nil, apperrors.ErrIndexNotReady
	}
	return snap, nil
}

// Search parses and evaluates query. An empty mode selects the configured
// default.
func (h *Handler) Search(ctx context.Context, query, mode string) (*proto.SearchResponse, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()

	m := h.defaultMode
	if mode != "" {
		parsed, err := parser.ParseMode(mode)
		if err != nil {
			h.rejected(ctx, query, m, err)
			return nil, err
		}
		m = parsed
	}
	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	plan, err := h.parser.Parse(query)
	parseSpan.End()
	if err != nil {
		h.rejected(ctx, query, m, err)
		return nil, err
	}
	plan.Mode = m
	parseSpan.SetAttr("pairs", len(plan.Pairs))

	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	span.SetAttr("generation", snap.Index.Generation())
	compute := func() (*executor.SearchResult, error) {
		_, execSpan := tracing.StartChildSpan(ctx, "execute")
		defer execSpan.End()
		return h.executor.ExecuteIndex(ctx, snap.Index, plan)
	}

	var result *executor.SearchResult
	status := cache.StatusMiss
	if h.cache != nil {
		key := cache.Key(snap.Index.BuildID(), plan.Key()+" "+h.executor.Rule().String())
		cctx, cacheSpan := tracing.StartChildSpan(ctx, "cache")
		result, status, err = h.cache.GetOrCompute(cctx, key, compute)
		cacheSpan.SetAttr("status", string(status))
		cacheSpan.End()
	} else {
		result, err = compute()
	}
	if err != nil {
		h.count(m, "error")
		log.Error("search execution failed", "query", query, "error", err)
		return nil, err
	}

	latency := time.Since(start)
	matched := result.MatchedDocuments()
	outcome := "match"
	if matched == 0 {
		outcome = "zero_result"
	}
	h.count(m, outcome)
	span.SetAttr("matched_documents", matched)
	if h.metrics != nil {
		h.metrics.QueryLatency.WithLabelValues(string(status)).Observe(latency.Seconds())
	}

	log.Info("search completed",
		"query", plan.String(),
		"mode", m.String(),
		"generation", result.Generation,
		"matched_documents", matched,
		"cache_status", status,
		"latency_us", latency.Microseconds(),
	)
	if h.tracker != nil {
		h.tracker.TrackQuery(analytics.QueryEvent{
			Query:       plan.String(),
			Mode:        m.String(),
			Terms:       plan.Terms,
			MatchedDocs: matched,
			LatencyUs:   latency.Microseconds(),
			CacheStatus: string(status),
			Generation:  result.Generation,
			RequestID:   logger.RequestID(ctx),
		})
	}
	return toResponse(result, snap, status), nil
}

func (h *Handler) rejected(ctx context.Context, query string, mode parser.Mode, err error) {
	h.count(mode, "malformed")
	logger.FromContext(ctx).Info("query rejected", "query", query, "reason", apperrors.Message(err))
	if h.tracker != nil && errors.Is(err, apperrors.ErrMalformedQuery) {
		h.tracker.TrackQuery(analytics.QueryEvent{
			Query:     query,
			Mode:      mode.String(),
			Malformed: true,
			RequestID: logger.RequestID(ctx),
		})
	}
}

func (h *Handler) count(mode parser.Mode, outcome string) {
	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(mode.String(), outcome).Inc()
	}
}

func toResponse(res *executor.SearchResult, snap *indexer.Snapshot, status cache.Status) *proto.SearchResponse {
	out := &proto.SearchResponse{
		Query:       res.Query,
		Mode:        res.Mode,
		Rule:        res.Rule,
		Generation:  res.Generation,
		Results:     make([]proto.PairResult, 0, len(res.Results)),
		CacheStatus: string(status),
		TookMicros:  res.TookMicros,
	}
	for _, r := range res.Results {
		pr := proto.PairResult{
			Terms:   r.Terms,
			Gaps:    r.Gaps,
			Matches: make([]proto.Match, 0, len(r.Documents)),
		}
		for _, d := range r.Documents {
			match := proto.Match{DocID: uint32(d.DocID), Positions: d.Positions}
			if doc, ok := snap.Catalog.Lookup(d.DocID); ok {
				match.Path = doc.Path
			}
			pr.Matches = append(pr.Matches, match)
		}
		out.Results = append(out.Results, pr)
	}
	return out
}

// Positions returns the stored positions of term in doc.
func (h *Handler) Positions(term string, doc uint32) (*proto.PositionsResponse, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	normalized, ok := tokenizer.Normalize(term)
	if !ok {
		return nil, apperrors.Malformed("term %q must contain only letters", term)
	}
	id := index.DocID(doc)
	if _, found := snap.Catalog.Lookup(id); !found {
		return nil, apperrors.Newf(apperrors.ErrUnknownDocument, http.StatusNotFound, "document %d does not exist", doc)
	}
	positions, found := snap.Index.Positions(normalized, id)
	if !found {
		return nil, apperrors.Newf(apperrors.ErrUnknownTerm, http.StatusNotFound, "term %q does not occur in document %d", normalized, doc)
	}
	return &proto.PositionsResponse{Term: normalized, DocID: doc, Positions: positions}, nil
}

// Stats describes the serving generation.
func (h *Handler) Stats() (*proto.StatsResponse, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	st := snap.Index.Stats()
	return &proto.StatsResponse{
		Generation:  st.Generation,
		BuildID:     st.BuildID,
		Documents:   st.Documents,
		Terms:       st.Terms,
		Postings:    st.Postings,
		Occurrences: st.Occurrences,
		Skipped:     len(snap.Skipped),
		BuiltAt:     st.BuiltAt.UTC().Format(time.RFC3339),
	}, nil
}
