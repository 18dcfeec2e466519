// Command indexer builds the positional index once, prints what it contains
// and exits. With -publish it also announces the build on the index events
// topic so a running analytics service records it.
//
// Usage:
//
//	go run ./cmd/indexer -dir ./corpus -top 25
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
)

// report is the -json output.
type report struct {
	Stats   index.Stats       `json:"stats"`
	Skipped []corpus.Skipped  `json:"skipped"`
	Top     []index.TermStats `json:"top_terms"`
}

func main() {
	configPath := flag.String("config", "", "optional path to config file")
	dir := flag.String("dir", "", "corpus directory (overrides corpus.dir)")
	top := flag.Int("top", 20, "number of most frequent terms to list")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	publish := flag.Bool("publish", false, "publish an index build event to kafka")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.Corpus.Dir = *dir
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := indexer.NewEngine(cfg.Corpus, metrics.New(nil))
	snap, err := engine.Build(ctx)
	if err != nil {
		slog.Error("index build failed", "dir", cfg.Corpus.Dir, "error", err)
		os.Exit(1)
	}

	rep := report{
		Stats:   snap.Index.Stats(),
		Skipped: snap.Skipped,
		Top:     topTerms(snap.Index, *top),
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			slog.Error("writing report failed", "error", err)
			os.Exit(1)
		}
	} else {
		printReport(os.Stdout, rep)
	}

	if *publish {
		if err := publishBuild(ctx, cfg, snap); err != nil {
			slog.Error("publishing index event failed", "error", err)
			os.Exit(1)
		}
	}
}

// topTerms returns the n terms with the most occurrences, ties broken by term.
func topTerms(ix *index.Index, n int) []index.TermStats {
	all := ix.Vocabulary("", 0)
	slices.SortStableFunc(all, func(a, b index.TermStats) int {
		if c := cmp.Compare(b.Occurrences, a.Occurrences); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func printReport(w io.Writer, rep report) {
	st := rep.Stats
	fmt.Fprintf(w, "generation %d built %s\n", st.Generation, humanize.Time(st.BuiltAt))
	fmt.Fprintf(w, "%s documents, %s distinct terms, %s postings, %s occurrences\n",
		humanize.Comma(int64(st.Documents)),
		humanize.Comma(int64(st.Terms)),
		humanize.Comma(int64(st.Postings)),
		humanize.Comma(int64(st.Occurrences)),
	)
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", s.Path, s.Error)
	}
	if len(rep.Top) == 0 {
		return
	}
	fmt.Fprintln(w, "\nmost frequent terms:")
	for i, t := range rep.Top {
		fmt.Fprintf(w, "%4d. %-20s %10s occurrences in %s documents\n",
			i+1, t.Term, humanize.Comma(int64(t.Occurrences)), humanize.Comma(int64(t.DocFreq)))
	}
}

func publishBuild(ctx context.Context, cfg *config.Config, snap *indexer.Snapshot) error {
	if err := kafka.EnsureTopics(ctx, cfg.Kafka, 1, cfg.Kafka.Topics.IndexEvents); err != nil {
		return err
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
	defer producer.Close()

	err := producer.Publish(ctx, kafka.Event{
		Key: string(analytics.EventIndexBuild),
		Value: analytics.IndexEvent{
			Type:       analytics.EventIndexBuild,
			Generation: snap.Index.Generation(),
			Documents:  snap.Index.DocCount(),
			Skipped:    len(snap.Skipped),
			Terms:      snap.Index.TermCount(),
			Timestamp:  time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	slog.Info("index build event published", "topic", cfg.Kafka.Topics.IndexEvents, "generation", snap.Index.Generation())
	return nil
}
