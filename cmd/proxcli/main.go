// Command proxcli is the interactive proximity query tool. By default it
// indexes the corpus directory itself; with -addr it queries a running
// search service over RPC instead.
//
// Usage:
//
//	go run ./cmd/proxcli -dir ./corpus
//	go run ./cmd/proxcli -addr localhost:9000 -mode chained
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/cli"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/intersect"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "", "optional path to config file")
	dir := flag.String("dir", "", "corpus directory (overrides corpus.dir)")
	addr := flag.String("addr", "", "query a running search service at this RPC address")
	mode := flag.String("mode", "", "pairwise or chained (default from config)")
	rule := flag.String("rule", "", "distance or legacy (default from config)")
	paths := flag.Bool("paths", false, "print the file path of each matching document")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "text")
	if err := run(*configPath, *dir, *addr, *mode, *rule, *paths); err != nil {
		fmt.Fprintf(os.Stderr, "proxcli: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dir, addr, mode, rule string, paths bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr != "" {
		client, err := rpc.Dial(addr, 5*time.Second)
		if err != nil {
			return err
		}
		defer client.Close()
		return cli.New(os.Stdin, os.Stdout, cli.Remote{Client: client}, mode, paths).Run(ctx)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.Corpus.Dir = dir
	}
	if rule == "" {
		rule = cfg.Search.ProximityRule
	}
	r, err := intersect.ParseRule(rule)
	if err != nil {
		return err
	}
	defaultMode, err := parser.ParseMode(cfg.Search.DefaultMode)
	if err != nil {
		return err
	}

	fmt.Printf("Input files directory path name is: %s\n", cfg.Corpus.Dir)
	fmt.Print("Start parsing words.\n")
	engine := indexer.NewEngine(cfg.Corpus, nil)
	snap, err := engine.Build(ctx)
	if err != nil {
		return err
	}
	fmt.Print("Stop parsing words.\n")
	printSummary(snap)

	h := handler.New(handler.Options{
		Snapshots:   engine,
		Parser:      parser.New(cfg.Search.MaxPairs, cfg.Search.MaxGap),
		Executor:    executor.New(engine, r, nil),
		DefaultMode: defaultMode,
	})
	return cli.New(os.Stdin, os.Stdout, h, mode, paths).Run(ctx)
}

func printSummary(snap *indexer.Snapshot) {
	var bytes uint64
	var words int64
	for _, d := range snap.Catalog.Documents() {
		bytes += uint64(d.Bytes)
		words += int64(d.Words)
	}
	st := snap.Index.Stats()
	fmt.Printf("Indexed %s documents (%s, %s words, %s distinct terms)\n",
		humanize.Comma(int64(st.Documents)),
		humanize.Bytes(bytes),
		humanize.Comma(words),
		humanize.Comma(int64(st.Terms)),
	)
	for _, s := range snap.Skipped {
		fmt.Printf("Skipped %s: %s\n", s.Path, s.Error)
	}
	fmt.Println()
}
