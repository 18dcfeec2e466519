// Package cli implements the interactive proximity query loop: read a query
// such as "united 0 states 2 engaged", print each matching document's
// positions, and ask whether to continue.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/rpc"
)

// Searcher answers a query. *handler.Handler and Remote implement it.
type Searcher interface {
	Search(ctx context.Context, query, mode string) (*proto.SearchResponse, error)
}

// Remote sends queries to a running search service over RPC.
type Remote struct {
	Client *rpc.Client
}

func (r Remote) Search(ctx context.Context, query, mode string) (*proto.SearchResponse, error) {
	var resp proto.SearchResponse
	if err := r.Client.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: query, Mode: mode}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type REPL struct {
	in       *bufio.Scanner
	out      io.Writer
	searcher Searcher
	mode     string
	showPath bool
}

// New returns a loop reading from in and writing to out. An empty mode uses
// the searcher's default.
func New(in io.Reader, out io.Writer, s Searcher, mode string, showPath bool) *REPL {
	return &REPL{
		in:       bufio.NewScanner(in),
		out:      out,
		searcher: s,
		mode:     mode,
		showPath: showPath,
	}
}

// Run loops until the user declines to continue, input ends or ctx is
// cancelled. Rejected queries are reported and the loop goes on.
func (r *REPL) Run(ctx context.Context) error {
	for {
		fmt.Fprintln(r.out, "Please enter strings separated by an integer of the maximum distance between words:")
		fmt.Fprintln(r.out, "For example: united 0 states 2 engaged")
		line, ok := r.readLine()
		if !ok {
			break
		}
		if err := r.query(ctx, line); err != nil {
			return err
		}
		fmt.Fprint(r.out, "Would you like to test another proximity query? Y/N ")
		answer, ok := r.readLine()
		if !ok || !strings.EqualFold(strings.TrimSpace(answer), "y") {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(r.out, "\nExiting system.")
	return r.in.Err()
}

func (r *REPL) readLine() (string, bool) {
	if !r.in.Scan() {
		return "", false
	}
	return r.in.Text(), true
}

// query runs one query. Only failures that are not the user's fault end the
// loop.
func (r *REPL) query(ctx context.Context, line string) error {
	resp, err := r.searcher.Search(ctx, line, r.mode)
	if err != nil {
		var remote *rpc.RemoteError
		switch {
		case errors.Is(err, apperrors.ErrMalformedQuery):
			fmt.Fprintf(r.out, "Invalid query: %s\n\n", apperrors.Message(err))
			return nil
		case errors.As(err, &remote) && remote.Code < 500:
			fmt.Fprintf(r.out, "Invalid query: %s\n\n", remote.Message)
			return nil
		default:
			return fmt.Errorf("searching %q: %w", line, err)
		}
	}
	for _, res := range resp.Results {
		r.printResult(res)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) printResult(res proto.PairResult) {
	if len(res.Terms) == 2 {
		fmt.Fprintf(r.out, "Started searching for words: %s, %s. With maximum distance of: %-2d\n",
			res.Terms[0], res.Terms[1], res.Gaps[0])
	} else {
		fmt.Fprintf(r.out, "Started searching for words: %s. With maximum distances of: %s\n",
			strings.Join(res.Terms, ", "), joinInts(res.Gaps))
	}
	for _, m := range res.Matches {
		if len(res.Terms) == 2 {
			fmt.Fprintf(r.out, "For file number: %-3d The indexes for words %s and %s, with %d max spaces in-between are: [%s]",
				m.DocID, res.Terms[0], res.Terms[1], res.Gaps[0], joinInts(m.Positions))
		} else {
			fmt.Fprintf(r.out, "For file number: %-3d The indexes for the chain %s are: [%s]",
				m.DocID, strings.Join(res.Terms, " "), joinInts(m.Positions))
		}
		if r.showPath && m.Path != "" {
			fmt.Fprintf(r.out, " (%s)", m.Path)
		}
		fmt.Fprintln(r.out)
	}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
