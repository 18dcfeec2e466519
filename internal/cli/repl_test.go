package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/rpc"
)

type stubSearcher struct {
	queries []string
	resp    *proto.SearchResponse
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query, mode string) (*proto.SearchResponse, error) {
	s.queries = append(s.queries, query)
	return s.resp, s.err
}

func pairResponse() *proto.SearchResponse {
	return &proto.SearchResponse{Results: []proto.PairResult{{
		Terms: []string{"united", "states"},
		Gaps:  []int{1},
		Matches: []proto.Match{
			{DocID: 1, Path: "/corpus/a.txt", Positions: []int{10}},
			{DocID: 12, Positions: []int{3, 40}},
		},
	}}}
}

func TestRunPrintsReferenceFormat(t *testing.T) {
	s := &stubSearcher{resp: pairResponse()}
	var out bytes.Buffer
	r := New(strings.NewReader("united 1 states\nN\n"), &out, s, "", false)
	require.NoError(t, r.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "For example: united 0 states 2 engaged\n")
	assert.Contains(t, text, "Started searching for words: united, states. With maximum distance of: 1 \n")
	assert.Contains(t, text, "For file number: 1   The indexes for words united and states, with 1 max spaces in-between are: [10]\n")
	assert.Contains(t, text, "For file number: 12  The indexes for words united and states, with 1 max spaces in-between are: [3, 40]\n")
	assert.Contains(t, text, "Would you like to test another proximity query? Y/N ")
	assert.True(t, strings.HasSuffix(text, "\nExiting system.\n"))
	assert.Equal(t, []string{"united 1 states"}, s.queries)
}

func TestRunContinuesOnYes(t *testing.T) {
	s := &stubSearcher{resp: pairResponse()}
	var out bytes.Buffer
	r := New(strings.NewReader("united 1 states\ny\nunited 2 states\nno\n"), &out, s, "", true)
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"united 1 states", "united 2 states"}, s.queries)
	assert.Contains(t, out.String(), "are: [10] (/corpus/a.txt)\n")
}

func TestRunStopsAtEOF(t *testing.T) {
	s := &stubSearcher{resp: pairResponse()}
	var out bytes.Buffer
	require.NoError(t, New(strings.NewReader(""), &out, s, "", false).Run(context.Background()))
	assert.Empty(t, s.queries)
	assert.Contains(t, out.String(), "Exiting system.")
}

func TestRunReportsMalformedQueries(t *testing.T) {
	s := &stubSearcher{err: apperrors.Malformed("gap %q is not a number", "x")}
	var out bytes.Buffer
	require.NoError(t, New(strings.NewReader("united x states\nN\n"), &out, s, "", false).Run(context.Background()))
	assert.Contains(t, out.String(), `Invalid query: gap "x" is not a number`)

	s = &stubSearcher{err: &rpc.RemoteError{Code: 400, Message: "empty query"}}
	out.Reset()
	require.NoError(t, New(strings.NewReader(" \nN\n"), &out, s, "", false).Run(context.Background()))
	assert.Contains(t, out.String(), "Invalid query: empty query")
}

func TestRunFailsOnServiceErrors(t *testing.T) {
	s := &stubSearcher{err: errors.New("connection reset")}
	var out bytes.Buffer
	err := New(strings.NewReader("united 1 states\n"), &out, s, "", false).Run(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestChainedOutput(t *testing.T) {
	s := &stubSearcher{resp: &proto.SearchResponse{Results: []proto.PairResult{{
		Terms:   []string{"a", "b", "c"},
		Gaps:    []int{0, 2},
		Matches: []proto.Match{{DocID: 2, Positions: []int{7}}},
	}}}}
	var out bytes.Buffer
	require.NoError(t, New(strings.NewReader("a 0 b 2 c\nN\n"), &out, s, "chained", false).Run(context.Background()))
	assert.Contains(t, out.String(), "Started searching for words: a, b, c. With maximum distances of: 0, 2\n")
	assert.Contains(t, out.String(), "For file number: 2   The indexes for the chain a b c are: [7]\n")
}
