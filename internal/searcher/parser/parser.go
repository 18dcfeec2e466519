// Package parser turns a proximity query such as "united 1 states 5 then"
// into a QueryPlan: an alternating sequence of terms and word gaps.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
)

// Mode controls how a query with more than two terms is evaluated.
type Mode int

const (
	// ModePairwise evaluates every consecutive pair on its own and reports
	// one result per pair.
	ModePairwise Mode = iota
	// ModeChained requires one chain of positions satisfying every gap and
	// reports positions of the first term.
	ModeChained
)

func (m Mode) String() string {
	if m == ModeChained {
		return "chained"
	}
	return "pairwise"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pairwise":
		return ModePairwise, nil
	case "chained":
		return ModeChained, nil
	default:
		return 0, apperrors.Malformed("unknown mode %q, expected pairwise or chained", s)
	}
}

// Pair is two adjacent query terms and the largest number of words allowed
// strictly between them.
type Pair struct {
	Term1 string `json:"term1"`
	Term2 string `json:"term2"`
	Gap   int    `json:"gap"`
}

type QueryPlan struct {
	Terms    []string `json:"terms"`
	Gaps     []int    `json:"gaps"`
	Pairs    []Pair   `json:"pairs"`
	Mode     Mode     `json:"-"`
	RawQuery string   `json:"raw_query"`
}

// Key is a canonical form of the plan, used to identify equal queries.
func (p *QueryPlan) Key() string {
	var sb strings.Builder
	sb.WriteString(p.Mode.String())
	for i, term := range p.Terms {
		sb.WriteByte(' ')
		if i > 0 {
			sb.WriteString(strconv.Itoa(p.Gaps[i-1]))
			sb.WriteByte(' ')
		}
		sb.WriteString(term)
	}
	return sb.String()
}

// Parser enforces size limits on parsed queries. Zero limits are unbounded.
type Parser struct {
	MaxPairs int
	MaxGap   int
}

func New(maxPairs, maxGap int) *Parser {
	return &Parser{MaxPairs: maxPairs, MaxGap: maxGap}
}

// Parse parses query with no size limits.
func Parse(query string) (*QueryPlan, error) {
	return (&Parser{}).Parse(query)
}

// Parse splits query on whitespace and expects "term gap term [gap term]...".
// Terms are lowercased and must be alphabetic; gaps must be non-negative
// integers.
func (p *Parser) Parse(query string) (*QueryPlan, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil, apperrors.Malformed("empty query")
	}
	if len(words) < 3 || len(words)%2 == 0 {
		return nil, apperrors.Malformed(
			"query must alternate terms and gaps, like \"united 0 states\"; got %d tokens", len(words))
	}
	pairs := len(words) / 2
	if p.MaxPairs > 0 && pairs > p.MaxPairs {
		return nil, apperrors.Malformed("query has %d term pairs, at most %d allowed", pairs, p.MaxPairs)
	}

	plan := &QueryPlan{
		Terms:    make([]string, 0, pairs+1),
		Gaps:     make([]int, 0, pairs),
		Pairs:    make([]Pair, 0, pairs),
		RawQuery: query,
	}
	for i, word := range words {
		if i%2 == 0 {
			term, ok := tokenizer.Normalize(word)
			if !ok {
				return nil, apperrors.Malformed("term %q must contain only letters", word)
			}
			plan.Terms = append(plan.Terms, term)
			continue
		}
		gap, err := parseGap(word)
		if err != nil {
			return nil, err
		}
		if p.MaxGap > 0 && gap > p.MaxGap {
			return nil, apperrors.Malformed("gap %d exceeds the maximum of %d", gap, p.MaxGap)
		}
		plan.Gaps = append(plan.Gaps, gap)
	}
	for i, gap := range plan.Gaps {
		plan.Pairs = append(plan.Pairs, Pair{
			Term1: plan.Terms[i],
			Term2: plan.Terms[i+1],
			Gap:   gap,
		})
	}
	return plan, nil
}

func parseGap(word string) (int, error) {
	for i := 0; i < len(word); i++ {
		if word[i] < '0' || word[i] > '9' {
			return 0, apperrors.Malformed("gap %q must be a non-negative integer", word)
		}
	}
	gap, err := strconv.Atoi(word)
	if err != nil {
		return 0, apperrors.Malformed("gap %q is out of range", word)
	}
	return gap, nil
}

// String renders the plan back into query syntax.
func (p *QueryPlan) String() string {
	parts := make([]string, 0, len(p.Terms)+len(p.Gaps))
	for i, term := range p.Terms {
		if i > 0 {
			parts = append(parts, fmt.Sprint(p.Gaps[i-1]))
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, " ")
}
