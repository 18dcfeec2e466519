// Package intersect merges two ascending position lists and keeps the
// positions of the first list that have a partner in the second within a
// word gap. Both lists are walked with read-only cursors that can jump
// sqrt(n) elements at a time, so long lists of common words are not scanned
// one element at a time.
package intersect

import (
	"fmt"
	"math"
	"strings"
)

// Rule selects the proximity test used by the merge.
type Rule int

const (
	// RuleWordDistance matches a and b when at most gap words lie strictly
	// between them, that is |a-b|-1 <= gap. A position of the second list
	// may be the partner of several positions of the first.
	RuleWordDistance Rule = iota
	// RuleLegacyWindow reproduces the windowed comparison of the original
	// command-line tool, including its habit of reporting the lagging list's
	// position on a match. Results may contain positions of either list.
	RuleLegacyWindow
)

func (r Rule) String() string {
	switch r {
	case RuleWordDistance:
		return "distance"
	case RuleLegacyWindow:
		return "legacy"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// ParseRule maps a configuration name to a Rule.
func ParseRule(name string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "distance":
		return RuleWordDistance, nil
	case "legacy":
		return RuleLegacyWindow, nil
	default:
		return 0, fmt.Errorf("unknown proximity rule %q", name)
	}
}

// Stats counts cursor work done by one merge.
type Stats struct {
	Comparisons int `json:"comparisons"`
	Skips       int `json:"skips"`
	Steps       int `json:"steps"`
}

func (s *Stats) Add(o Stats) {
	s.Comparisons += o.Comparisons
	s.Skips += o.Skips
	s.Steps += o.Steps
}

// Intersect returns, in ascending order, the positions of a that lie within
// maxGap words of some position of b. A nil or empty list, or a negative
// gap, yields an empty result.
func Intersect(a, b []int, maxGap int) []int {
	out, _ := IntersectWithStats(a, b, maxGap, RuleWordDistance)
	return out
}

// IntersectWithStats runs the merge under rule and reports the cursor work.
func IntersectWithStats(a, b []int, maxGap int, rule Rule) ([]int, Stats) {
	var st Stats
	if len(a) == 0 || len(b) == 0 || maxGap < 0 {
		return nil, st
	}
	switch rule {
	case RuleLegacyWindow:
		return legacyWindow(a, b, maxGap, &st), st
	default:
		return wordDistance(a, b, maxGap, &st), st
	}
}

// Stride is the skip distance for a list of n positions.
func Stride(n int) int {
	s := int(math.Sqrt(float64(n)))
	if s < 1 {
		return 1
	}
	return s
}

func wordDistance(a, b []int, maxGap int, st *Stats) []int {
	// Largest |a-b| that still satisfies |a-b|-1 <= maxGap. Positions are
	// positive, so the differences below cannot overflow.
	reach := math.MaxInt
	if maxGap < math.MaxInt-1 {
		reach = maxGap + 1
	}
	skipA, skipB := Stride(len(a)), Stride(len(b))

	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		st.Comparisons++
		ai, bj := a[i], b[j]
		switch {
		case ai-bj > reach:
			// b[j] is behind every remaining a.
			if j+skipB < len(b) && ai-b[j+skipB] > reach {
				j += skipB
				st.Skips++
			} else {
				j++
				st.Steps++
			}
		case bj-ai > reach:
			// Every b before j was already behind a[i], so a[i] has no partner.
			if i+skipA < len(a) && bj-a[i+skipA] > reach {
				i += skipA
				st.Skips++
			} else {
				i++
				st.Steps++
			}
		default:
			out = append(out, ai)
			i++
			st.Steps++
		}
	}
	return out
}

func legacyWindow(a, b []int, maxGap int, st *Stats) []int {
	skipA, skipB := Stride(len(a)), Stride(len(b))

	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		st.Comparisons++
		ai, bj := a[i], b[j]
		switch {
		case ai == bj:
			out = append(out, ai)
			i++
			j++
			st.Steps++
		case ai < bj:
			if ai > bj-min(len(a)-i, maxGap) {
				out = append(out, ai)
				i++
				j++
				st.Steps++
				continue
			}
			i = legacyAdvance(a, i, skipA, bj, st)
		default:
			if bj > ai-min(len(b)-j, maxGap) {
				out = append(out, bj)
				i++
				j++
				st.Steps++
				continue
			}
			j = legacyAdvance(b, j, skipB, ai, st)
		}
	}
	return out
}

// legacyAdvance moves cursor i of list by whole strides while the element a
// stride ahead is not past head, or by one element when no stride fits.
func legacyAdvance(list []int, i, stride, head int, st *Stats) int {
	if stride < len(list)-i-1 && list[i+stride] <= head {
		for stride < len(list)-i-1 && list[i+stride] <= head {
			i += stride
			st.Skips++
		}
		return i
	}
	st.Steps++
	return i + 1
}
