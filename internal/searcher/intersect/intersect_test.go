package intersect

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bruteForce(a, b []int, maxGap int) []int {
	var out []int
	for _, x := range a {
		for _, y := range b {
			d := x - y
			if d < 0 {
				d = -d
			}
			if d-1 <= maxGap {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

// randomPositions returns a strictly increasing list of n positions.
func randomPositions(r *rand.Rand, n, maxStep int) []int {
	out := make([]int, n)
	pos := 0
	for i := range out {
		pos += 1 + r.IntN(maxStep)
		out[i] = pos
	}
	return out
}

func TestIntersectScenarios(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
		gap  int
		want []int
	}{
		{"adjacent words with one gap", []int{10}, []int{11}, 1, []int{10}},
		{"adjacent words with zero gap", []int{10}, []int{11}, 0, []int{10}},
		{"large offsets", []int{5, 50, 500}, []int{6, 51, 600}, 0, []int{5, 50}},
		{"b before a", []int{20}, []int{17}, 1, nil},
		{"b before a within gap", []int{20}, []int{17}, 2, []int{20}},
		{"gap spans document", []int{3, 40, 900}, []int{1, 700}, 10000, []int{3, 40, 900}},
		{"shared partner", []int{4, 6}, []int{5}, 0, []int{4, 6}},
		{"no partner", []int{1, 2, 3}, []int{100, 200}, 5, nil},
		{"max gap", []int{5, 50}, []int{6, 600}, math.MaxInt, []int{5, 50}},
		{"near max gap", []int{5, 50}, []int{6, 600}, math.MaxInt - 5, []int{5, 50}},
		{"max gap far apart", []int{1}, []int{math.MaxInt / 2}, math.MaxInt - 1, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Intersect(tt.a, tt.b, tt.gap)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntersectEmptyInput(t *testing.T) {
	assert.Empty(t, Intersect(nil, []int{1, 2}, 3))
	assert.Empty(t, Intersect([]int{1, 2}, nil, 3))
	assert.Empty(t, Intersect([]int{}, []int{}, 3))
	assert.Empty(t, Intersect([]int{1}, []int{2}, -1))
}

func TestIntersectMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	for iter := 0; iter < 500; iter++ {
		a := randomPositions(r, 1+r.IntN(300), 1+r.IntN(40))
		b := randomPositions(r, 1+r.IntN(300), 1+r.IntN(40))
		gap := r.IntN(12)
		require.Equal(t, bruteForce(a, b, gap), Intersect(a, b, gap), "a=%v b=%v gap=%d", a, b, gap)
	}
}

func TestIntersectProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 9))
	for iter := 0; iter < 300; iter++ {
		a := randomPositions(r, 1+r.IntN(100), 1+r.IntN(30))
		b := randomPositions(r, 1+r.IntN(100), 1+r.IntN(30))
		g1 := r.IntN(10)
		g2 := g1 + 1 + r.IntN(10)

		small := Intersect(a, b, g1)
		large := Intersect(a, b, g2)
		for _, p := range small {
			assert.Contains(t, a, p, "result must be drawn from the first list")
			assert.Contains(t, large, p, "widening the gap must not drop %d", p)
		}
		assert.True(t, slices.IsSorted(large))
		assert.Equal(t, len(small) > 0, len(Intersect(b, a, g1)) > 0, "existence must be symmetric")
		assert.Equal(t, a, Intersect(a, b, math.MaxInt), "an unbounded gap keeps every position")
	}
}

func TestIntersectDoesNotMutateInputs(t *testing.T) {
	a := []int{1, 5, 9, 200}
	b := []int{2, 6, 300}
	aCopy, bCopy := slices.Clone(a), slices.Clone(b)
	Intersect(a, b, 3)
	IntersectWithStats(a, b, 3, RuleLegacyWindow)
	assert.Equal(t, aCopy, a)
	assert.Equal(t, bCopy, b)
}

func TestIntersectSkipsLongRuns(t *testing.T) {
	a := make([]int, 400)
	for i := range a {
		a[i] = i + 1
	}
	b := []int{1000, 1001}

	got, st := IntersectWithStats(a, b, 0, RuleWordDistance)
	assert.Empty(t, got)
	assert.Positive(t, st.Skips)
	assert.Less(t, st.Comparisons, len(a))

	got, st = IntersectWithStats(b, a, 0, RuleWordDistance)
	assert.Empty(t, got)
	assert.Positive(t, st.Skips)
}

func TestLegacyWindow(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
		gap  int
		want []int
	}{
		{"window match consumes both heads", []int{1, 5, 9}, []int{3, 6, 20}, 2, []int{5}},
		{"lagging second list is reported", []int{10, 30}, []int{9, 40}, 3, []int{9}},
		{"zero gap needs equality", []int{4, 8}, []int{4, 9}, 0, []int{4}},
		{"single element lists are compared", []int{7}, []int{7}, 0, []int{7}},
		{"window shrinks with remaining length", []int{10}, []int{11}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := IntersectWithStats(tt.a, tt.b, tt.gap, RuleLegacyWindow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLegacyWindowSkips(t *testing.T) {
	a := make([]int, 100)
	for i := range a {
		a[i] = i + 1
	}
	got, st := IntersectWithStats(a, []int{95, 300}, 2, RuleLegacyWindow)
	assert.Equal(t, []int{94}, got)
	assert.Positive(t, st.Skips)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("Legacy")
	require.NoError(t, err)
	assert.Equal(t, RuleLegacyWindow, r)

	r, err = ParseRule("")
	require.NoError(t, err)
	assert.Equal(t, RuleWordDistance, r)
	assert.Equal(t, "distance", r.String())

	_, err = ParseRule("fuzzy")
	assert.Error(t, err)
}

func TestStride(t *testing.T) {
	assert.Equal(t, 1, Stride(0))
	assert.Equal(t, 1, Stride(3))
	assert.Equal(t, 2, Stride(4))
	assert.Equal(t, 31, Stride(1000))
}

func BenchmarkIntersectRandom(b *testing.B) {
	r := rand.New(rand.NewPCG(1, 1))
	common := randomPositions(r, 20000, 8)
	rare := randomPositions(r, 40, 4000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Intersect(common, rare, 3)
	}
}

func BenchmarkIntersectLegacy(b *testing.B) {
	r := rand.New(rand.NewPCG(1, 1))
	common := randomPositions(r, 20000, 8)
	rare := randomPositions(r, 40, 4000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		IntersectWithStats(common, rare, 3, RuleLegacyWindow)
	}
}
