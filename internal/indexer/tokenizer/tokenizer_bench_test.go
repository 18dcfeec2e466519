package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `When in the Course of human events, it becomes necessary for one people
        to dissolve the political bands which have connected them with another, and to
        assume among the powers of the earth, the separate and equal station to which
        the Laws of Nature and of Nature's God entitle them.`,
	"long": strings.Repeat(`We hold these truths to be self-evident, that all men are created
        equal, that they are endowed by their Creator with certain unalienable Rights,
        that among these are Life, Liberty and the pursuit of Happiness. `, 50),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkScannerVaryingSize(b *testing.B) {
	base := "united states of america, engaged in a great civil war. "
	for _, size := range []int{100, 1000, 10000, 100000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				s := NewScanner(strings.NewReader(text))
				for s.Scan() {
				}
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text)
		}
	})
}
