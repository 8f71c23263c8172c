package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `It was the best of times, it was the worst of times, it was the age of
        wisdom, it was the age of foolishness, it was the epoch of belief, it was the
        epoch of incredulity, it was the season of Light, it was the season of Darkness,
        it was the spring of hope, it was the winter of despair.`,
	"long": strings.Repeat(`Call me Ishmael. Some years ago, never mind how long precisely,
        having little or no money in my purse, and nothing particular to interest me on
        shore, I thought I would sail about a little and see the watery part of the world.
        It is a way I have of driving off the spleen and regulating the circulation. Café,
        naïve and résumé fold to their plain forms. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	a := tokenizer.New(tokenizer.DefaultOptions())
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Frequencies(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	a := tokenizer.New(tokenizer.DefaultOptions())
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = a.Frequencies(text)
		}
	})
}

func BenchmarkStemming(b *testing.B) {
	a := tokenizer.New(tokenizer.Options{MinTokenLength: 2, StopWords: true, Stem: true})
	words := []string{
		"running", "wandering", "whaling", "harpooned",
		"revolutionary", "circulation", "precisely",
		"despairing", "incredulity", "foolishness",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = a.Tokenize(w)
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	a := tokenizer.New(tokenizer.DefaultOptions())
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "whale ocean voyage harpoon captain "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Tokenize(text)
			}
		})
	}
}
