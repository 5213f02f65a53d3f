package summarizer

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxInputChars bounds the text fed to any summarizer. Weekly reports run to
// dozens of pages; the executive summary sits at the front.
const MaxInputChars = 20000

const (
	similarityThreshold = 0.1
	damping             = 0.15
	convergence         = 1e-6
	maxIterations       = 100
)

// LexRank is an extractive summarizer: sentences are ranked by eigenvector
// centrality over a TF-IDF cosine similarity graph.
type LexRank struct {
	Sentences int
}

func NewLexRank(sentences int) *LexRank {
	return &LexRank{Sentences: sentences}
}

func (l *LexRank) Summarize(ctx context.Context, text string) (*Digest, error) {
	d := &Digest{Language: "en", Method: "lexrank"}
	if l.Sentences <= 0 {
		return d, nil
	}

	sentences := SplitSentences(Truncate(text, MaxInputChars))
	if len(sentences) == 0 {
		return d, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	picked := sentences
	if len(sentences) > l.Sentences {
		scores := rank(tokenize(sentences))
		picked = topInDocumentOrder(sentences, scores, l.Sentences)
	}

	d.Sentences = picked
	d.Original = append([]string(nil), picked...)
	return d, nil
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var stopWords = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(`a an and are as at be by for from has have in is it its
		of on or that the this to was were will with which who during week weeks
		el la los las de del y en por con para un una que se`) {
		m[w] = struct{}{}
	}
	return m
}()

func tokenize(sentences []string) [][]string {
	out := make([][]string, len(sentences))
	for i, s := range sentences {
		words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		kept := words[:0]
		for _, w := range words {
			if _, stop := stopWords[w]; stop {
				continue
			}
			kept = append(kept, w)
		}
		out[i] = kept
	}
	return out
}

// rank returns a centrality score per sentence.
func rank(docs [][]string) []float64 {
	n := len(docs)
	tf := make([]map[string]float64, n)
	df := make(map[string]int)
	for i, words := range docs {
		counts := make(map[string]float64)
		var maxCount float64
		for _, w := range words {
			counts[w]++
			maxCount = math.Max(maxCount, counts[w])
		}
		for w := range counts {
			counts[w] /= maxCount
			df[w]++
		}
		tf[i] = counts
	}

	idf := make(map[string]float64, len(df))
	for w, c := range df {
		idf[w] = math.Log(1 + float64(n)/float64(c))
	}

	norms := make([]float64, n)
	for i := range tf {
		var sum float64
		for w, v := range tf[i] {
			x := v * idf[w]
			sum += x * x
		}
		norms[i] = math.Sqrt(sum)
	}

	// Thresholded adjacency, row-normalised by degree.
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		var degree float64
		for j := 0; j < n; j++ {
			if i == j || cosine(tf[i], tf[j], idf, norms[i], norms[j]) > similarityThreshold {
				matrix[i][j] = 1
				degree++
			}
		}
		for j := range matrix[i] {
			matrix[i][j] /= degree
		}
	}

	return powerIterate(matrix)
}

func cosine(a, b map[string]float64, idf map[string]float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for w, va := range a {
		if vb, ok := b[w]; ok {
			dot += va * vb * idf[w] * idf[w]
		}
	}
	return dot / (normA * normB)
}

func powerIterate(matrix [][]float64) []float64 {
	n := len(matrix)
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}

	next := make([]float64, n)
	for iter := 0; iter < maxIterations; iter++ {
		for j := range next {
			var sum float64
			for i := 0; i < n; i++ {
				sum += matrix[i][j] * p[i]
			}
			next[j] = damping/float64(n) + (1-damping)*sum
		}

		var delta float64
		for i := range p {
			delta += math.Abs(next[i] - p[i])
		}
		p, next = next, p
		if delta < convergence {
			break
		}
	}
	return p
}

// topInDocumentOrder selects the n best scored sentences and returns them in
// the order they appear in the source. Ties go to the earlier sentence.
func topInDocumentOrder(sentences []string, scores []float64, n int) []string {
	idx := make([]int, len(sentences))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	idx = idx[:n]
	sort.Ints(idx)

	out := make([]string, n)
	for i, j := range idx {
		out[i] = sentences[j]
	}
	return out
}
