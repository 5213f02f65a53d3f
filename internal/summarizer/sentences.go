package summarizer

import (
	"strings"
	"sync"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// minWords drops page headers, numbers and table debris that the tokenizer
// reports as sentences.
const minWords = 4

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
	tokenizerErr  error
)

func loadTokenizer() (*sentences.DefaultSentenceTokenizer, error) {
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = english.NewSentenceTokenizer(nil)
	})
	return tokenizer, tokenizerErr
}

// SplitSentences splits text into sentences with the Punkt tokenizer,
// collapsing inner whitespace and dropping fragments shorter than minWords.
func SplitSentences(text string) []string {
	var raw []string
	if tok, err := loadTokenizer(); err == nil {
		for _, s := range tok.Tokenize(text) {
			raw = append(raw, s.Text)
		}
	} else {
		raw = splitOnTerminators(text)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		fields := strings.Fields(s)
		if len(fields) < minWords {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return out
}

// splitOnTerminators is the fallback when the trained model cannot be loaded.
func splitOnTerminators(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, string(runes[start:i+1]))
		start = i + 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// capSentences re-splits generated text and keeps at most n sentences.
func capSentences(text string, n int) []string {
	got := SplitSentences(text)
	if len(got) > n {
		got = got[:n]
	}
	return got
}
