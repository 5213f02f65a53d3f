package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ryosukesatoh/weekly-report/internal/llm"
)

// Abstractive asks a language model to write the summary.
type Abstractive struct {
	Generator llm.Generator
	Sentences int
	// Language is the ISO 639-1 code the summary is written in.
	Language string
	// Method names the backend in the digest, e.g. "gemini".
	Method string
}

type summaryJSON struct {
	Sentences []string `json:"sentences"`
}

func (a *Abstractive) Summarize(ctx context.Context, text string) (*Digest, error) {
	lang := a.Language
	if lang == "" {
		lang = "en"
	}
	d := &Digest{Language: lang, Method: a.Method}

	text = strings.TrimSpace(Truncate(text, MaxInputChars))
	if text == "" || a.Sentences <= 0 {
		return d, nil
	}

	body, err := a.Generator.Generate(ctx, a.buildPrompt(text, lang))
	if err != nil {
		return nil, fmt.Errorf("summarizer: %s: %w", a.Method, err)
	}

	d.Sentences = a.parseResponse(body)
	d.Original = append([]string(nil), d.Sentences...)
	return d, nil
}

func (a *Abstractive) buildPrompt(text, lang string) string {
	var sb strings.Builder
	sb.WriteString("You are an epidemiologist preparing a briefing from a weekly communicable disease threats report.\n\n")
	sb.WriteString("--- Report ---\n")
	sb.WriteString(text)
	sb.WriteString("\n--- End of report ---\n\n")
	fmt.Fprintf(&sb, `Summarize the report in at most %d sentences written in %s.
Cover the most significant threats, the countries affected and any change since the previous week.
Each sentence must stand on its own.

Respond in JSON with this exact structure:
{"sentences": ["first sentence", "second sentence"]}

Respond ONLY with valid JSON, no markdown fences or additional text.`, a.Sentences, LanguageName(lang))
	return sb.String()
}

// parseResponse accepts the JSON shape requested in the prompt and falls back
// to plain prose when the model ignores it.
func (a *Abstractive) parseResponse(body string) []string {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var sj summaryJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		return capSentences(body, a.Sentences)
	}

	out := make([]string, 0, len(sj.Sentences))
	for _, s := range sj.Sentences {
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > a.Sentences {
		out = out[:a.Sentences]
	}
	return out
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ca": "Catalan",
	"nl": "Dutch",
}

// LanguageName returns the English name for an ISO 639-1 code, or the code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
