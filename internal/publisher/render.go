package publisher

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/report.html.tmpl"))
	textTmpl = template.Must(template.ParseFS(templateFS, "templates/report.txt.tmpl"))
)

type reportView struct {
	Subject   string
	Language  string
	Method    string
	Date      time.Time
	SourceURL string
	Sentences []sentence
}

func newReportView(subject string, d *summarizer.Digest, highlight []string) reportView {
	return reportView{
		Subject:   subject,
		Language:  d.Language,
		Method:    d.Method,
		Date:      d.Date,
		SourceURL: d.SourceURL,
		Sentences: markSentences(d.Sentences, highlight),
	}
}

func renderHTML(v reportView) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

func renderText(v reportView) (string, error) {
	var buf bytes.Buffer
	if err := textTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render text: %w", err)
	}
	return buf.String(), nil
}
