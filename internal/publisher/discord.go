package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ryosukesatoh/weekly-report/internal/retry"
	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
)

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	URL         string              `json:"url,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

const (
	discordColor          = 0x005BA4
	discordDescriptionMax = 4096
)

// DiscordPublisher mirrors the digest to a Discord channel via webhook.
type DiscordPublisher struct {
	webhookURL  string
	subject     string
	highlight   []string
	client      *http.Client
	retryConfig retry.Config
	batchDelay  time.Duration
}

// NewDiscordPublisher creates a new DiscordPublisher.
func NewDiscordPublisher(webhookURL, subject string, highlight []string) *DiscordPublisher {
	return &DiscordPublisher{
		webhookURL: webhookURL,
		subject:    subject,
		highlight:  highlight,
		client:     &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.Config{
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
		},
		batchDelay: 500 * time.Millisecond,
	}
}

// Publish sends the digest to Discord as one or more embeds.
func (d *DiscordPublisher) Publish(ctx context.Context, digest *summarizer.Digest) error {
	batches := batchEmbeds(d.buildEmbeds(digest))

	for i, batch := range batches {
		err := retry.WithBackoff(ctx, d.retryConfig, func(ctx context.Context) error {
			return d.sendWebhook(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("discord: failed to send batch %d: %w", i+1, err)
		}

		// Delay between batches to avoid rate limits.
		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.batchDelay):
			}
		}
	}
	return nil
}

// buildEmbeds packs the sentences into as few embeds as the description limit allows.
// Highlighted sentences are bold.
func (d *DiscordPublisher) buildEmbeds(digest *summarizer.Digest) []discordEmbed {
	var (
		chunks []string
		cur    strings.Builder
	)
	for _, s := range markSentences(digest.Sentences, d.highlight) {
		line := "• " + truncate(s.Text, discordDescriptionMax-8)
		if s.Highlight {
			line = "• **" + truncate(s.Text, discordDescriptionMax-8) + "**"
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > discordDescriptionMax {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	embeds := make([]discordEmbed, len(chunks))
	for i, c := range chunks {
		embeds[i] = discordEmbed{Description: c, Color: discordColor}
	}

	first := &embeds[0]
	first.Title = truncate(d.subject, 256)
	first.URL = digest.SourceURL

	last := &embeds[len(embeds)-1]
	if !digest.Date.IsZero() {
		last.Footer = &discordEmbedFooter{Text: digest.Date.Format("2006-01-02")}
		last.Timestamp = digest.Date.Format(time.RFC3339)
	}
	return embeds
}

// batchEmbeds splits embeds into batches respecting Discord limits:
// max 10 embeds per message, max 6000 total characters per message.
func batchEmbeds(embeds []discordEmbed) [][]discordEmbed {
	var batches [][]discordEmbed
	var current []discordEmbed
	currentChars := 0

	for _, e := range embeds {
		ec := embedCharCount(e)

		if len(current) > 0 && (len(current) >= 10 || currentChars+ec > 6000) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, e)
		currentChars += ec
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// sendWebhook posts a batch of embeds to the Discord webhook.
func (d *DiscordPublisher) sendWebhook(ctx context.Context, embeds []discordEmbed) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: embeds})
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.StatusError{Code: resp.StatusCode}
	}
	return nil
}

// truncate shortens s to max bytes, preferring a sentence boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := summarizer.Truncate(s, max-3)
	if idx := strings.LastIndexAny(cut, ".!?"); idx > max/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

// embedCharCount returns the total character count of an embed for batching purposes.
func embedCharCount(e discordEmbed) int {
	n := len(e.Title) + len(e.Description)
	if e.Footer != nil {
		n += len(e.Footer.Text)
	}
	return n
}
