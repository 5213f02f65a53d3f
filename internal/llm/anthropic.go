package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ryosukesatoh/weekly-report/internal/retry"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultAnthropicURL   = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
)

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// Endpoint overrides the Messages API URL.
	Endpoint string
	Client   *http.Client
	Retry    *retry.Config
}

// AnthropicProvider implements Generator with the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	client    *http.Client
	retry     retry.Config
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: ANTHROPIC_API_KEY not set")
	}

	p := &AnthropicProvider{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		endpoint:  cfg.Endpoint,
		client:    cfg.Client,
		retry:     retry.DefaultConfig(),
	}
	if p.model == "" {
		p.model = DefaultAnthropicModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = 2048
	}
	if p.endpoint == "" {
		p.endpoint = defaultAnthropicURL
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.Retry != nil {
		p.retry = *cfg.Retry
	}
	return p, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	jsonData, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	var out string
	err = retry.WithBackoff(ctx, p.retry, func(ctx context.Context) error {
		text, err := p.call(ctx, jsonData)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

func (p *AnthropicProvider) call(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("anthropic: failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: failed to read response: %w", err)
	}

	var apiResp anthropicResponse
	jsonErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode != http.StatusOK {
		statusErr := &retry.StatusError{URL: p.endpoint, Code: resp.StatusCode}
		if jsonErr == nil && apiResp.Error != nil {
			return "", fmt.Errorf("anthropic: API error: %s - %s: %w", apiResp.Error.Type, apiResp.Error.Message, statusErr)
		}
		return "", fmt.Errorf("anthropic: %w", statusErr)
	}
	if jsonErr != nil {
		return "", retry.Permanent(fmt.Errorf("anthropic: failed to parse response: %w", jsonErr))
	}
	if apiResp.Error != nil {
		return "", retry.Permanent(fmt.Errorf("anthropic: API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	var sb strings.Builder
	for _, c := range apiResp.Content {
		if c.Type == "" || c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", retry.Permanent(errors.New("anthropic: empty response"))
	}
	return sb.String(), nil
}
