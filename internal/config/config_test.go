package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"BASE_URL", "PDF_PATTERN", "LINK_ORDER", "DIRECT_PDF_URL", "SUMMARIZER",
	"TARGET_LANGUAGE", "AGENT_STATE_PATH", "LOG_LEVEL", "GOOGLE_API_KEY", "GOOGLE_MODEL",
	"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "SMTP_SERVER", "SMTP_PORT", "SENDER_EMAIL",
	"RECEIVER_EMAIL", "EMAIL_PASSWORD", "CA_FILE", "EMAIL_SUBJECT", "DISCORD_WEBHOOK_URL",
	"HIGHLIGHT_KEYWORDS", "NO_TRANSLATE", "SUMMARY_SENTENCES", "MAX_PDF_MB",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setSendEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SENDER_EMAIL", "agent@example.com")
	t.Setenv("RECEIVER_EMAIL", "reader@example.com")
	t.Setenv("EMAIL_PASSWORD", "app-password")
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, `\.pdf`, cfg.PDFPattern)
	assert.Equal(t, "first", cfg.LinkOrder)
	assert.Equal(t, 8, cfg.SummarySentences)
	assert.Equal(t, "lexrank", cfg.Summarizer)
	assert.Equal(t, "es", cfg.TargetLanguage)
	assert.Equal(t, ".agent_state.json", cfg.StatePath)
	assert.Equal(t, 25, cfg.MaxPDFMB)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxPDFBytes())
	assert.Equal(t, DefaultSubject, cfg.Email.Subject)
	assert.Equal(t, []string{"España", "Spain", "Espana"}, cfg.Email.Highlight)
	assert.False(t, cfg.TranslationEnabled(), "no API key means no translation")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	setSendEnv(t)
	t.Setenv("BASE_URL", "https://health.example.org/reports")
	t.Setenv("PDF_PATTERN", `weekly-.*\.pdf`)
	t.Setenv("SUMMARY_SENTENCES", "3")
	t.Setenv("LINK_ORDER", "lexical")
	t.Setenv("HIGHLIGHT_KEYWORDS", "Portugal, Lisboa ,")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("NO_TRANSLATE", "yes")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://health.example.org/reports", cfg.BaseURL)
	assert.Equal(t, `weekly-.*\.pdf`, cfg.PDFPattern)
	assert.Equal(t, 3, cfg.SummarySentences)
	assert.Equal(t, "lexical", cfg.LinkOrder)
	assert.Equal(t, 465, cfg.Email.SMTPPort)
	assert.Equal(t, []string{"Portugal", "Lisboa"}, cfg.Email.Highlight)
	assert.True(t, cfg.NoTranslate)
	assert.False(t, cfg.TranslationEnabled())
	assert.NoError(t, cfg.ValidateForSend())
}

func TestYAMLFileWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SMTP_PASSWORD", "from-env")

	path := writeConfig(t, `
base_url: "https://file.example.org/list"
summary_sentences: 5
email:
  smtp_server: smtp.file.example.org
  smtp_port: 587
  sender: agent@example.org
  receiver: reader@example.org
  password: ${TEST_SMTP_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.org/list", cfg.BaseURL)
	assert.Equal(t, 5, cfg.SummarySentences)
	assert.Equal(t, "from-env", cfg.Email.Password)
	assert.NoError(t, cfg.ValidateForSend())
}

func TestEnvTakesPrecedenceOverFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMMARY_SENTENCES", "2")

	cfg, err := Load(writeConfig(t, "summary_sentences: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.SummarySentences)
}

func TestZeroSentencesInFileRejected(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "summary_sentences: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUMMARY_SENTENCES must be positive")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"non-numeric port", map[string]string{"SMTP_PORT": "abc"}, "SMTP_PORT must be an integer"},
		{"non-numeric sentences", map[string]string{"SUMMARY_SENTENCES": "many"}, "SUMMARY_SENTENCES must be an integer"},
		{"negative sentences", map[string]string{"SUMMARY_SENTENCES": "-1"}, "must be positive"},
		{"zero sentences", map[string]string{"SUMMARY_SENTENCES": "0"}, "must be positive, got 0"},
		{"bad pattern", map[string]string{"PDF_PATTERN": "(["}, "invalid PDF_PATTERN"},
		{"bad order", map[string]string{"LINK_ORDER": "random"}, "unsupported LINK_ORDER"},
		{"bad summarizer", map[string]string{"SUMMARIZER": "magic"}, "unsupported SUMMARIZER"},
		{"gemini without key", map[string]string{"SUMMARIZER": "gemini"}, "GOOGLE_API_KEY is required"},
		{"anthropic without key", map[string]string{"SUMMARIZER": "anthropic"}, "ANTHROPIC_API_KEY is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), "config:"))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestValidateForSendMissingSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_SERVER", "smtp.example.com")

	cfg, err := Load("")
	require.NoError(t, err, "missing send secrets must not fail Load")

	err = cfg.ValidateForSend()
	require.Error(t, err)
	for _, key := range []string{"SMTP_PORT", "SENDER_EMAIL", "RECEIVER_EMAIL", "EMAIL_PASSWORD"} {
		assert.Contains(t, err.Error(), key)
	}
	assert.NotContains(t, err.Error(), "SMTP_SERVER")
}

func TestValidateForSendMalformed(t *testing.T) {
	tests := []struct {
		name  string
		patch func(*Config)
		want  string
	}{
		{"port range", func(c *Config) { c.Email.SMTPPort = 70000 }, "out of range"},
		{"sender", func(c *Config) { c.Email.Sender = "not an address" }, "invalid SENDER_EMAIL"},
		{"receiver", func(c *Config) { c.Email.Receiver = "@@" }, "invalid RECEIVER_EMAIL"},
		{"ca file", func(c *Config) { c.Email.CAFile = "/does/not/exist.pem" }, "CA_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Email: EmailConfig{
				SMTPServer: "smtp.example.com",
				SMTPPort:   465,
				Sender:     "agent@example.com",
				Receiver:   "reader@example.com",
				Password:   "secret",
			}}
			tt.patch(cfg)
			err := cfg.ValidateForSend()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		assert.True(t, truthy(v), v)
	}
	for _, v := range []string{"0", "false", "no", "", "maybe"} {
		assert.False(t, truthy(v), v)
	}
}
