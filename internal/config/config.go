package config

import (
	"fmt"
	"net/mail"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL          = "https://www.ecdc.europa.eu/en/publications-and-data/monitoring/weekly-threats-reports"
	DefaultPDFPattern       = `\.pdf`
	DefaultSummarySentences = 8
	DefaultStatePath        = ".agent_state.json"
	DefaultSubject          = "Resumen del informe semanal"
)

type Config struct {
	BaseURL          string          `yaml:"base_url"`
	PDFPattern       string          `yaml:"pdf_pattern"`
	LinkOrder        string          `yaml:"link_order"`
	DirectPDFURL     string          `yaml:"direct_pdf_url"`
	MaxPDFMB         int             `yaml:"max_pdf_mb"`
	SummarySentences int             `yaml:"summary_sentences"`
	Summarizer       string          `yaml:"summarizer"`
	TargetLanguage   string          `yaml:"target_language"`
	NoTranslate      bool            `yaml:"no_translate"`
	StatePath        string          `yaml:"state_path"`
	LogLevel         string          `yaml:"log_level"`
	Gemini           GeminiConfig    `yaml:"gemini"`
	Anthropic        AnthropicConfig `yaml:"anthropic"`
	Email            EmailConfig     `yaml:"email"`
	Discord          DiscordConfig   `yaml:"discord"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type EmailConfig struct {
	SMTPServer string   `yaml:"smtp_server"`
	SMTPPort   int      `yaml:"smtp_port"`
	Sender     string   `yaml:"sender"`
	Receiver   string   `yaml:"receiver"`
	Password   string   `yaml:"password"`
	CAFile     string   `yaml:"ca_file"`
	Subject    string   `yaml:"subject"`
	Highlight  []string `yaml:"highlight"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// Load builds the run configuration. An optional YAML file (path may be empty)
// is read first, environment variables override it, then defaults fill the gaps.
func Load(path string) (*Config, error) {
	// Seeded before the file and environment so an explicit 0 is caught by validate.
	cfg := Config{SummarySentences: DefaultSummarySentences}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer, got %q", key, v)
		}
		*dst = n
		return nil
	}

	str("BASE_URL", &cfg.BaseURL)
	str("PDF_PATTERN", &cfg.PDFPattern)
	str("LINK_ORDER", &cfg.LinkOrder)
	str("DIRECT_PDF_URL", &cfg.DirectPDFURL)
	str("SUMMARIZER", &cfg.Summarizer)
	str("TARGET_LANGUAGE", &cfg.TargetLanguage)
	str("AGENT_STATE_PATH", &cfg.StatePath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("GOOGLE_API_KEY", &cfg.Gemini.APIKey)
	str("GOOGLE_MODEL", &cfg.Gemini.Model)
	str("ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey)
	str("ANTHROPIC_MODEL", &cfg.Anthropic.Model)
	str("SMTP_SERVER", &cfg.Email.SMTPServer)
	str("SENDER_EMAIL", &cfg.Email.Sender)
	str("RECEIVER_EMAIL", &cfg.Email.Receiver)
	str("EMAIL_PASSWORD", &cfg.Email.Password)
	str("CA_FILE", &cfg.Email.CAFile)
	str("EMAIL_SUBJECT", &cfg.Email.Subject)
	str("DISCORD_WEBHOOK_URL", &cfg.Discord.WebhookURL)

	if v := os.Getenv("HIGHLIGHT_KEYWORDS"); strings.TrimSpace(v) != "" {
		cfg.Email.Highlight = splitList(v)
	}
	if v := os.Getenv("NO_TRANSLATE"); v != "" {
		cfg.NoTranslate = truthy(v)
	}

	for key, dst := range map[string]*int{
		"SMTP_PORT":         &cfg.Email.SMTPPort,
		"SUMMARY_SENTENCES": &cfg.SummarySentences,
		"MAX_PDF_MB":        &cfg.MaxPDFMB,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PDFPattern == "" {
		cfg.PDFPattern = DefaultPDFPattern
	}
	if cfg.LinkOrder == "" {
		cfg.LinkOrder = "first"
	}
	if cfg.MaxPDFMB == 0 {
		cfg.MaxPDFMB = 25
	}
	if cfg.Summarizer == "" {
		cfg.Summarizer = "lexrank"
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "es"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Anthropic.MaxTokens == 0 {
		cfg.Anthropic.MaxTokens = 2048
	}
	if cfg.Email.Subject == "" {
		cfg.Email.Subject = DefaultSubject
	}
	if len(cfg.Email.Highlight) == 0 {
		cfg.Email.Highlight = []string{"España", "Spain", "Espana"}
	}
}

func validate(cfg *Config) error {
	if cfg.SummarySentences <= 0 {
		return fmt.Errorf("config: SUMMARY_SENTENCES must be positive, got %d", cfg.SummarySentences)
	}
	if cfg.MaxPDFMB < 0 {
		return fmt.Errorf("config: MAX_PDF_MB must be positive, got %d", cfg.MaxPDFMB)
	}
	if _, err := regexp.Compile(cfg.PDFPattern); err != nil {
		return fmt.Errorf("config: invalid PDF_PATTERN %q: %w", cfg.PDFPattern, err)
	}
	switch cfg.LinkOrder {
	case "first", "lexical":
	default:
		return fmt.Errorf("config: unsupported LINK_ORDER %q (supported: first, lexical)", cfg.LinkOrder)
	}
	switch cfg.Summarizer {
	case "lexrank":
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return fmt.Errorf("config: GOOGLE_API_KEY is required for the gemini summarizer")
		}
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required for the anthropic summarizer")
		}
	default:
		return fmt.Errorf("config: unsupported SUMMARIZER %q (supported: lexrank, gemini, anthropic)", cfg.Summarizer)
	}
	return nil
}

// ValidateForSend reports whether every setting needed to deliver mail is present
// and well formed. It performs no network I/O.
func (c *Config) ValidateForSend() error {
	var missing []string
	if c.Email.SMTPServer == "" {
		missing = append(missing, "SMTP_SERVER")
	}
	if c.Email.SMTPPort == 0 {
		missing = append(missing, "SMTP_PORT")
	}
	if c.Email.Sender == "" {
		missing = append(missing, "SENDER_EMAIL")
	}
	if c.Email.Receiver == "" {
		missing = append(missing, "RECEIVER_EMAIL")
	}
	if c.Email.Password == "" {
		missing = append(missing, "EMAIL_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings for sending: %s", strings.Join(missing, ", "))
	}

	if c.Email.SMTPPort < 1 || c.Email.SMTPPort > 65535 {
		return fmt.Errorf("config: SMTP_PORT out of range: %d", c.Email.SMTPPort)
	}
	if _, err := mail.ParseAddress(c.Email.Sender); err != nil {
		return fmt.Errorf("config: invalid SENDER_EMAIL %q: %w", c.Email.Sender, err)
	}
	if _, err := mail.ParseAddress(c.Email.Receiver); err != nil {
		return fmt.Errorf("config: invalid RECEIVER_EMAIL %q: %w", c.Email.Receiver, err)
	}
	if c.Email.CAFile != "" {
		if _, err := os.Stat(c.Email.CAFile); err != nil {
			return fmt.Errorf("config: CA_FILE not readable: %w", err)
		}
	}
	return nil
}

// TranslationEnabled reports whether summaries should be translated.
func (c *Config) TranslationEnabled() bool {
	return !c.NoTranslate && c.Gemini.APIKey != ""
}

// MaxPDFBytes returns the download cap in bytes.
func (c *Config) MaxPDFBytes() int64 {
	return int64(c.MaxPDFMB) * 1024 * 1024
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
