package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"invoicex/internal/domain"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "google/gemini-2.0-flash-exp:free"
	chatCompletionsSuffix    = "/chat/completions"
)

// Config holds all application configuration.
type Config struct {
	Parser  ParserConfig
	Retry   RetryConfig
	Input   InputConfig
	PDF     PDFConfig
	Output  OutputConfig
	Storage StorageConfig
	Log     LogConfig
}

// ParserProviderConfig holds settings for a single LLM provider.
type ParserProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultModel string `mapstructure:"default_model"`
	ImageModel   string `mapstructure:"image_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	Referer      string `mapstructure:"referer"`
	Title        string `mapstructure:"title"`
}

// ParserConfig holds the primary provider and an optional fallback.
type ParserConfig struct {
	Primary   ParserProviderConfig `mapstructure:"primary"`
	Secondary ParserProviderConfig `mapstructure:"secondary"`
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (p *ParserConfig) SecondaryConfig() *ParserProviderConfig {
	if p.Secondary.Provider != "" {
		return &p.Secondary
	}
	return nil
}

// RetryConfig controls the rate-limit retry loop around each model call.
type RetryConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
	DelayMs    int `mapstructure:"delay_ms"`
}

// Delay returns DelayMs as a duration.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelayMs) * time.Millisecond
}

// InputConfig holds settings for the input file.
type InputConfig struct {
	DefaultFile   string `mapstructure:"default_file"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
}

// MaxBytes returns the size limit in bytes, or 0 for unlimited.
func (i InputConfig) MaxBytes() int64 {
	if i.MaxFileSizeMB <= 0 {
		return 0
	}
	return i.MaxFileSizeMB * 1024 * 1024
}

// PDFConfig holds PDF text extraction settings.
type PDFConfig struct {
	MaxTextChars int `mapstructure:"max_text_chars"`
}

// OutputConfig holds settings for the written result files.
type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// StorageConfig selects an optional object store that receives a copy of every output file.
type StorageConfig struct {
	Provider string      `mapstructure:"provider"`
	Prefix   string      `mapstructure:"prefix"`
	S3       S3Config    `mapstructure:"s3"`
	MinIO    MinIOConfig `mapstructure:"minio"`
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// MinIOConfig holds MinIO settings.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a .env file (if any) and environment variables
// with the INVOICEX_ prefix. OPENROUTER_API_KEY and OPENROUTER_URL are honoured
// for the primary provider.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("INVOICEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Parser defaults
	v.SetDefault("parser.primary.provider", "openrouter")
	v.SetDefault("parser.primary.api_key", "")
	v.SetDefault("parser.primary.base_url", "")
	v.SetDefault("parser.primary.default_model", "")
	v.SetDefault("parser.primary.image_model", "")
	v.SetDefault("parser.primary.timeout_secs", 120)
	v.SetDefault("parser.primary.max_tokens", 4000)
	v.SetDefault("parser.primary.referer", "https://github.com/invoice-extractor")
	v.SetDefault("parser.primary.title", "Invoice Data Extractor")
	v.SetDefault("parser.secondary.provider", "")
	v.SetDefault("parser.secondary.api_key", "")
	v.SetDefault("parser.secondary.base_url", "")
	v.SetDefault("parser.secondary.default_model", "")
	v.SetDefault("parser.secondary.image_model", "")
	v.SetDefault("parser.secondary.timeout_secs", 120)
	v.SetDefault("parser.secondary.max_tokens", 4000)

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.delay_ms", 5000)

	// Input defaults
	v.SetDefault("input.default_file", "samples/invoice_3.jpg")
	v.SetDefault("input.max_file_size_mb", 20)

	v.SetDefault("pdf.max_text_chars", 0)

	// Output defaults
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.formats", "json")

	// Storage defaults
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.prefix", "invoices/")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.bucket", "")
	v.SetDefault("storage.minio.use_ssl", false)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Bind environment variables explicitly for nested keys. The first name wins.
	envBindings := map[string][]string{
		"parser.primary.provider":        {"INVOICEX_PARSER_PRIMARY_PROVIDER"},
		"parser.primary.api_key":         {"INVOICEX_PARSER_PRIMARY_API_KEY", "OPENROUTER_API_KEY"},
		"parser.primary.base_url":        {"INVOICEX_PARSER_PRIMARY_BASE_URL", "OPENROUTER_URL"},
		"parser.primary.default_model":   {"INVOICEX_PARSER_PRIMARY_DEFAULT_MODEL"},
		"parser.primary.image_model":     {"INVOICEX_PARSER_PRIMARY_IMAGE_MODEL"},
		"parser.primary.timeout_secs":    {"INVOICEX_PARSER_PRIMARY_TIMEOUT_SECS"},
		"parser.primary.max_tokens":      {"INVOICEX_PARSER_PRIMARY_MAX_TOKENS"},
		"parser.secondary.provider":      {"INVOICEX_PARSER_SECONDARY_PROVIDER"},
		"parser.secondary.api_key":       {"INVOICEX_PARSER_SECONDARY_API_KEY"},
		"parser.secondary.base_url":      {"INVOICEX_PARSER_SECONDARY_BASE_URL"},
		"parser.secondary.default_model": {"INVOICEX_PARSER_SECONDARY_DEFAULT_MODEL"},
		"parser.secondary.image_model":   {"INVOICEX_PARSER_SECONDARY_IMAGE_MODEL"},
		"parser.secondary.timeout_secs":  {"INVOICEX_PARSER_SECONDARY_TIMEOUT_SECS"},
		"retry.max_retries":              {"INVOICEX_RETRY_MAX_RETRIES"},
		"retry.delay_ms":                 {"INVOICEX_RETRY_DELAY_MS"},
		"input.default_file":             {"INVOICEX_INPUT_DEFAULT_FILE"},
		"input.max_file_size_mb":         {"INVOICEX_INPUT_MAX_FILE_SIZE_MB"},
		"pdf.max_text_chars":             {"INVOICEX_PDF_MAX_TEXT_CHARS"},
		"output.dir":                     {"INVOICEX_OUTPUT_DIR"},
		"output.formats":                 {"INVOICEX_OUTPUT_FORMATS"},
		"storage.provider":               {"INVOICEX_STORAGE_PROVIDER"},
		"storage.prefix":                 {"INVOICEX_STORAGE_PREFIX"},
		"storage.s3.region":              {"INVOICEX_STORAGE_S3_REGION"},
		"storage.s3.bucket":              {"INVOICEX_STORAGE_S3_BUCKET"},
		"storage.s3.endpoint":            {"INVOICEX_STORAGE_S3_ENDPOINT"},
		"storage.s3.access_key":          {"INVOICEX_STORAGE_S3_ACCESS_KEY"},
		"storage.s3.secret_key":          {"INVOICEX_STORAGE_S3_SECRET_KEY"},
		"storage.minio.endpoint":         {"INVOICEX_STORAGE_MINIO_ENDPOINT"},
		"storage.minio.access_key":       {"INVOICEX_STORAGE_MINIO_ACCESS_KEY"},
		"storage.minio.secret_key":       {"INVOICEX_STORAGE_MINIO_SECRET_KEY"},
		"storage.minio.bucket":           {"INVOICEX_STORAGE_MINIO_BUCKET"},
		"storage.minio.use_ssl":          {"INVOICEX_STORAGE_MINIO_USE_SSL"},
		"log.level":                      {"INVOICEX_LOG_LEVEL"},
		"log.format":                     {"INVOICEX_LOG_FORMAT"},
	}
	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	cfg := &Config{}

	cfg.Parser = ParserConfig{
		Primary: ParserProviderConfig{
			Provider:     v.GetString("parser.primary.provider"),
			APIKey:       v.GetString("parser.primary.api_key"),
			BaseURL:      NormalizeBaseURL(v.GetString("parser.primary.base_url")),
			DefaultModel: v.GetString("parser.primary.default_model"),
			ImageModel:   v.GetString("parser.primary.image_model"),
			TimeoutSecs:  v.GetInt("parser.primary.timeout_secs"),
			MaxTokens:    v.GetInt("parser.primary.max_tokens"),
			Referer:      v.GetString("parser.primary.referer"),
			Title:        v.GetString("parser.primary.title"),
		},
		Secondary: ParserProviderConfig{
			Provider:     v.GetString("parser.secondary.provider"),
			APIKey:       v.GetString("parser.secondary.api_key"),
			BaseURL:      NormalizeBaseURL(v.GetString("parser.secondary.base_url")),
			DefaultModel: v.GetString("parser.secondary.default_model"),
			ImageModel:   v.GetString("parser.secondary.image_model"),
			TimeoutSecs:  v.GetInt("parser.secondary.timeout_secs"),
			MaxTokens:    v.GetInt("parser.secondary.max_tokens"),
			Referer:      v.GetString("parser.primary.referer"),
			Title:        v.GetString("parser.primary.title"),
		},
	}
	cfg.Parser.Primary.ApplyProviderDefaults()
	cfg.Parser.Secondary.ApplyProviderDefaults()

	cfg.Retry = RetryConfig{
		MaxRetries: v.GetInt("retry.max_retries"),
		DelayMs:    v.GetInt("retry.delay_ms"),
	}

	cfg.Input = InputConfig{
		DefaultFile:   v.GetString("input.default_file"),
		MaxFileSizeMB: v.GetInt64("input.max_file_size_mb"),
	}

	cfg.PDF = PDFConfig{
		MaxTextChars: v.GetInt("pdf.max_text_chars"),
	}

	cfg.Output = OutputConfig{
		Dir:     v.GetString("output.dir"),
		Formats: SplitList(v.GetString("output.formats")),
	}

	cfg.Storage = StorageConfig{
		Provider: v.GetString("storage.provider"),
		Prefix:   v.GetString("storage.prefix"),
		S3: S3Config{
			Region:    v.GetString("storage.s3.region"),
			Bucket:    v.GetString("storage.s3.bucket"),
			Endpoint:  v.GetString("storage.s3.endpoint"),
			AccessKey: v.GetString("storage.s3.access_key"),
			SecretKey: v.GetString("storage.s3.secret_key"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("storage.minio.endpoint"),
			AccessKey: v.GetString("storage.minio.access_key"),
			SecretKey: v.GetString("storage.minio.secret_key"),
			Bucket:    v.GetString("storage.minio.bucket"),
			UseSSL:    v.GetBool("storage.minio.use_ssl"),
		},
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	return cfg, nil
}

// ApplyProviderDefaults fills the OpenRouter endpoint and model when the
// provider is openrouter and they were not configured.
func (p *ParserProviderConfig) ApplyProviderDefaults() {
	if p.Provider != "openrouter" {
		return
	}
	if p.BaseURL == "" {
		p.BaseURL = defaultOpenRouterBaseURL
	}
	if p.DefaultModel == "" {
		p.DefaultModel = defaultOpenRouterModel
	}
}

// Validate reports configuration that makes a run impossible.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Parser.Primary.APIKey) == "" {
		return fmt.Errorf("%w for provider %q (set OPENROUTER_API_KEY or INVOICEX_PARSER_PRIMARY_API_KEY)",
			domain.ErrMissingAPIKey, c.Parser.Primary.Provider)
	}
	if sec := c.Parser.SecondaryConfig(); sec != nil && strings.TrimSpace(sec.APIKey) == "" {
		return fmt.Errorf("%w for secondary provider %q", domain.ErrMissingAPIKey, sec.Provider)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	return nil
}

// NormalizeBaseURL accepts either an API base URL or a full chat-completions
// endpoint and returns the base URL.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	return strings.TrimSuffix(u, chatCompletionsSuffix)
}

// SplitList parses a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
