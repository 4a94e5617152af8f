// Package openrouter extracts invoices through the OpenRouter chat-completions
// API using the OpenAI-compatible client.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"invoicex/internal/config"
	"invoicex/internal/domain"
	"invoicex/internal/filetype"
	"invoicex/internal/parser"
	"invoicex/internal/port"
)

const (
	providerName     = "openrouter"
	apiBaseURL       = "https://openrouter.ai/api/v1"
	defaultModel     = "google/gemini-2.0-flash-exp:free"
	defaultMaxTokens = 4000
)

func init() {
	parser.RegisterProvider(providerName, func(cfg *config.ParserProviderConfig) (port.InvoiceExtractor, error) {
		return NewParser(cfg), nil
	})
}

// Parser implements port.InvoiceExtractor against OpenRouter.
type Parser struct {
	client     openai.Client
	model      string
	imageModel string
	maxTokens  int64
	logger     *slog.Logger
}

// NewParser creates an OpenRouter-based extractor from a provider config.
func NewParser(cfg *config.ParserProviderConfig) *Parser {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = apiBaseURL
	}
	return newParser(cfg, baseURL)
}

// NewParserWithEndpoint creates an extractor pointing at a custom API base URL (for testing).
func NewParserWithEndpoint(cfg *config.ParserProviderConfig, baseURL string) *Parser {
	return newParser(cfg, baseURL)
}

func newParser(cfg *config.ParserProviderConfig, baseURL string) *Parser {
	model := cfg.DefaultModel
	if model == "" {
		model = defaultModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}

	return &Parser{
		client:     openai.NewClient(opts...),
		model:      model,
		imageModel: imageModel,
		maxTokens:  int64(maxTokens),
		logger:     slog.Default().With("provider", providerName),
	}
}

func (p *Parser) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	params, err := p.buildParams(input)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	start := time.Now()
	p.logger.Info("llm.request", "mode", input.Mode, "model", params.Model)

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		p.logger.Error("llm.request_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, classifyError(err)
	}

	if len(completion.Choices) == 0 {
		if code, msg := bodyErrorCode(completion.RawJSON()); code != 0 {
			baseErr := fmt.Errorf("openrouter API error (code %d): %s", code, msg)
			if code == parser.RateLimitCode {
				return nil, parser.NewRateLimitError(providerName, baseErr, 0)
			}
			return nil, baseErr
		}
		return nil, fmt.Errorf("empty response from API: no choices")
	}
	if completion.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit")
	}

	content := completion.Choices[0].Message.Content
	p.logger.Info("llm.response", "mode", input.Mode, "chars", len(content), "elapsed_ms", time.Since(start).Milliseconds())

	inv, cleaned, err := parser.ParseInvoiceJSON(content)
	if err != nil {
		return nil, err
	}

	modelUsed := completion.Model
	if modelUsed == "" {
		modelUsed = params.Model
	}
	return &port.ExtractOutput{
		Invoice:    inv,
		RawContent: cleaned,
		ModelUsed:  modelUsed,
		Provider:   providerName,
	}, nil
}

func (p *Parser) buildParams(input port.ExtractInput) (openai.ChatCompletionNewParams, error) {
	if err := parser.CheckInput(input); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	text := parser.UserText(input)

	model := p.model
	var user openai.ChatCompletionMessageParamUnion
	switch input.Mode {
	case domain.ModeImage:
		model = p.imageModel
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(text),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: filetype.DataURI(input.MIMEType, input.FileBytes),
			}),
		})
	case domain.ModePDFFile:
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(text),
			openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				Filename: openai.String(parser.PDFFilename(input)),
				FileData: openai.String(filetype.DataURI("application/pdf", input.FileBytes)),
			}),
		})
	default:
		user = openai.UserMessage(text)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if parser.UsesSystemPrompt(input.Mode) {
		messages = append(messages, openai.SystemMessage(parser.SystemPrompt))
	}
	messages = append(messages, user)

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(p.maxTokens),
	}, nil
}

// classifyError turns SDK errors into RateLimitError when the provider
// answered with the rate-limit code.
func classifyError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("calling openrouter API: %w", err)
	}

	baseErr := fmt.Errorf("openrouter API error (status %d): %w", apiErr.StatusCode, err)
	code, _ := bodyErrorCode(apiErr.RawJSON())
	if apiErr.StatusCode == http.StatusTooManyRequests || code == parser.RateLimitCode {
		retryAfter := 0
		if apiErr.Response != nil {
			retryAfter = parser.ParseRetryAfterHeader(apiErr.Response.Header.Get("Retry-After"))
		}
		return parser.NewRateLimitError(providerName, baseErr, retryAfter)
	}
	return baseErr
}

// bodyErrorCode reads an OpenRouter error envelope, {"error":{"code":429,"message":"..."}}.
// The code may be a number or a numeric string; 0 means no code was found.
func bodyErrorCode(raw string) (int, string) {
	if raw == "" {
		return 0, ""
	}
	var envelope struct {
		Error *struct {
			Code    json.RawMessage `json:"code"`
			Message string          `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil || envelope.Error == nil {
		// apierror.RawJSON holds the inner error object, not the envelope.
		var inner struct {
			Code    json.RawMessage `json:"code"`
			Message string          `json:"message"`
		}
		if err := json.Unmarshal([]byte(raw), &inner); err != nil {
			return 0, ""
		}
		return parseCode(inner.Code), inner.Message
	}
	return parseCode(envelope.Error.Code), envelope.Error.Message
}

func parseCode(raw json.RawMessage) int {
	code, err := strconv.Atoi(strings.Trim(string(raw), `"`))
	if err != nil {
		return 0
	}
	return code
}
