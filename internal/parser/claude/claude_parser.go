package claude

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"invoicex/internal/config"
	"invoicex/internal/domain"
	"invoicex/internal/parser"
	"invoicex/internal/port"
)

const (
	providerName = "claude"
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
)

func init() {
	parser.RegisterProvider(providerName, func(cfg *config.ParserProviderConfig) (port.InvoiceExtractor, error) {
		return NewParser(cfg), nil
	})
}

// Parser implements port.InvoiceExtractor using the Anthropic Messages API.
type Parser struct {
	apiKey     string
	model      string
	imageModel string
	maxTokens  int
	endpoint   string
	client     *http.Client
}

// NewParser creates a Claude-based invoice extractor from a provider config.
func NewParser(cfg *config.ParserProviderConfig) *Parser {
	endpoint := apiURL
	if cfg.BaseURL != "" {
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/messages"
	}
	return newParser(cfg, endpoint)
}

// NewParserWithEndpoint creates a parser pointing at a custom API endpoint (for testing).
func NewParserWithEndpoint(cfg *config.ParserProviderConfig, endpoint string) *Parser {
	return newParser(cfg, endpoint)
}

func newParser(cfg *config.ParserProviderConfig, endpoint string) *Parser {
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Parser{
		apiKey:     cfg.APIKey,
		model:      model,
		imageModel: imageModel,
		maxTokens:  maxTokens,
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
	}
}

func (p *Parser) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	if err := parser.CheckInput(input); err != nil {
		return nil, fmt.Errorf("building content blocks: %w", err)
	}

	model := p.model
	if input.Mode == domain.ModeImage {
		model = p.imageModel
	}

	reqBody := map[string]interface{}{
		"model":       model,
		"max_tokens":  p.maxTokens,
		"temperature": 0,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": buildContentBlocks(input),
			},
		},
	}
	if parser.UsesSystemPrompt(input.Mode) {
		reqBody["system"] = parser.SystemPrompt
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parser.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, parser.NewRateLimitError(providerName, baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, model)
}

func buildContentBlocks(input port.ExtractInput) []map[string]interface{} {
	var blocks []map[string]interface{}

	switch input.Mode {
	case domain.ModePDFFile:
		blocks = append(blocks, map[string]interface{}{
			"type": "document",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": "application/pdf",
				"data":       base64.StdEncoding.EncodeToString(input.FileBytes),
			},
			"title": parser.PDFFilename(input),
		})
	case domain.ModeImage:
		blocks = append(blocks, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": input.MIMEType,
				"data":       base64.StdEncoding.EncodeToString(input.FileBytes),
			},
		})
	}

	return append(blocks, map[string]interface{}{
		"type": "text",
		"text": parser.UserText(input),
	})
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func parseResponse(body []byte, model string) (*port.ExtractOutput, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	if resp.StopReason == "max_tokens" {
		return nil, fmt.Errorf("output truncated (stop_reason: max_tokens): response exceeded output token limit")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	inv, cleaned, err := parser.ParseInvoiceJSON(text)
	if err != nil {
		return nil, err
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return &port.ExtractOutput{
		Invoice:    inv,
		RawContent: cleaned,
		ModelUsed:  model,
		Provider:   providerName,
	}, nil
}
