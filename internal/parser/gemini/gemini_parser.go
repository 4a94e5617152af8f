package gemini

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
	providerName = "gemini"
	apiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
)

func init() {
	parser.RegisterProvider(providerName, func(cfg *config.ParserProviderConfig) (port.InvoiceExtractor, error) {
		return NewParser(cfg), nil
	})
}

// Parser implements port.InvoiceExtractor using Google's Gemini API.
type Parser struct {
	apiKey     string
	model      string
	imageModel string
	maxTokens  int
	baseURL    string
	endpoint   string
	client     *http.Client
}

// NewParser creates a Gemini-based invoice extractor.
func NewParser(cfg *config.ParserProviderConfig) *Parser {
	return newParser(cfg, "")
}

// NewParserWithEndpoint creates a parser pointing at a custom API endpoint (for testing).
func NewParserWithEndpoint(cfg *config.ParserProviderConfig, endpoint string) *Parser {
	return newParser(cfg, endpoint)
}

func newParser(cfg *config.ParserProviderConfig, endpoint string) *Parser {
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
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
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = apiBaseURL
	}
	return &Parser{
		apiKey:     cfg.APIKey,
		model:      model,
		imageModel: imageModel,
		maxTokens:  maxTokens,
		baseURL:    baseURL,
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
	}
}

func (p *Parser) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	if err := parser.CheckInput(input); err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	model := p.model
	if input.Mode == domain.ModeImage {
		model = p.imageModel
	}

	bodyBytes, err := json.Marshal(buildRequest(input, p.maxTokens))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointFor(model), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parser.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, parser.NewRateLimitError(providerName, baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, model)
}

func (p *Parser) endpointFor(model string) string {
	if p.endpoint != "" {
		return p.endpoint
	}
	return fmt.Sprintf("%s/%s:generateContent", strings.TrimSuffix(p.baseURL, "/"), model)
}

func buildRequest(input port.ExtractInput, maxTokens int) map[string]interface{} {
	var parts []map[string]interface{}
	switch input.Mode {
	case domain.ModeImage:
		parts = append(parts, inlineData(input.MIMEType, input.FileBytes))
	case domain.ModePDFFile:
		parts = append(parts, inlineData("application/pdf", input.FileBytes))
	}
	parts = append(parts, map[string]interface{}{"text": parser.UserText(input)})

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": parts,
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"maxOutputTokens":  maxTokens,
			"temperature":      0,
		},
	}
	if parser.UsesSystemPrompt(input.Mode) {
		reqBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": parser.SystemPrompt},
			},
		}
	}
	return reqBody
}

func inlineData(mimeType string, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"inline_data": map[string]interface{}{
			"mime_type": mimeType,
			"data":      base64.StdEncoding.EncodeToString(data),
		},
	}
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

func parseResponse(body []byte, model string) (*port.ExtractOutput, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API: no candidates")
	}

	if len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from API: no parts")
	}

	if resp.Candidates[0].FinishReason == "MAX_TOKENS" {
		return nil, fmt.Errorf("output truncated (finishReason: MAX_TOKENS): response exceeded output token limit")
	}

	inv, cleaned, err := parser.ParseInvoiceJSON(resp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return &port.ExtractOutput{
		Invoice:    inv,
		RawContent: cleaned,
		ModelUsed:  model,
		Provider:   providerName,
	}, nil
}
