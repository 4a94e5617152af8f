package claude_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicex/internal/config"
	"invoicex/internal/domain"
	"invoicex/internal/parser"
	"invoicex/internal/parser/claude"
	"invoicex/internal/port"
)

const invoiceJSON = `{"invoice_number":"INV-001","invoice_date":"2024-01-15","vendor":{"name":"Acme"},"client":{"name":"Globex"}}`

func newClaudeTestParser(serverURL string) *claude.Parser {
	cfg := &config.ParserProviderConfig{
		Provider:     "claude",
		APIKey:       "test-api-key",
		DefaultModel: "claude-sonnet-4-20250514",
		TimeoutSecs:  30,
	}
	return claude.NewParserWithEndpoint(cfg, serverURL)
}

func claudeSuccessResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"id":    "msg_test",
		"type":  "message",
		"role":  "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"stop_reason": "end_turn",
	}
}

func TestClaudeParser_Extract_PDFFile_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "claude-sonnet-4-20250514", reqBody["model"])
		assert.Equal(t, float64(4000), reqBody["max_tokens"])
		assert.NotContains(t, reqBody, "system")

		messages := reqBody["messages"].([]interface{})
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		require.Len(t, content, 2)

		doc := content[0].(map[string]interface{})
		assert.Equal(t, "document", doc["type"])
		assert.Equal(t, "invoice.pdf", doc["title"])
		source := doc["source"].(map[string]interface{})
		assert.Equal(t, "application/pdf", source["media_type"])

		text := content[1].(map[string]interface{})
		assert.Equal(t, "text", text["type"])
		assert.Contains(t, text["text"], parser.PDFFileInstruction)

		_ = json.NewEncoder(w).Encode(claudeSuccessResponse(invoiceJSON))
	}))
	defer server.Close()

	out, err := newClaudeTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode:      domain.ModePDFFile,
		FileBytes: []byte("%PDF-1.4 fake"),
		MIMEType:  "application/pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, "INV-001", out.Invoice.InvoiceNumber)
	assert.Equal(t, "claude", out.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", out.ModelUsed)
}

func TestClaudeParser_Extract_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, parser.SystemPrompt, reqBody["system"])

		content := reqBody["messages"].([]interface{})[0].(map[string]interface{})["content"].([]interface{})
		img := content[0].(map[string]interface{})
		assert.Equal(t, "image", img["type"])
		assert.Equal(t, "image/png", img["source"].(map[string]interface{})["media_type"])

		_ = json.NewEncoder(w).Encode(claudeSuccessResponse(invoiceJSON))
	}))
	defer server.Close()

	out, err := newClaudeTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode:      domain.ModeImage,
		FileBytes: []byte{0x89, 0x50, 0x4E, 0x47},
		MIMEType:  "image/png",
	})

	require.NoError(t, err)
	assert.Equal(t, "Globex", out.Invoice.Client.Name)
}

func TestClaudeParser_Extract_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	_, err := newClaudeTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	var rlErr *parser.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "claude", rlErr.Provider)
	assert.Equal(t, 12.0, rlErr.RetryAfter.Seconds())
}

func TestClaudeParser_Extract_MaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := claudeSuccessResponse(`{"invoice_number":`)
		resp["stop_reason"] = "max_tokens"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	_, err := newClaudeTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "output truncated")
}

func TestClaudeParser_Extract_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(claudeSuccessResponse("not json"))
	}))
	defer server.Close()

	_, err := newClaudeTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	var parseErr *parser.ResponseParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "not json", parseErr.Raw)
}

func TestClaudeParser_Extract_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": []interface{}{}})
	}))
	defer server.Close()

	_, err := newClaudeTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}
