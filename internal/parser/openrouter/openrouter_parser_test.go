package openrouter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicex/internal/config"
	"invoicex/internal/domain"
	"invoicex/internal/parser"
	"invoicex/internal/parser/openrouter"
	"invoicex/internal/port"
)

const invoiceJSON = `{"invoice_number":"A1","invoice_date":"2024-01-15","vendor":{"name":"V","address":"1 Road"},"client":{"name":"C","address":"2 Street"},"totals":{"net_worth":100,"vat":20,"grand_total":120},"line_item":[{"description":"Widget","quantity":2,"unit_of_measure":"pcs","unit_price":50,"net_worth":100,"vat_percent":20,"line_total":120}]}`

func newTestParser(serverURL string) *openrouter.Parser {
	cfg := &config.ParserProviderConfig{
		Provider:     "openrouter",
		APIKey:       "test-openrouter-key",
		DefaultModel: "google/gemini-2.0-flash-exp:free",
		ImageModel:   "openai/gpt-4o-mini",
		TimeoutSecs:  30,
		MaxTokens:    4000,
		Referer:      "https://github.com/invoice-extractor",
		Title:        "Invoice Data Extractor",
	}
	return openrouter.NewParserWithEndpoint(cfg, serverURL)
}

func successResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "gen-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "google/gemini-2.0-flash-exp:free",
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
	}
}

func decodeRequest(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestParser_Extract_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-openrouter-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://github.com/invoice-extractor", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Invoice Data Extractor", r.Header.Get("X-Title"))

		body := decodeRequest(t, r)
		assert.Equal(t, "openai/gpt-4o-mini", body["model"])
		assert.Equal(t, float64(0), body["temperature"])
		assert.Equal(t, float64(4000), body["max_tokens"])

		messages := body["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])

		user := messages[1].(map[string]interface{})
		assert.Equal(t, "user", user["role"])
		content := user["content"].([]interface{})
		require.Len(t, content, 2)
		assert.Equal(t, "text", content[0].(map[string]interface{})["type"])
		img := content[1].(map[string]interface{})
		assert.Equal(t, "image_url", img["type"])
		assert.Contains(t, img["image_url"].(map[string]interface{})["url"], "data:image/png;base64,")

		_ = json.NewEncoder(w).Encode(successResponse(invoiceJSON))
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode:      domain.ModeImage,
		FileBytes: []byte{0x89, 0x50, 0x4E, 0x47},
		MIMEType:  "image/png",
	})

	require.NoError(t, err)
	assert.Equal(t, "A1", out.Invoice.InvoiceNumber)
	assert.Equal(t, "V", out.Invoice.Vendor.Name)
	require.Len(t, out.Invoice.LineItems, 1)
	assert.Equal(t, "pcs", out.Invoice.LineItems[0].UnitOfMeasure)
	assert.Equal(t, "openrouter", out.Provider)
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", out.ModelUsed)
}

func TestParser_Extract_PDFFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeRequest(t, r)
		assert.Equal(t, "google/gemini-2.0-flash-exp:free", body["model"])

		messages := body["messages"].([]interface{})
		require.Len(t, messages, 1)
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		require.Len(t, content, 2)

		text := content[0].(map[string]interface{})
		assert.Contains(t, text["text"], parser.PDFFileInstruction)

		file := content[1].(map[string]interface{})
		assert.Equal(t, "file", file["type"])
		fileParam := file["file"].(map[string]interface{})
		assert.Equal(t, "scan.pdf", fileParam["filename"])
		assert.Contains(t, fileParam["file_data"], "data:application/pdf;base64,")

		_ = json.NewEncoder(w).Encode(successResponse("```json\n" + invoiceJSON + "\n```"))
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode:      domain.ModePDFFile,
		FileBytes: []byte("%PDF-1.4 test"),
		MIMEType:  "application/pdf",
		Filename:  "scan.pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, "A1", out.Invoice.InvoiceNumber)
	assert.Equal(t, invoiceJSON, out.RawContent)
}

func TestParser_Extract_PDFText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeRequest(t, r)
		messages := body["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, parser.SystemPrompt, messages[0].(map[string]interface{})["content"])

		user := messages[1].(map[string]interface{})["content"].(string)
		assert.Contains(t, user, parser.PDFTextIntro)
		assert.Contains(t, user, "Invoice A1 Total 120")

		_ = json.NewEncoder(w).Encode(successResponse(invoiceJSON))
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice A1 Total 120",
	})

	require.NoError(t, err)
	assert.Equal(t, 120.0, out.Invoice.Totals.GrandTotal)
}

func TestParser_Extract_RateLimitStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Rate limit exceeded"}}`))
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	assert.Nil(t, out)
	require.Error(t, err)
	var rlErr *parser.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "openrouter", rlErr.Provider)
	assert.Equal(t, parser.RateLimitCode, rlErr.Code)
	assert.True(t, parser.IsRateLimited(err))
}

func TestParser_Extract_RateLimitInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"upstream rate limited"}}`))
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	assert.True(t, parser.IsRateLimited(err))
}

func TestParser_Extract_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"boom"}}`))
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter API error (status 500)")
	assert.False(t, parser.IsRateLimited(err))
}

func TestParser_Extract_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "x", "choices": []interface{}{}})
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestParser_Extract_InvalidJSONReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(successResponse("Sorry, I cannot read this invoice."))
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.Error(t, err)
	var parseErr *parser.ResponseParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "Sorry, I cannot read this invoice.", parseErr.Raw)
}

func TestParser_Extract_MistypedFieldsStillParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(successResponse(`{"invoice_number":12345,"vendor":{"name":"V"},"client":{"name":"C"},"totals":{"grand_total":"120,00"},"line_item":[{"quantity":"2"}]}`))
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		Mode: domain.ModePDFText,
		Text: "Invoice",
	})

	require.NoError(t, err)
	assert.Equal(t, "12345", out.Invoice.InvoiceNumber)
	assert.Equal(t, 120.0, out.Invoice.Totals.GrandTotal)
	assert.Equal(t, 2.0, out.Invoice.LineItems[0].Quantity)
}

func TestParser_Extract_InvalidInputNeverCallsAPI(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	p := newTestParser(server.URL)
	inputs := []port.ExtractInput{
		{Mode: domain.ModeImage, MIMEType: "image/png"},
		{Mode: domain.ModeImage, FileBytes: []byte("x"), MIMEType: "application/pdf"},
		{Mode: domain.ModePDFFile},
		{Mode: domain.ModePDFText, Text: "   "},
		{Mode: "fax"},
	}
	for _, in := range inputs {
		_, err := p.Extract(context.Background(), in)
		assert.Error(t, err)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestProviderRegistered(t *testing.T) {
	assert.Contains(t, parser.Providers(), "openrouter")

	ex, err := parser.NewExtractor(&config.ParserProviderConfig{Provider: "openrouter", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openrouter.Parser{}, ex)
}
