package port

import (
	"context"

	"invoicex/internal/domain"
)

// ExtractInput carries the invoice content for a single model call.
type ExtractInput struct {
	Mode      domain.ExtractionMode
	FileBytes []byte // image or PDF bytes; unused in pdf_text mode
	MIMEType  string
	Filename  string
	Text      string // extracted PDF text; only used in pdf_text mode
	Prompt    string
}

// ExtractOutput is the parsed result of a model call.
type ExtractOutput struct {
	Invoice    *domain.InvoiceResponse
	RawContent string // model reply with code fences removed
	ModelUsed  string
	Provider   string
}

// InvoiceExtractor abstracts LLM-based invoice extraction.
type InvoiceExtractor interface {
	Extract(ctx context.Context, input ExtractInput) (*ExtractOutput, error)
}

// PDFTextExtractor pulls the text layer out of a PDF.
type PDFTextExtractor interface {
	ExtractText(data []byte) (string, error)
}
