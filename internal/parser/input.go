package parser

import (
	"fmt"
	"strings"

	"invoicex/internal/domain"
	"invoicex/internal/port"
)

const defaultPDFFilename = "invoice.pdf"

// CheckInput rejects inputs a provider cannot send for input.Mode.
func CheckInput(input port.ExtractInput) error {
	switch input.Mode {
	case domain.ModeImage:
		if len(input.FileBytes) == 0 {
			return fmt.Errorf("image mode requires file bytes")
		}
		if !strings.HasPrefix(input.MIMEType, "image/") {
			return fmt.Errorf("unsupported content type for image mode: %s", input.MIMEType)
		}
	case domain.ModePDFFile:
		if len(input.FileBytes) == 0 {
			return fmt.Errorf("pdf_file mode requires file bytes")
		}
	case domain.ModePDFText:
		if strings.TrimSpace(input.Text) == "" {
			return fmt.Errorf("pdf_text mode requires text")
		}
	default:
		return fmt.Errorf("unsupported extraction mode: %q", input.Mode)
	}
	return nil
}

// UserText returns the text sent with the user turn for input.Mode.
// In pdf_text mode it carries the extracted document text.
func UserText(input port.ExtractInput) string {
	prompt := input.Prompt
	if prompt == "" {
		prompt = BuildInvoicePrompt()
	}
	switch input.Mode {
	case domain.ModePDFFile:
		return prompt + "\n\n" + PDFFileInstruction
	case domain.ModePDFText:
		return prompt + "\n\n" + PDFTextIntro + "\n\n" + input.Text
	default:
		return prompt
	}
}

// UsesSystemPrompt reports whether input.Mode is sent with SystemPrompt.
// PDF attachments go out as a single user turn.
func UsesSystemPrompt(mode domain.ExtractionMode) bool {
	return mode != domain.ModePDFFile
}

// PDFFilename returns the attachment name for pdf_file requests.
func PDFFilename(input port.ExtractInput) string {
	if input.Filename == "" {
		return defaultPDFFilename
	}
	return input.Filename
}
