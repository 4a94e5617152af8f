// Package pdftext pulls the embedded text layer out of PDF documents.
package pdftext

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"rsc.io/pdf"

	"invoicex/internal/domain"
)

const (
	// pageSeparator is inserted between pages, as pdftotext does.
	pageSeparator = "\f"
	// lineTolerance is the baseline shift (in points) that starts a new line.
	lineTolerance = 2.0
	// spaceFactor of the font size is the horizontal gap that becomes a space.
	spaceFactor = 0.25
)

// Extractor extracts text from in-memory PDFs.
type Extractor struct {
	// MaxChars truncates the result to that many characters when positive.
	MaxChars int
}

// NewExtractor creates an Extractor. maxChars <= 0 disables truncation.
func NewExtractor(maxChars int) *Extractor {
	return &Extractor{MaxChars: maxChars}
}

// ExtractText returns the text layer of data. It fails with ErrEmptyPDFText
// when the document has no extractable text, e.g. a scanned invoice.
func (e *Extractor) ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to extract text from PDF: malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to extract text from PDF: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages = append(pages, joinGlyphs(p.Content().Text))
	}

	out := strings.Join(pages, pageSeparator)
	if strings.TrimSpace(strings.ReplaceAll(out, pageSeparator, "")) == "" {
		return "", fmt.Errorf("failed to extract text from PDF: %w", domain.ErrEmptyPDFText)
	}
	if e.MaxChars > 0 && utf8.RuneCountInString(out) > e.MaxChars {
		out = string([]rune(out)[:e.MaxChars])
	}
	return out, nil
}

// joinGlyphs rebuilds lines from positioned glyphs. The reader drops space
// characters, so word breaks are recovered from horizontal gaps.
func joinGlyphs(glyphs []pdf.Text) string {
	var b strings.Builder
	for i, g := range glyphs {
		if i > 0 {
			prev := glyphs[i-1]
			switch {
			case math.Abs(g.Y-prev.Y) > lineTolerance:
				b.WriteByte('\n')
			case g.X-(prev.X+prev.W) > spaceFactor*g.FontSize:
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
	}
	return b.String()
}
