package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"invoicex/internal/domain"
	"invoicex/internal/filetype"
	"invoicex/internal/output"
	"invoicex/internal/port"
	"invoicex/internal/validator"
)

// OutputWriter persists an extracted invoice.
type OutputWriter interface {
	Write(ctx context.Context, inv *domain.InvoiceResponse, now time.Time) (*output.Result, error)
}

// Result describes one completed extraction run.
type Result struct {
	RunID          string
	InputPath      string
	Mode           domain.ExtractionMode
	Invoice        *domain.InvoiceResponse
	OutputPath     string
	Files          []string
	Uploads        []port.UploadOutput
	Valid          bool
	Missing        []string
	SchemaWarnings []string
	Provider       string
	ModelUsed      string
	Elapsed        time.Duration
}

// ExtractionService defines the single-file extraction contract.
type ExtractionService interface {
	Run(ctx context.Context, path string) (*Result, error)
}

// Options tune an extractionService. Zero values are usable.
type Options struct {
	MaxFileBytes int64 // 0 means no limit
	Logger       *slog.Logger
	Now          func() time.Time
}

type extractionService struct {
	extractor port.InvoiceExtractor
	pdfText   port.PDFTextExtractor
	writer    OutputWriter
	maxBytes  int64
	logger    *slog.Logger
	now       func() time.Time
}

// NewExtractionService wires the extraction pipeline. extractor is expected to
// already carry the retry policy.
func NewExtractionService(
	extractor port.InvoiceExtractor,
	pdfText port.PDFTextExtractor,
	writer OutputWriter,
	opts Options,
) ExtractionService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &extractionService{
		extractor: extractor,
		pdfText:   pdfText,
		writer:    writer,
		maxBytes:  opts.MaxFileBytes,
		logger:    logger,
		now:       now,
	}
}

func (s *extractionService) Run(ctx context.Context, path string) (*Result, error) {
	start := s.now()
	runID := uuid.New().String()
	logger := s.logger.With("run_id", runID, "path", path)

	// Unsupported extensions fail before any I/O.
	info, err := filetype.Classify(path)
	if err != nil {
		logger.Error("extract.unsupported", "error", err)
		return nil, err
	}

	file, err := filetype.Load(path, s.maxBytes)
	if err != nil {
		logger.Error("extract.load_failed", "error", err)
		return nil, err
	}
	if file.SniffedMIME != "" {
		logger.Warn("extract.content_mismatch", "extension_mime", info.MIMEType, "sniffed_mime", file.SniffedMIME)
	}
	logger.Info("extract.start", "kind", info.Kind, "bytes", len(file.Data))

	input := s.buildInput(logger, file)

	out, err := s.extractor.Extract(ctx, input)
	if err != nil {
		logger.Error("extract.failed", "mode", input.Mode, "error", err)
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}
	if out.Invoice == nil {
		return nil, errors.New("extracting invoice: provider returned no invoice")
	}

	report := validator.Check(out.Invoice, []byte(out.RawContent))
	if !report.Valid {
		logger.Warn("extract.validation_failed", "missing", report.Missing)
	}
	if len(report.SchemaWarnings) > 0 {
		logger.Warn("extract.schema_warnings", "warnings", report.SchemaWarnings)
	}

	written, err := s.writer.Write(ctx, out.Invoice, s.now())
	if err != nil {
		logger.Error("extract.write_failed", "error", err)
		return nil, fmt.Errorf("writing output: %w", err)
	}

	elapsed := s.now().Sub(start)
	logger.Info("extract.ok",
		"mode", input.Mode,
		"provider", out.Provider,
		"model", out.ModelUsed,
		"invoice_number", out.Invoice.InvoiceNumber,
		"valid", report.Valid,
		"output", written.Path,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return &Result{
		RunID:          runID,
		InputPath:      path,
		Mode:           input.Mode,
		Invoice:        out.Invoice,
		OutputPath:     written.Path,
		Files:          written.Files,
		Uploads:        written.Uploads,
		Valid:          report.Valid,
		Missing:        report.Missing,
		SchemaWarnings: report.SchemaWarnings,
		Provider:       out.Provider,
		ModelUsed:      out.ModelUsed,
		Elapsed:        elapsed,
	}, nil
}

// buildInput picks the extraction mode. PDFs go as text when a text layer can
// be read and as an attached file otherwise.
func (s *extractionService) buildInput(logger *slog.Logger, file *filetype.File) port.ExtractInput {
	if file.Kind == domain.FileKindImage {
		return port.ExtractInput{
			Mode:      domain.ModeImage,
			FileBytes: file.Data,
			MIMEType:  file.MIMEType,
			Filename:  filepath.Base(file.Path),
		}
	}

	if s.pdfText != nil {
		text, err := s.pdfText.ExtractText(file.Data)
		if err == nil {
			logger.Info("extract.pdf_text", "chars", len(text))
			return port.ExtractInput{
				Mode:     domain.ModePDFText,
				MIMEType: file.MIMEType,
				Filename: filepath.Base(file.Path),
				Text:     text,
			}
		}
		logger.Warn("extract.pdf_text_failed", "error", err, "fallback", domain.ModePDFFile)
	}

	return port.ExtractInput{
		Mode:      domain.ModePDFFile,
		FileBytes: file.Data,
		MIMEType:  file.MIMEType,
		Filename:  filepath.Base(file.Path),
	}
}
