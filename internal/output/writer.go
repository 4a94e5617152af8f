// Package output writes extracted invoices to disk and, optionally, to an object store.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"invoicex/internal/config"
	"invoicex/internal/domain"
	"invoicex/internal/port"
)

var contentTypes = map[domain.OutputFormat]string{
	domain.OutputFormatJSON: "application/json",
	domain.OutputFormatCSV:  "text/csv",
	domain.OutputFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Writer persists invoices in the configured formats. JSON is always written.
type Writer struct {
	dir     string
	formats []domain.OutputFormat
	store   port.ObjectStorage
	prefix  string
	logger  *slog.Logger
}

// Result lists what a Write produced.
type Result struct {
	Path    string   // JSON result file
	Files   []string // every local file written, JSON first
	Uploads []port.UploadOutput
}

// NewWriter creates a Writer for cfg. store may be nil, in which case files are only written locally.
func NewWriter(cfg config.OutputConfig, store port.ObjectStorage, prefix string, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	formats := []domain.OutputFormat{domain.OutputFormatJSON}
	for _, name := range cfg.Formats {
		f := domain.OutputFormat(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := contentTypes[f]; !ok {
			return nil, fmt.Errorf("unsupported output format: %q", name)
		}
		if f == domain.OutputFormatJSON || slices.Contains(formats, f) {
			continue
		}
		formats = append(formats, f)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "output"
	}
	return &Writer{
		dir:     dir,
		formats: formats,
		store:   store,
		prefix:  prefix,
		logger:  logger,
	}, nil
}

// Write renders inv in every configured format under the output directory,
// creating it if needed, then uploads each file when a store is configured.
func (w *Writer) Write(ctx context.Context, inv *domain.InvoiceResponse, now time.Time) (*Result, error) {
	if inv == nil {
		return nil, fmt.Errorf("nothing to write: invoice is nil")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	base := BaseName(inv.InvoiceNumber, now)
	result := &Result{}
	for _, f := range w.formats {
		data, err := render(inv, f)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", f, err)
		}
		name := base + "." + string(f)
		path := filepath.Join(w.dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		w.logger.Info("output.written", "path", path, "format", f, "bytes", len(data))
		if f == domain.OutputFormatJSON {
			result.Path = path
		}
		result.Files = append(result.Files, path)

		if w.store == nil {
			continue
		}
		up, err := w.store.Upload(ctx, port.UploadInput{
			Key:         w.prefix + name,
			Body:        bytes.NewReader(data),
			ContentType: contentTypes[f],
			Size:        int64(len(data)),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrUploadFailed, name, err)
		}
		w.logger.Info("output.uploaded", "key", w.prefix+name, "location", up.Location)
		result.Uploads = append(result.Uploads, *up)
	}
	return result, nil
}

func render(inv *domain.InvoiceResponse, f domain.OutputFormat) ([]byte, error) {
	switch f {
	case domain.OutputFormatJSON:
		return json.MarshalIndent(inv, "", "  ")
	case domain.OutputFormatCSV:
		var buf bytes.Buffer
		buf.Write(BOM)
		cw := NewCSVWriter(&buf)
		if err := cw.WriteHeader(); err != nil {
			return nil, err
		}
		if err := cw.WriteInvoice(inv); err != nil {
			return nil, err
		}
		if err := cw.Flush(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case domain.OutputFormatXLSX:
		return BuildXLSX(inv)
	default:
		return nil, fmt.Errorf("unsupported output format: %q", f)
	}
}
