// Package filetype maps input paths to a file kind and MIME type and loads
// the file contents for extraction.
package filetype

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"invoicex/internal/domain"
)

// FileInfo describes a classified input path.
type FileInfo struct {
	Path     string
	Ext      string
	Kind     domain.FileKind
	MIMEType string
}

// File is a classified input file together with its bytes.
type File struct {
	FileInfo
	Data []byte
	// SniffedMIME is the MIME type detected from the content. It is only set
	// when it disagrees with the extension-derived MIMEType.
	SniffedMIME string
}

// Classify maps path to its kind and MIME type by extension. It never reads the file.
func Classify(path string) (FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := domain.AllowedExtensions[ext]
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %q (supported: %s)",
			domain.ErrUnsupportedFileType, ext, strings.Join(domain.SupportedExtensions, ", "))
	}

	kind := domain.FileKindImage
	if ext == ".pdf" {
		kind = domain.FileKindPDF
	}
	return FileInfo{Path: path, Ext: ext, Kind: kind, MIMEType: mimeType}, nil
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	info, err := Classify(path)
	return err == nil && info.Kind == domain.FileKindImage
}

// Load classifies path, then reads it. maxBytes <= 0 disables the size check.
func Load(path string, maxBytes int64) (*File, error) {
	info, err := Classify(path)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrFileNotFound, path)
	}
	if maxBytes > 0 && st.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", domain.ErrFileTooLarge, st.Size(), maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	f := &File{FileInfo: info, Data: data}
	if sniffed := mimetype.Detect(data); !sniffed.Is(info.MIMEType) {
		f.SniffedMIME = sniffed.String()
	}
	return f, nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
