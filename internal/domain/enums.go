package domain

// FileKind is the coarse category of an input file.
type FileKind string

const (
	FileKindImage FileKind = "image"
	FileKindPDF   FileKind = "pdf"
)

// AllowedExtensions maps lower-case file extensions (with dot) to their MIME type.
var AllowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// SupportedExtensions lists AllowedExtensions in display order.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf"}

// ExtractionMode is how the invoice content is handed to the model.
type ExtractionMode string

const (
	ModeImage   ExtractionMode = "image"
	ModePDFFile ExtractionMode = "pdf_file"
	ModePDFText ExtractionMode = "pdf_text"
)

// OutputFormat names a file format the output writer can produce.
type OutputFormat string

const (
	OutputFormatJSON OutputFormat = "json"
	OutputFormatCSV  OutputFormat = "csv"
	OutputFormatXLSX OutputFormat = "xlsx"
)
