package output

import (
	"fmt"
	"strings"
	"time"
)

const unknownInvoiceNumber = "unknown"

var pathSeparators = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// BaseName returns "invoice-<number>-<unixMillis>", using "unknown" when the
// invoice number is empty. Path separators in the number become underscores.
func BaseName(invoiceNumber string, now time.Time) string {
	number := strings.TrimSpace(invoiceNumber)
	if number == "" {
		number = unknownInvoiceNumber
	}
	number = pathSeparators.Replace(number)
	if number == "." || number == ".." {
		number = strings.Repeat("_", len(number))
	}
	return fmt.Sprintf("invoice-%s-%d", number, now.UnixMilli())
}

// FileName returns the JSON result file name for an invoice.
func FileName(invoiceNumber string, now time.Time) string {
	return BaseName(invoiceNumber, now) + ".json"
}
