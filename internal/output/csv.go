package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"invoicex/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// csvColumns is the header row: invoice-level columns repeated on every line item row.
var csvColumns = []string{
	"Invoice Number",
	"Invoice Date",
	"Vendor Name",
	"Vendor Tax ID",
	"Client Name",
	"Client Tax ID",
	"Description",
	"Quantity",
	"Unit of Measure",
	"Unit Price",
	"Net Worth",
	"VAT %",
	"Line Total",
}

// CSVWriter wraps csv.Writer for exporting an invoice's line items.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes CSV to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(csvColumns)
}

// WriteInvoice writes one row per line item. An invoice without line items
// still gets a single row carrying its header fields.
func (w *CSVWriter) WriteInvoice(inv *domain.InvoiceResponse) error {
	if len(inv.LineItems) == 0 {
		return w.csv.Write(invoiceToRow(inv, nil))
	}
	for i := range inv.LineItems {
		if err := w.csv.Write(invoiceToRow(inv, &inv.LineItems[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer and returns any write error.
func (w *CSVWriter) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

func invoiceToRow(inv *domain.InvoiceResponse, item *domain.LineItem) []string {
	row := make([]string, len(csvColumns))
	row[0] = inv.InvoiceNumber
	row[1] = inv.InvoiceDate
	row[2] = inv.Vendor.Name
	row[3] = inv.Vendor.TaxID
	row[4] = inv.Client.Name
	row[5] = inv.Client.TaxID
	if item == nil {
		return row
	}
	row[6] = item.Description
	row[7] = formatNumber(item.Quantity)
	row[8] = item.UnitOfMeasure
	row[9] = formatMoney(item.UnitPrice)
	row[10] = formatMoney(item.NetWorth)
	row[11] = formatNumber(item.VATPercent)
	row[12] = formatMoney(item.LineTotal)
	return row
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
