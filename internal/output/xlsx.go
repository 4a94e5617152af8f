package output

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"invoicex/internal/domain"
)

const (
	summarySheet   = "Summary"
	lineItemsSheet = "Line Items"
)

var lineItemHeaders = []string{
	"Description",
	"Quantity",
	"Unit of Measure",
	"Unit Price",
	"Net Worth",
	"VAT %",
	"Line Total",
}

// BuildXLSX renders inv as a workbook with a Summary sheet and a Line Items sheet.
func BuildXLSX(inv *domain.InvoiceResponse) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// NewFile starts with "Sheet1"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(lineItemsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	summary := [][2]any{
		{"Invoice Number", inv.InvoiceNumber},
		{"Invoice Date", inv.InvoiceDate},
		{"Vendor Name", inv.Vendor.Name},
		{"Vendor Address", inv.Vendor.Address},
		{"Vendor Tax ID", inv.Vendor.TaxID},
		{"Vendor IBAN", inv.Vendor.IBAN},
		{"Client Name", inv.Client.Name},
		{"Client Address", inv.Client.Address},
		{"Client Tax ID", inv.Client.TaxID},
		{"Net Worth", inv.Totals.NetWorth},
		{"VAT", inv.Totals.VAT},
		{"Grand Total", inv.Totals.GrandTotal},
	}
	for i, kv := range summary {
		if err := setRow(f, summarySheet, i+1, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}

	headers := make([]any, len(lineItemHeaders))
	for i, h := range lineItemHeaders {
		headers[i] = h
	}
	if err := setRow(f, lineItemsSheet, 1, headers...); err != nil {
		return nil, err
	}
	for i, item := range inv.LineItems {
		if err := setRow(f, lineItemsSheet, i+2,
			item.Description,
			item.Quantity,
			item.UnitOfMeasure,
			item.UnitPrice,
			item.NetWorth,
			item.VATPercent,
			item.LineTotal,
		); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	_ = f.SetColWidth(lineItemsSheet, "A", "A", 40)
	_ = f.SetColWidth(lineItemsSheet, "B", "G", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
